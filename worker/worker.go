// Package worker runs goroutines that are told to exit when their Token is stopped.
package worker

import "sync"

// Token controls one spawned goroutine.
type Token struct {
	exit      chan struct{}
	done      chan struct{}
	blockStop bool
	once      sync.Once
}

// Spawn runs f on a new goroutine. f must return once exit is closed.
// If blockStop is set, Stop waits for f to return; a function that ignores
// exit then blocks Stop forever.
func Spawn(blockStop bool, f func(exit <-chan struct{})) *Token {
	t := &Token{
		exit:      make(chan struct{}),
		done:      make(chan struct{}),
		blockStop: blockStop,
	}
	go func() {
		defer close(t.done)
		f(t.exit)
	}()
	return t
}

// Stop signals the goroutine to exit. Safe to call multiple times.
func (t *Token) Stop() {
	t.once.Do(func() {
		close(t.exit)
	})
	if t.blockStop {
		<-t.done
	}
}

// Done is closed once the goroutine has returned.
func (t *Token) Done() <-chan struct{} {
	return t.done
}
