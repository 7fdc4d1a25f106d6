// Package broadcast fans values out to any number of subscribers.
package broadcast

import "sync"

// Broadcast delivers every sent value to each live subscription.
// Methods are safe for concurrent use.
type Broadcast[T any] struct {
	mu     sync.Mutex
	subs   []*Subscription[T]
	buffer int
}

// Subscription receives values from a Broadcast.
type Subscription[T any] struct {
	c    chan T
	done chan struct{}
	once sync.Once
}

// New returns a Broadcast whose subscriptions buffer up to buffer values.
func New[T any](buffer int) *Broadcast[T] {
	return &Broadcast[T]{buffer: max(buffer, 0)}
}

// Subscribe adds a subscription. It only sees values sent after it was created.
func (b *Broadcast[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		c:    make(chan T, b.buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s
}

// Send delivers v to every subscription in turn, waiting on each one that is
// full. A slow subscriber early in the list therefore delays the rest.
// Closed subscriptions are removed.
func (b *Broadcast[T]) Send(v T) {
	for _, s := range b.snapshot() {
		select {
		case s.c <- v:
		case <-s.done:
		}
	}
	b.prune()
}

// TrySend delivers v to every subscription with room for it and skips the
// full ones. Closed subscriptions are removed.
func (b *Broadcast[T]) TrySend(v T) {
	for _, s := range b.snapshot() {
		if s.closed() {
			continue
		}
		select {
		case s.c <- v:
		default:
		}
	}
	b.prune()
}

// Len returns the number of subscriptions not yet pruned.
func (b *Broadcast[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcast[T]) snapshot() []*Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Subscription[T](nil), b.subs...)
}

func (b *Broadcast[T]) prune() {
	b.mu.Lock()
	defer b.mu.Unlock()
	live := b.subs[:0]
	for _, s := range b.subs {
		if !s.closed() {
			live = append(live, s)
		}
	}
	clear(b.subs[len(live):])
	b.subs = live
}

// C returns the channel values arrive on. It is never closed; select on
// Done as well when the subscription may be closed concurrently.
func (s *Subscription[T]) C() <-chan T {
	return s.c
}

// Done is closed once the subscription is closed.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close disconnects the subscription. Safe to call multiple times.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *Subscription[T]) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
