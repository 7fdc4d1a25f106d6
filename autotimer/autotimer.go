// Package autotimer logs how long a scope took.
//
//	defer autotimer.Start(logger, "handshake").Stop()
package autotimer

import (
	"fmt"
	"sync"
	"time"

	"github.com/Zereker/framing"
)

// Timer remembers when it was started.
type Timer struct {
	name   string
	start  time.Time
	logger framing.Logger
	now    func() time.Time

	once    sync.Once
	elapsed time.Duration
}

// Start starts a named timer. A nil logger discards the record.
func Start(logger framing.Logger, name string) *Timer {
	return start(logger, name, time.Now)
}

func start(logger framing.Logger, name string, now func() time.Time) *Timer {
	return &Timer{name: name, start: now(), logger: logger, now: now}
}

// Stop logs "Timer [name]: elapsed" at info level and returns the elapsed time.
// Only the first call logs; later calls return the same duration.
func (t *Timer) Stop() time.Duration {
	t.once.Do(func() {
		t.elapsed = t.now().Sub(t.start)
		if t.logger != nil {
			t.logger.Info(fmt.Sprintf("Timer [%s]: %v", t.name, t.elapsed))
		}
	})
	return t.elapsed
}

// Name returns the timer name.
func (t *Timer) Name() string {
	return t.name
}
