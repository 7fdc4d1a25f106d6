// Package ratemeter measures event rates in events per second.
package ratemeter

import (
	"sync"
	"time"
)

// DefaultInterval is the window after which Check and Auto report a rate.
const DefaultInterval = time.Second

// Meter counts events and reports the rate since its last reset.
// The zero value is usable: its window starts on the first Check or Measure.
type Meter struct {
	mu       sync.Mutex
	count    uint64
	last     time.Time
	started  bool
	interval time.Duration
	now      func() time.Time
}

// Option configures a Meter.
type Option func(*Meter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Meter) {
		m.now = now
	}
}

// WithInterval sets the reporting window. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(m *Meter) {
		if d > 0 {
			m.interval = d
		}
	}
}

// New returns a Meter whose window starts now.
func New(opts ...Option) *Meter {
	m := &Meter{}
	for _, opt := range opts {
		opt(m)
	}
	m.last = m.clock()
	m.started = true
	return m
}

func (m *Meter) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

func (m *Meter) window() time.Duration {
	if m.interval <= 0 {
		return DefaultInterval
	}
	return m.interval
}

// Add adds n to the count.
func (m *Meter) Add(n uint64) {
	m.mu.Lock()
	m.count += n
	m.mu.Unlock()
}

// Inc adds one to the count.
func (m *Meter) Inc() {
	m.Add(1)
}

// Count returns the events counted since the last reset.
func (m *Meter) Count() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Auto counts one event, then behaves like Check.
func (m *Meter) Auto() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	return m.check()
}

// Check reports the rate and resets once the interval has elapsed.
// Before that it returns false and leaves the count alone.
func (m *Meter) Check() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check()
}

func (m *Meter) check() (float64, bool) {
	now := m.clock()
	m.begin(now)
	if now.Before(m.last.Add(m.window())) {
		return 0, false
	}
	return m.reset(now), true
}

// Measure reports the rate since the last reset and resets unconditionally.
// A zero-length window reports 0.
func (m *Meter) Measure() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	m.begin(now)
	return m.reset(now)
}

func (m *Meter) begin(now time.Time) {
	if !m.started {
		m.last = now
		m.started = true
	}
}

func (m *Meter) reset(now time.Time) float64 {
	var rate float64
	if elapsed := now.Sub(m.last); elapsed > 0 {
		rate = float64(m.count) / elapsed.Seconds()
	}
	m.last = now
	m.count = 0
	return rate
}
