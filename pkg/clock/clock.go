// Package clock provides a coarse, periodically refreshed wall clock.
//
// Reading the time on every request is cheap in Go, but the gateway stamps
// request arrival from a shared value so that every component observes the
// same millisecond for a given tick and tests can pin time precisely.
//
// # Usage
//
//	c := clock.NewCoarse(time.Millisecond)
//	c.Start()
//	defer c.Stop()
//
//	arrival := c.NowMillis()
//
// Tests inject a Fixed clock instead:
//
//	c := clock.NewFixed(time.UnixMilli(1700000000000))
//	c.Advance(5 * time.Millisecond)
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultResolution is the refresh period used by the process-wide clock.
const DefaultResolution = time.Millisecond

// Clock supplies the current time in Unix milliseconds.
type Clock interface {
	NowMillis() int64
}

// Coarse is a Clock whose value is refreshed by a background goroutine.
// The zero value is not usable; create one with NewCoarse.
type Coarse struct {
	resolution time.Duration
	now        atomic.Int64

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewCoarse creates a stopped coarse clock. The stored value is initialized
// to the current time so reads before Start are still meaningful.
func NewCoarse(resolution time.Duration) *Coarse {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	c := &Coarse{resolution: resolution}
	c.now.Store(time.Now().UnixMilli())
	return c
}

// Start launches the refresher. Calling Start on a running clock is a no-op.
func (c *Coarse) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.running = true

	go c.run(c.stop, c.done)
}

func (c *Coarse) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			c.now.Store(t.UnixMilli())
		}
	}
}

// Stop halts the refresher and waits for it to exit. Stop is idempotent.
func (c *Coarse) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stop, done := c.stop, c.done
	c.mu.Unlock()

	close(stop)
	<-done
}

// NowMillis returns the last refreshed time.
func (c *Coarse) NowMillis() int64 {
	return c.now.Load()
}

// System is a Clock that reads the wall clock on every call.
type System struct{}

// NowMillis returns the current time.
func (System) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Fixed is a manually driven Clock for tests.
type Fixed struct {
	now atomic.Int64
}

// NewFixed returns a Fixed clock pinned at t.
func NewFixed(t time.Time) *Fixed {
	f := &Fixed{}
	f.now.Store(t.UnixMilli())
	return f
}

// NowMillis returns the pinned time.
func (f *Fixed) NowMillis() int64 {
	return f.now.Load()
}

// Set pins the clock at t.
func (f *Fixed) Set(t time.Time) {
	f.now.Store(t.UnixMilli())
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.now.Add(d.Milliseconds())
}

var (
	defaultMu    sync.RWMutex
	defaultClock Clock = System{}
)

// Default returns the process-wide clock. Until SetDefault is called it is
// a System clock.
func Default() Clock {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultClock
}

// SetDefault replaces the process-wide clock and returns the previous one.
// It is intended for tests and for wiring a started Coarse clock at process init.
func SetDefault(c Clock) Clock {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultClock
	defaultClock = c
	return prev
}

// NowMillis reads the process-wide clock.
func NowMillis() int64 {
	return Default().NowMillis()
}
