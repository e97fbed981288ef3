package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock gives read access to simulation time so components can depend on
// a clock abstraction rather than on the controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// Ticks returns the number of ticks executed so far.
	Ticks() uint64
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime paces ticks against the wall clock.
	RealTime Mode = iota
	// Accelerated runs ticks back to back.
	Accelerated
)

// Listener is invoked once per tick with the tick number (starting at 1)
// and the simulation time at the end of that tick.
type Listener func(ctx context.Context, tick uint64, now time.Time)

// TimeController drives discrete simulation ticks and notifies registered
// listeners in registration order. Listeners run on the goroutine calling
// Run or Step, one tick at a time.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	ticks       uint64

	listeners []Listener
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Ticks returns the number of ticks executed so far.
func (tc *TimeController) Ticks() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn Listener) {
	if fn == nil {
		return
	}
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Step advances one tick and runs the listeners synchronously.
func (tc *TimeController) Step(ctx context.Context) uint64 {
	tc.mu.Lock()
	tc.ticks++
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tick, now := tc.ticks, tc.currentTime
	listeners := append([]Listener(nil), tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, tick, now)
	}
	return tick
}

// Run executes n ticks, or runs until ctx is cancelled when n is 0. It
// returns ctx.Err() when cancelled and nil once n ticks completed.
func (tc *TimeController) Run(ctx context.Context, n uint64) error {
	var pace <-chan time.Time
	if tc.Mode == RealTime && tc.Tick > 0 {
		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()
		pace = ticker.C
	}

	for i := uint64(0); n == 0 || i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if pace != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pace:
			}
		}
		tc.Step(ctx)
	}
	return nil
}
