package timectrl

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcceleratedRunInvokesListenersPerTick(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Millisecond, Accelerated)

	var ticks []uint64
	var last time.Time
	tc.AddListener(func(_ context.Context, tick uint64, now time.Time) {
		ticks = append(ticks, tick)
		last = now
	})

	if err := tc.Run(context.Background(), 5); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ticks) != 5 || ticks[0] != 1 || ticks[4] != 5 {
		t.Fatalf("ticks = %v, want 1..5", ticks)
	}
	if want := start.Add(5 * time.Millisecond); !last.Equal(want) || !tc.Now().Equal(want) {
		t.Fatalf("sim time = %v (Now %v), want %v", last, tc.Now(), want)
	}
	if tc.Ticks() != 5 {
		t.Fatalf("Ticks() = %d, want 5", tc.Ticks())
	}
}

func TestListenersRunInRegistrationOrder(t *testing.T) {
	tc := NewTimeController(time.Time{}, time.Second, Accelerated)
	var order []string
	tc.AddListener(func(context.Context, uint64, time.Time) { order = append(order, "a") })
	tc.AddListener(func(context.Context, uint64, time.Time) { order = append(order, "b") })
	tc.Step(context.Background())
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v, want [a b]", order)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	tc := NewTimeController(time.Time{}, time.Millisecond, Accelerated)
	ctx, cancel := context.WithCancel(context.Background())
	tc.AddListener(func(_ context.Context, tick uint64, _ time.Time) {
		if tick == 3 {
			cancel()
		}
	})
	err := tc.Run(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if tc.Ticks() != 3 {
		t.Fatalf("Ticks() = %d, want 3", tc.Ticks())
	}
}

func TestRealTimeModePacesTicks(t *testing.T) {
	tc := NewTimeController(time.Time{}, 5*time.Millisecond, RealTime)
	begin := time.Now()
	if err := tc.Run(context.Background(), 3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(begin); elapsed < 10*time.Millisecond {
		t.Fatalf("real-time run finished in %v, expected pacing", elapsed)
	}
}
