package model

import (
	"math"
	"testing"
)

func TestPowerRatio(t *testing.T) {
	cases := []struct {
		name string
		r    *Radio
		want float64
	}{
		{"nil", nil, 0},
		{"no max", &Radio{OutputPowerIndicator: 5}, 0},
		{"full", &Radio{OutputPowerIndicator: 31, OutputPowerIndicatorMax: 31}, 1},
		{"half", &Radio{OutputPowerIndicator: 10, OutputPowerIndicatorMax: 20}, 0.5},
	}
	for _, tc := range cases {
		if got := tc.r.PowerRatio(); got != tc.want {
			t.Fatalf("%s: PowerRatio = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestChannelMismatch(t *testing.T) {
	if ChannelMismatch(AnyChannel, 3) || ChannelMismatch(3, AnyChannel) || ChannelMismatch(-7, 2) {
		t.Fatalf("a negative channel must match every channel")
	}
	if ChannelMismatch(4, 4) {
		t.Fatalf("equal channels must match")
	}
	if !ChannelMismatch(4, 5) {
		t.Fatalf("distinct configured channels must mismatch")
	}
}

func TestPositionArithmetic(t *testing.T) {
	a := Position{X: 3, Y: 4}
	if d := (Position{}).DistanceTo(a); math.Abs(d-5) > 1e-12 {
		t.Fatalf("DistanceTo = %v, want 5", d)
	}
	if got := a.Sub(Position{X: 1, Y: 1}); got != (Position{X: 2, Y: 3}) {
		t.Fatalf("Sub = %+v", got)
	}
	if got := a.Add(Position{X: -3, Y: 1}); got != (Position{X: 0, Y: 5}) {
		t.Fatalf("Add = %+v", got)
	}
}
