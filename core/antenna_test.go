package core

import (
	"testing"

	"github.com/signalsfoundry/directional-radio-medium/model"
)

func testPattern(t *testing.T) *RadiationPattern {
	t.Helper()
	p, err := NewRadiationPattern(map[int]float64{0: 1.0, 90: 0.5, 180: 0.1, -90: 0.25})
	if err != nil {
		t.Fatalf("NewRadiationPattern: %v", err)
	}
	return p
}

func TestOmniAntennaHasUnitGain(t *testing.T) {
	var q EventQueue
	a := NewAntenna(0, testPattern(t), &q, OmniOrientation)
	if !a.IsOmni() || a.Orientation() != -1.0 {
		t.Fatalf("omni antenna: IsOmni=%v orientation=%v", a.IsOmni(), a.Orientation())
	}
	self := model.Position{}
	for _, target := range []model.Position{{X: 1}, {Y: 1}, {X: -1}, {Y: -1}, {X: 3, Y: -7}} {
		if g, res := a.Gain(self, target); g != 1.0 || res != LookupExact {
			t.Fatalf("omni gain toward %v = %v/%v, want 1/exact", target, g, res)
		}
	}
}

func TestDirectionalAntennaGain(t *testing.T) {
	var q EventQueue
	a := NewAntenna(0, testPattern(t), &q, 0)
	self := model.Position{}

	cases := []struct {
		target model.Position
		want   float64
	}{
		{model.Position{X: 10}, 1.0},
		{model.Position{Y: 10}, 0.5},
		{model.Position{X: -10}, 0.1},
		{model.Position{Y: -10}, 0.25},
	}
	for _, tc := range cases {
		if g, _ := a.Gain(self, tc.target); g != tc.want {
			t.Fatalf("gain toward %v = %v, want %v", tc.target, g, tc.want)
		}
	}

	a.SetOrientation(90)
	if g, res := a.Gain(self, model.Position{Y: 10}); g != 1.0 || res != LookupExact {
		t.Fatalf("after rotating to 90: gain = %v/%v, want 1/exact", g, res)
	}
}

func TestSetAntennaType(t *testing.T) {
	var q EventQueue
	a := NewAntenna(3, testPattern(t), &q, 45)

	a.SetAntennaType(true)
	if a.Orientation() != OmniOrientation {
		t.Fatalf("orientation after going omni = %v", a.Orientation())
	}
	a.SetOrientation(120)
	if a.Orientation() != OmniOrientation {
		t.Fatalf("omni antenna accepted an orientation")
	}

	a.SetAntennaType(false)
	if a.IsOmni() {
		t.Fatalf("antenna still omni")
	}
	a.SetOrientation(120)
	if a.Orientation() != 120 {
		t.Fatalf("orientation = %v, want 120", a.Orientation())
	}

	events := q.Drain()
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4 (every mutation notifies)", len(events))
	}
	for _, ev := range events {
		if ev.Kind != EventAntennaChanged || ev.Radio != 3 {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
}

func TestAntennaResync(t *testing.T) {
	var q EventQueue
	a := NewAntenna(1, nil, &q, OmniOrientation)

	if a.Resync(AntennaSettings{Omni: true, BeamwidthDeg: DefaultBeamwidthDeg}) {
		t.Fatalf("resync with identical settings reported a change")
	}
	if q.Len() != 0 {
		t.Fatalf("unchanged resync queued %d events", q.Len())
	}

	if !a.Resync(AntennaSettings{OrientationDeg: 30, BeamwidthDeg: 45}) {
		t.Fatalf("resync to directional reported no change")
	}
	if a.IsOmni() || a.Orientation() != 30 || a.Beamwidth() != 45 {
		t.Fatalf("after resync: omni=%v orientation=%v beamwidth=%v", a.IsOmni(), a.Orientation(), a.Beamwidth())
	}
	if q.Len() != 1 {
		t.Fatalf("changed resync queued %d events, want 1", q.Len())
	}

	// No pattern loaded: directional gain degrades to unity.
	if g, res := a.Gain(model.Position{}, model.Position{X: 1}); g != 1 || res != LookupUnavailable {
		t.Fatalf("gain without pattern = %v/%v", g, res)
	}
}
