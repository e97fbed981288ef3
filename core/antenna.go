package core

import (
	"github.com/signalsfoundry/directional-radio-medium/kb"
	"github.com/signalsfoundry/directional-radio-medium/model"
)

const (
	// OmniOrientation is the orientation reported by omnidirectional
	// antennas.
	OmniOrientation = -1.0

	// DefaultBeamwidthDeg is the beamwidth of newly created antennas.
	DefaultBeamwidthDeg = 60.0
)

// AntennaSettings is the node-local antenna configuration the firmware
// exposes each tick.
type AntennaSettings struct {
	OrientationDeg float64
	BeamwidthDeg   float64
	Omni           bool
}

// Antenna is the per-radio antenna state. Every mutation queues an
// EventAntennaChanged for visualization; none of them touches the
// distance-based destination cache.
type Antenna struct {
	radio   kb.Handle
	pattern *RadiationPattern
	events  *EventQueue

	orientationDeg float64
	// beamwidthDeg is informational; gain comes from the pattern table.
	beamwidthDeg float64
	omni         bool
}

// NewAntenna creates the antenna for a radio. An orientation of
// OmniOrientation (or any negative value) yields an omnidirectional
// antenna.
func NewAntenna(radio kb.Handle, pattern *RadiationPattern, events *EventQueue, orientationDeg float64) *Antenna {
	a := &Antenna{
		radio:          radio,
		pattern:        pattern,
		events:         events,
		orientationDeg: orientationDeg,
		beamwidthDeg:   DefaultBeamwidthDeg,
	}
	if orientationDeg < 0 {
		a.omni = true
		a.orientationDeg = OmniOrientation
	}
	return a
}

// Radio returns the handle of the radio owning this antenna.
func (a *Antenna) Radio() kb.Handle { return a.radio }

// SetAntennaType switches between omnidirectional and directional. Going
// omnidirectional forces the orientation to OmniOrientation; going
// directional keeps whatever orientation is stored.
func (a *Antenna) SetAntennaType(omni bool) {
	a.omni = omni
	if omni {
		a.orientationDeg = OmniOrientation
	}
	a.notify()
}

// IsOmni reports whether the antenna is omnidirectional.
func (a *Antenna) IsOmni() bool { return a.omni }

// SetOrientation stores a new orientation unless the antenna is
// omnidirectional. Observers are notified either way.
func (a *Antenna) SetOrientation(deg float64) {
	if !a.omni {
		a.orientationDeg = deg
	}
	a.notify()
}

// Orientation returns the orientation in degrees, or OmniOrientation for
// omnidirectional antennas.
func (a *Antenna) Orientation() float64 {
	if a.omni {
		return OmniOrientation
	}
	return a.orientationDeg
}

// SetBeamwidth stores the beamwidth.
func (a *Antenna) SetBeamwidth(deg float64) {
	a.beamwidthDeg = deg
	a.notify()
}

// Beamwidth returns the configured beamwidth in degrees.
func (a *Antenna) Beamwidth() float64 { return a.beamwidthDeg }

// Resync applies node-local settings read at a tick boundary. This is the
// authoritative update path; it notifies only when something changed and
// reports whether it did.
func (a *Antenna) Resync(s AntennaSettings) bool {
	orientation := s.OrientationDeg
	if s.Omni {
		orientation = OmniOrientation
	}
	if a.omni == s.Omni && a.beamwidthDeg == s.BeamwidthDeg && a.orientationDeg == orientation {
		return false
	}
	a.omni = s.Omni
	a.beamwidthDeg = s.BeamwidthDeg
	a.orientationDeg = orientation
	a.notify()
	return true
}

// Bucket returns the gain-table bucket for a target seen from self.
func (a *Antenna) Bucket(self, target model.Position) int {
	return BearingBucket(RelativeBearingDegrees(self, target, a.Orientation()))
}

// Gain returns the gain coefficient toward target, seen from self.
// Omnidirectional antennas always return 1.0.
func (a *Antenna) Gain(self, target model.Position) (float64, LookupResult) {
	if a.omni {
		return 1.0, LookupExact
	}
	if a.pattern == nil {
		return 1.0, LookupUnavailable
	}
	return a.pattern.Lookup(a.Bucket(self, target))
}

func (a *Antenna) notify() {
	a.events.Push(Event{Kind: EventAntennaChanged, Radio: a.radio})
}
