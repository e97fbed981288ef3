package core

import (
	"math"

	"github.com/signalsfoundry/directional-radio-medium/model"
)

const (
	degPerRad = 180.0 / math.Pi
	radPerDeg = math.Pi / 180.0
)

// BearingRadians returns the absolute angle from one position to another,
// atan2(dy, dx), in (-π, π].
func BearingRadians(from, to model.Position) float64 {
	d := to.Sub(from)
	return math.Atan2(d.Y, d.X)
}

// RelativeBearingDegrees returns the bearing from one position to another
// relative to an antenna orientation given in degrees.
func RelativeBearingDegrees(from, to model.Position, orientationDeg float64) float64 {
	return (BearingRadians(from, to) - orientationDeg*radPerDeg) * degPerRad
}

// BearingBucket maps a relative bearing in degrees onto the integer key
// used by radiation-pattern tables. The bearing is rounded to the nearest
// degree; values at or below -180 wrap by +360 until they are above -180.
// Values in (-180, 0) stay negative and positive values are kept as-is, so
// tables are expected to cover [-179, 180]. Keys outside the table are
// resolved by RadiationPattern.Lookup.
func BearingBucket(deg float64) int {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	b := int(math.Round(deg))
	for b <= -180 {
		b += 360
	}
	return b
}
