package core

import (
	"math"

	"github.com/signalsfoundry/directional-radio-medium/model"
)

// MotionModel moves a radio once per tick.
type MotionModel interface {
	Advance(tick uint64, p model.Position) model.Position
}

// StaticMotionModel leaves the radio where it is.
type StaticMotionModel struct{}

// Advance returns p unchanged.
func (StaticMotionModel) Advance(_ uint64, p model.Position) model.Position { return p }

// LinearMotionModel moves a radio by a fixed velocity (metres per tick). A
// non-zero Bounds makes it bounce inside [0, Bounds.X] × [0, Bounds.Y].
type LinearMotionModel struct {
	Velocity model.Position
	Bounds   model.Position
}

// Advance applies one tick of motion, reflecting the velocity at the
// bounds.
func (m *LinearMotionModel) Advance(_ uint64, p model.Position) model.Position {
	next := p.Add(m.Velocity)
	if m.Bounds.X > 0 {
		next.X, m.Velocity.X = bounce(next.X, m.Velocity.X, m.Bounds.X)
	}
	if m.Bounds.Y > 0 {
		next.Y, m.Velocity.Y = bounce(next.Y, m.Velocity.Y, m.Bounds.Y)
	}
	return next
}

func bounce(v, vel, upper float64) (float64, float64) {
	switch {
	case v < 0:
		return math.Min(-v, upper), -vel
	case v > upper:
		return math.Max(2*upper-v, 0), -vel
	default:
		return v, vel
	}
}

// NewMotionModel returns a linear model for a non-zero velocity and a
// static model otherwise.
func NewMotionModel(velocity, bounds model.Position) MotionModel {
	if velocity.X == 0 && velocity.Y == 0 {
		return StaticMotionModel{}
	}
	return &LinearMotionModel{Velocity: velocity, Bounds: bounds}
}
