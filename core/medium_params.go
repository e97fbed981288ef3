package core

import (
	"fmt"
	"math"
)

// Signal-strength levels (dBm) used when refreshing observed strengths.
const (
	SSStrong  = -10.0
	SSWeak    = -95.0
	SSNothing = -100.0
)

// SpeedOfLight is the default propagation speed in m/s.
const SpeedOfLight = 299792458.0

// Params holds the process-wide radio medium parameters.
type Params struct {
	TxSuccessRatio float64
	RxSuccessRatio float64

	// TransmitRange and InterferenceRange are in metres at full output
	// power. An interference range below the transmit range is allowed.
	TransmitRange     float64
	InterferenceRange float64

	ReceiverSensitivity   float64 // dBm
	InterferenceThreshold float64 // dBm

	FrequencyGHz     float64
	PropagationSpeed float64 // m/s

	// DefaultOrientationDeg is applied to antennas of newly registered
	// radios; negative means omnidirectional.
	DefaultOrientationDeg float64
}

// DefaultParams returns the stock medium configuration.
func DefaultParams() Params {
	return Params{
		TxSuccessRatio:        1.0,
		RxSuccessRatio:        1.0,
		TransmitRange:         50,
		InterferenceRange:     100,
		ReceiverSensitivity:   -95,
		InterferenceThreshold: -100,
		FrequencyGHz:          2.4,
		PropagationSpeed:      SpeedOfLight,
		DefaultOrientationDeg: OmniOrientation,
	}
}

// MaxRange is the superset range used by the destination cache.
func (p Params) MaxRange() float64 {
	return math.Max(p.TransmitRange, p.InterferenceRange)
}

// Validate rejects parameters the medium cannot work with.
func (p Params) Validate() error {
	if err := checkRatio("transmit_success_ratio", p.TxSuccessRatio); err != nil {
		return err
	}
	if err := checkRatio("receive_success_ratio", p.RxSuccessRatio); err != nil {
		return err
	}
	if err := checkRange("transmit_range", p.TransmitRange); err != nil {
		return err
	}
	if err := checkRange("interference_range", p.InterferenceRange); err != nil {
		return err
	}
	if !(p.FrequencyGHz > 0) || math.IsInf(p.FrequencyGHz, 0) {
		return fmt.Errorf("%w: frequency must be positive, got %v", ErrConfiguration, p.FrequencyGHz)
	}
	if !(p.PropagationSpeed > 0) || math.IsInf(p.PropagationSpeed, 0) {
		return fmt.Errorf("%w: propagation_speed must be positive, got %v", ErrConfiguration, p.PropagationSpeed)
	}
	if math.IsNaN(p.ReceiverSensitivity) || math.IsNaN(p.InterferenceThreshold) {
		return fmt.Errorf("%w: thresholds must be numbers", ErrConfiguration)
	}
	return nil
}

func checkRatio(name string, v float64) error {
	if !(v >= 0 && v <= 1) {
		return fmt.Errorf("%w: %s must be within [0,1], got %v", ErrConfiguration, name, v)
	}
	return nil
}

func checkRange(name string, v float64) error {
	if !(v >= 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be a non-negative distance, got %v", ErrConfiguration, name, v)
	}
	return nil
}
