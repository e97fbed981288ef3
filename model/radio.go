package model

// AnyChannel is the channel value of a radio that listens on every channel.
// Any negative channel is treated the same way.
const AnyChannel = -1

// Radio is the per-node radio state shared between the simulation and the
// radio medium. The simulation owns it; the medium reads position and state
// and writes SignalStrength and the Interfered flag.
type Radio struct {
	Name string

	Position Position

	// Channel is the configured channel; negative means "any channel".
	Channel int

	// OutputPowerIndicator and OutputPowerIndicatorMax scale the
	// transmission and interference ranges.
	OutputPowerIndicator    int
	OutputPowerIndicatorMax int

	// OutputPowerDBm is the current transmit power.
	OutputPowerDBm float64

	On           bool
	Transmitting bool
	Receiving    bool
	Interfered   bool

	// SignalStrength is the currently observed signal strength (dBm),
	// recomputed by the medium after every connection change.
	SignalStrength float64
}

// PowerRatio returns current/maximum output power indicator. A radio
// without a configured maximum has no usable range.
func (r *Radio) PowerRatio() float64 {
	if r == nil || r.OutputPowerIndicatorMax <= 0 {
		return 0
	}
	return float64(r.OutputPowerIndicator) / float64(r.OutputPowerIndicatorMax)
}

// ChannelMismatch reports whether two radios are on different, configured
// channels.
func ChannelMismatch(a, b int) bool {
	return a >= 0 && b >= 0 && a != b
}
