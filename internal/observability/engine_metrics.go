package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineCollector exposes tick-loop metrics.
type EngineCollector struct {
	TickDuration   prometheus.Histogram
	Ticks          prometheus.Counter
	Transmissions  prometheus.Counter
	AntennaResyncs prometheus.Counter
}

// NewEngineCollector registers engine metrics against reg.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &EngineCollector{}
	var err error

	if c.TickDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "radio_tick_duration_seconds",
		Help:    "Wall-clock duration of one simulation tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "radio_tick_duration_seconds"); err != nil {
		return nil, err
	}
	if c.Ticks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radio_ticks_total",
		Help: "Simulation ticks executed.",
	}), "radio_ticks_total"); err != nil {
		return nil, err
	}
	if c.Transmissions, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radio_transmissions_started_total",
		Help: "Transmissions started by the traffic generator.",
	}), "radio_transmissions_started_total"); err != nil {
		return nil, err
	}
	if c.AntennaResyncs, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radio_antenna_resyncs_total",
		Help: "Antenna resyncs that changed antenna state.",
	}), "radio_antenna_resyncs_total"); err != nil {
		return nil, err
	}
	return c, nil
}

// ObserveTick records one completed tick.
func (c *EngineCollector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDuration.Observe(d.Seconds())
}

// TransmissionStarted counts a transmission handed to the medium.
func (c *EngineCollector) TransmissionStarted() {
	if c == nil {
		return
	}
	c.Transmissions.Inc()
}

// AntennaResynced counts an antenna resync that changed state.
func (c *EngineCollector) AntennaResynced() {
	if c == nil {
		return
	}
	c.AntennaResyncs.Inc()
}
