package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/directional-radio-medium/core"
)

// MediumCollector bundles Prometheus metrics for the radio medium. It
// satisfies core.MetricsRecorder and is safe to use as a nil pointer.
type MediumCollector struct {
	gatherer prometheus.Gatherer

	Connections          prometheus.Counter
	ConnectionReach      *prometheus.HistogramVec
	Candidates           *prometheus.CounterVec
	TransmitFailures     prometheus.Counter
	GainLookupMisses     prometheus.Counter
	InvalidRanges        prometheus.Counter
	CacheRebuildDuration prometheus.Histogram
	CacheEdges           prometheus.Gauge
	ActiveConnections    prometheus.Gauge
	RegisteredRadios     prometheus.Gauge
}

var _ core.MetricsRecorder = (*MediumCollector)(nil)

// NewMediumCollector registers medium metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewMediumCollector(reg prometheus.Registerer) (*MediumCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &MediumCollector{gatherer: gatherer}
	var err error

	if c.Connections, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radio_connections_total",
		Help: "Transmission attempts evaluated by the medium.",
	}), "radio_connections_total"); err != nil {
		return nil, err
	}
	if c.ConnectionReach, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "radio_connection_reach",
		Help:    "Radios reached per connection, labeled by role.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
	}, []string{"role"}), "radio_connection_reach"); err != nil {
		return nil, err
	}
	if c.Candidates, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_candidates_total",
		Help: "Potential destinations evaluated, labeled by outcome.",
	}, []string{"outcome"}), "radio_candidates_total"); err != nil {
		return nil, err
	}
	if c.TransmitFailures, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radio_transmit_trial_failures_total",
		Help: "Transmissions dropped by the transmit success trial.",
	}), "radio_transmit_trial_failures_total"); err != nil {
		return nil, err
	}
	if c.GainLookupMisses, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radio_gain_lookup_misses_total",
		Help: "Gain lookups answered by a fallback bucket.",
	}), "radio_gain_lookup_misses_total"); err != nil {
		return nil, err
	}
	if c.InvalidRanges, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radio_invalid_range_total",
		Help: "Links ignored because the transmitting range was zero.",
	}), "radio_invalid_range_total"); err != nil {
		return nil, err
	}
	if c.CacheRebuildDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "radio_destination_cache_rebuild_duration_seconds",
		Help:    "Duration of potential-destination cache rebuilds.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "radio_destination_cache_rebuild_duration_seconds"); err != nil {
		return nil, err
	}
	if c.CacheEdges, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radio_destination_cache_edges",
		Help: "Directed edges in the potential-destination cache.",
	}), "radio_destination_cache_edges"); err != nil {
		return nil, err
	}
	if c.ActiveConnections, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radio_active_connections",
		Help: "Currently active connections.",
	}), "radio_active_connections"); err != nil {
		return nil, err
	}
	if c.RegisteredRadios, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radio_registered_radios",
		Help: "Radios registered with the medium.",
	}), "radio_registered_radios"); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *MediumCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *MediumCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func (c *MediumCollector) ConnectionCreated(destinations, interfered int) {
	if c == nil {
		return
	}
	c.Connections.Inc()
	c.ConnectionReach.WithLabelValues("destination").Observe(float64(destinations))
	c.ConnectionReach.WithLabelValues("interfered").Observe(float64(interfered))
}

func (c *MediumCollector) TransmitTrialFailed() {
	if c == nil {
		return
	}
	c.TransmitFailures.Inc()
}

func (c *MediumCollector) CandidateEvaluated(outcome core.CandidateOutcome) {
	if c == nil {
		return
	}
	c.Candidates.WithLabelValues(string(outcome)).Inc()
}

func (c *MediumCollector) GainLookupMiss() {
	if c == nil {
		return
	}
	c.GainLookupMisses.Inc()
}

func (c *MediumCollector) InvalidRange() {
	if c == nil {
		return
	}
	c.InvalidRanges.Inc()
}

func (c *MediumCollector) CacheRebuilt(took time.Duration, edges int) {
	if c == nil {
		return
	}
	c.CacheRebuildDuration.Observe(took.Seconds())
	c.CacheEdges.Set(float64(edges))
}

func (c *MediumCollector) SetActiveConnections(n int) {
	if c == nil {
		return
	}
	c.ActiveConnections.Set(float64(n))
}

func (c *MediumCollector) SetRegisteredRadios(n int) {
	if c == nil {
		return
	}
	c.RegisteredRadios.Set(float64(n))
}

// register adds col to reg, returning the already registered collector of
// the same type on a duplicate registration.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		var zero T
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return zero, err
	}
	return col, nil
}
