package core

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/signalsfoundry/directional-radio-medium/internal/logging"
	"github.com/signalsfoundry/directional-radio-medium/kb"
	"github.com/signalsfoundry/directional-radio-medium/timectrl"
)

// EngineMetricsRecorder receives per-tick engine activity.
type EngineMetricsRecorder interface {
	ObserveTick(d time.Duration)
	TransmissionStarted()
	AntennaResynced()
}

// TrafficSource picks which radios start a transmission on a tick.
type TrafficSource interface {
	Transmitters(tick uint64, idle []kb.Handle) []kb.Handle
}

// RandomTraffic starts a transmission on each idle radio with a fixed
// probability per tick. It owns its PRNG so traffic does not perturb the
// medium's transmit-success stream.
type RandomTraffic struct {
	Probability float64
	rng         *rand.Rand
}

// NewRandomTraffic seeds a traffic generator.
func NewRandomTraffic(probability float64, seed int64) *RandomTraffic {
	return &RandomTraffic{Probability: probability, rng: rand.New(rand.NewSource(seed))}
}

// Transmitters draws one trial per idle radio, in order.
func (t *RandomTraffic) Transmitters(_ uint64, idle []kb.Handle) []kb.Handle {
	var out []kb.Handle
	for _, h := range idle {
		if t.rng.Float64() < t.Probability {
			out = append(out, h)
		}
	}
	return out
}

// TickListener observes the medium events produced by one tick.
type TickListener func(ctx context.Context, tick uint64, events []Event)

type inFlight struct {
	conn   *Connection
	endsAt uint64
}

// SimulationEngine drives a Medium tick by tick: antenna resync, mobility,
// end of finished transmissions, then new transmissions.
type SimulationEngine struct {
	Medium   *Medium
	Antennas AntennaSource
	Mobility map[kb.Handle]MotionModel
	Traffic  TrafficSource

	// TxTicks is how many ticks a transmission stays active.
	TxTicks uint64

	log     logging.Logger
	metrics EngineMetricsRecorder
	tracer  trace.Tracer

	inFlight      []inFlight
	tickListeners []TickListener
}

// EngineOption customises a SimulationEngine.
type EngineOption func(*SimulationEngine)

// WithEngineLogger attaches a structured logger.
func WithEngineLogger(l logging.Logger) EngineOption {
	return func(se *SimulationEngine) {
		if l != nil {
			se.log = l
		}
	}
}

// WithEngineMetrics attaches a tick metrics recorder.
func WithEngineMetrics(r EngineMetricsRecorder) EngineOption {
	return func(se *SimulationEngine) {
		se.metrics = r
	}
}

// WithTracer wraps every tick in a span from t.
func WithTracer(t trace.Tracer) EngineOption {
	return func(se *SimulationEngine) {
		if t != nil {
			se.tracer = t
		}
	}
}

// NewSimulationEngine builds an engine over m. Transmissions last one tick
// until TxTicks is changed.
func NewSimulationEngine(m *Medium, opts ...EngineOption) *SimulationEngine {
	se := &SimulationEngine{
		Medium:   m,
		Mobility: make(map[kb.Handle]MotionModel),
		TxTicks:  1,
		log:      logging.Noop(),
		tracer:   noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(se)
		}
	}
	return se
}

// RegisterTickListener adds a listener called after every tick.
func (se *SimulationEngine) RegisterTickListener(fn TickListener) {
	se.tickListeners = append(se.tickListeners, fn)
}

// Attach drives the engine from tc.
func (se *SimulationEngine) Attach(tc *timectrl.TimeController) {
	tc.AddListener(func(ctx context.Context, tick uint64, _ time.Time) {
		se.Tick(ctx, tick)
	})
}

// InFlight returns the number of active transmissions.
func (se *SimulationEngine) InFlight() int { return len(se.inFlight) }

// Tick runs one simulation step.
func (se *SimulationEngine) Tick(ctx context.Context, tick uint64) {
	start := time.Now()
	ctx = logging.ContextWithTick(ctx, tick)
	ctx, span := se.tracer.Start(ctx, "radio.tick", trace.WithAttributes(attribute.Int64("radio.tick", int64(tick))))
	defer span.End()

	m := se.Medium
	reg := m.Registry()

	if se.Antennas != nil {
		for _, h := range reg.Handles() {
			s, ok := se.Antennas.AntennaSettings(h, tick)
			if !ok {
				continue
			}
			if changed, _ := m.ResyncAntenna(h, s); changed && se.metrics != nil {
				se.metrics.AntennaResynced()
			}
		}
	}

	for h, mm := range se.Mobility {
		pos, ok := reg.Position(h)
		if !ok {
			continue
		}
		if err := reg.SetPosition(h, mm.Advance(tick, pos)); err != nil {
			se.log.Warn(ctx, "mobility update failed", logging.Int("radio", int(h)), logging.Err(err))
		}
	}

	ended := 0
	remaining := se.inFlight[:0]
	for _, f := range se.inFlight {
		if f.endsAt <= tick {
			m.DeactivateConnection(ctx, f.conn)
			ended++
			continue
		}
		remaining = append(remaining, f)
	}
	se.inFlight = remaining

	started := 0
	if se.Traffic != nil {
		for _, h := range se.Traffic.Transmitters(tick, se.idleRadios()) {
			conn := m.CreateConnection(ctx, h)
			m.ActivateConnection(ctx, conn)
			se.inFlight = append(se.inFlight, inFlight{conn: conn, endsAt: tick + se.TxTicks})
			started++
			if se.metrics != nil {
				se.metrics.TransmissionStarted()
			}
		}
	}

	events := m.DrainEvents()
	span.SetAttributes(
		attribute.Int("radio.transmissions.started", started),
		attribute.Int("radio.transmissions.ended", ended),
		attribute.Int("radio.events", len(events)),
	)
	for _, fn := range se.tickListeners {
		fn(ctx, tick, events)
	}

	if se.metrics != nil {
		se.metrics.ObserveTick(time.Since(start))
	}
}

// idleRadios lists radios that are on and not already transmitting.
func (se *SimulationEngine) idleRadios() []kb.Handle {
	reg := se.Medium.Registry()
	var out []kb.Handle
	for _, h := range reg.Handles() {
		if r := reg.Get(h); r != nil && r.On && !r.Transmitting {
			out = append(out, h)
		}
	}
	return out
}
