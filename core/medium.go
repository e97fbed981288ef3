package core

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/signalsfoundry/directional-radio-medium/internal/logging"
	"github.com/signalsfoundry/directional-radio-medium/kb"
	"github.com/signalsfoundry/directional-radio-medium/model"
)

// CandidateOutcome classifies what a transmission did to one potential
// destination.
type CandidateOutcome string

const (
	OutcomeDestination     CandidateOutcome = "destination"
	OutcomeInterfered      CandidateOutcome = "interfered"
	OutcomeChannelMismatch CandidateOutcome = "channel_mismatch"
	OutcomeNoEffect        CandidateOutcome = "no_effect"
)

// MetricsRecorder receives medium activity for Prometheus-style export.
type MetricsRecorder interface {
	ConnectionCreated(destinations, interfered int)
	TransmitTrialFailed()
	CandidateEvaluated(outcome CandidateOutcome)
	GainLookupMiss()
	InvalidRange()
	CacheRebuilt(took time.Duration, edges int)
	SetActiveConnections(n int)
	SetRegisteredRadios(n int)
}

// Random is the slice of the simulation PRNG the medium consumes.
type Random interface {
	Float64() float64
}

// Medium is a unit-disk-graph radio medium with directional antennas. It
// decides per transmission who receives, who is interfered and what signal
// strength every radio observes.
//
// Medium is not safe for concurrent use; it is driven by a single-threaded
// tick loop.
type Medium struct {
	reg    *kb.Registry
	params Params

	pattern  *RadiationPattern
	antennas map[kb.Handle]*Antenna
	baseRSSI map[kb.Handle]float64

	cache  *DestinationCache
	active []*Connection
	nextID uint64

	rng     Random
	events  EventQueue
	log     logging.Logger
	metrics MetricsRecorder
}

// MediumOption customises Medium construction.
type MediumOption func(*Medium)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) MediumOption {
	return func(m *Medium) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(r MetricsRecorder) MediumOption {
	return func(m *Medium) {
		m.metrics = r
	}
}

// WithRandom sets the PRNG stream used for the transmit-success trial.
func WithRandom(r Random) MediumOption {
	return func(m *Medium) {
		if r != nil {
			m.rng = r
		}
	}
}

// WithRadiationPattern sets the gain table shared by all directional
// antennas.
func WithRadiationPattern(p *RadiationPattern) MediumOption {
	return func(m *Medium) {
		m.pattern = p
	}
}

// NewMedium validates params and builds a medium over reg.
func NewMedium(reg *kb.Registry, params Params, opts ...MediumOption) (*Medium, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrConfiguration)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	m := &Medium{
		reg:      reg,
		params:   params,
		antennas: make(map[kb.Handle]*Antenna),
		baseRSSI: make(map[kb.Handle]float64),
		rng:      rand.New(rand.NewSource(1)),
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.cache = NewDestinationCache(reg, func() float64 { return m.params.MaxRange() })
	m.cache.onRebuild = func(took time.Duration, edges int) {
		if m.metrics != nil {
			m.metrics.CacheRebuilt(took, edges)
		}
		m.log.Debug(context.Background(), "destination cache rebuilt",
			logging.Int("edges", edges),
			logging.String("took", took.String()),
		)
	}
	m.recordRadioCount()
	return m, nil
}

// Registry returns the radio arena the medium reads from.
func (m *Medium) Registry() *kb.Registry { return m.reg }

// Cache exposes the potential-destination cache.
func (m *Medium) Cache() *DestinationCache { return m.cache }

// Params returns a copy of the current parameters.
func (m *Medium) Params() Params { return m.params }

//
// ---------- Radios ----------
//

// Register adds a radio to the registry and gives it an antenna. The
// destination cache goes stale through the registry generation.
func (m *Medium) Register(radio *model.Radio) (kb.Handle, error) {
	h, err := m.reg.Add(radio)
	if err != nil {
		return kb.NoHandle, err
	}
	m.antennas[h] = NewAntenna(h, m.pattern, &m.events, m.params.DefaultOrientationDeg)
	m.recordRadioCount()
	return h, nil
}

// Deregister removes a radio and everything the medium keeps for it.
// Callers must deregister a radio before dropping it.
func (m *Medium) Deregister(h kb.Handle) error {
	if err := m.reg.Remove(h); err != nil {
		return err
	}
	delete(m.antennas, h)
	delete(m.baseRSSI, h)
	m.cache.RequestRebuild()
	m.recordRadioCount()
	return nil
}

// Antenna returns the antenna of h, creating one for radios that were added
// to the registry directly. It returns nil for unknown handles.
func (m *Medium) Antenna(h kb.Handle) *Antenna {
	if a, ok := m.antennas[h]; ok {
		return a
	}
	if m.reg.Get(h) == nil {
		return nil
	}
	a := NewAntenna(h, m.pattern, &m.events, m.params.DefaultOrientationDeg)
	m.antennas[h] = a
	return a
}

// ResyncAntenna applies node-local antenna settings for h.
func (m *Medium) ResyncAntenna(h kb.Handle, s AntennaSettings) (bool, error) {
	a := m.Antenna(h)
	if a == nil {
		return false, fmt.Errorf("%w: handle %d", ErrUnknownRadio, h)
	}
	return a.Resync(s), nil
}

// SetBaseRSSI overrides the ambient signal floor of a radio.
func (m *Medium) SetBaseRSSI(h kb.Handle, dbm float64) {
	m.baseRSSI[h] = dbm
}

// BaseRSSI returns the ambient signal floor of a radio.
func (m *Medium) BaseRSSI(h kb.Handle) float64 {
	if v, ok := m.baseRSSI[h]; ok {
		return v
	}
	return SSNothing
}

// Gain returns the antenna gain of src toward dst, for visualization.
func (m *Medium) Gain(src, dst kb.Handle) float64 {
	srcPos, ok1 := m.reg.Position(src)
	dstPos, ok2 := m.reg.Position(dst)
	a := m.Antenna(src)
	if !ok1 || !ok2 || a == nil {
		return 0
	}
	g, _ := a.Gain(srcPos, dstPos)
	return g
}

//
// ---------- Parameters ----------
//

// SetParams replaces all parameters. Range changes invalidate the cache.
func (m *Medium) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	rangesChanged := p.TransmitRange != m.params.TransmitRange || p.InterferenceRange != m.params.InterferenceRange
	m.params = p
	if rangesChanged {
		m.cache.RequestRebuild()
	}
	return nil
}

// SetTxRange sets the transmitting range and invalidates the cache.
func (m *Medium) SetTxRange(r float64) error {
	p := m.params
	p.TransmitRange = r
	return m.SetParams(p)
}

// SetInterferenceRange sets the interference range and invalidates the
// cache.
func (m *Medium) SetInterferenceRange(r float64) error {
	p := m.params
	p.InterferenceRange = r
	return m.SetParams(p)
}

// SetTxSuccessRatio sets the probability that a transmission is heard at
// all.
func (m *Medium) SetTxSuccessRatio(ratio float64) error {
	p := m.params
	p.TxSuccessRatio = ratio
	return m.SetParams(p)
}

// SetRxSuccessRatio sets the reception success ratio at the edge of the
// transmitting range.
func (m *Medium) SetRxSuccessRatio(ratio float64) error {
	p := m.params
	p.RxSuccessRatio = ratio
	return m.SetParams(p)
}

// SetThresholds sets the receiver sensitivity and interference threshold.
func (m *Medium) SetThresholds(sensitivity, interference float64) error {
	p := m.params
	p.ReceiverSensitivity = sensitivity
	p.InterferenceThreshold = interference
	return m.SetParams(p)
}

//
// ---------- Probabilities ----------
//

// TxSuccessProbability is the chance that a transmission from src is heard
// by anyone.
func (m *Medium) TxSuccessProbability(kb.Handle) float64 {
	return m.params.TxSuccessRatio
}

// RxSuccessProbability is the chance that dst receives a transmission from
// src. It falls off with the squared distance ratio to the power-scaled
// transmitting range and is 0 beyond it, or when that range is 0.
func (m *Medium) RxSuccessProbability(src, dst kb.Handle) float64 {
	s := m.reg.Get(src)
	d := m.reg.Get(dst)
	if s == nil || d == nil {
		return 0
	}
	maxDist := m.params.TransmitRange * s.PowerRatio()
	if maxDist <= 0 {
		m.recordInvalidRange(context.Background(), src)
		return 0
	}
	dist := s.Position.DistanceTo(d.Position)
	ratio := (dist * dist) / (maxDist * maxDist)
	if ratio > 1 {
		return 0
	}
	return 1 - ratio*(1-m.params.RxSuccessRatio)
}

// SuccessProbability is TxSuccessProbability × RxSuccessProbability.
func (m *Medium) SuccessProbability(src, dst kb.Handle) float64 {
	return m.TxSuccessProbability(src) * m.RxSuccessProbability(src, dst)
}

//
// ---------- Link budget ----------
//

// LinkEvaluation is the scored link from one radio to another.
type LinkEvaluation struct {
	Distance       float64
	TxGainDB       float64
	RxGainDB       float64
	PathLossDB     float64
	SignalStrength float64
	TxLookup       LookupResult
	RxLookup       LookupResult
}

func (m *Medium) linkBudget() LinkBudget {
	return LinkBudget{
		FrequencyGHz:     m.params.FrequencyGHz,
		PropagationSpeed: m.params.PropagationSpeed,
		TransmitRange:    m.params.TransmitRange,
	}
}

// EvaluateLink scores the link from src to dst in the given context. It
// reports false when the link cannot be scored, which callers treat as "no
// effect on this radio".
func (m *Medium) EvaluateLink(ctx context.Context, bc BudgetContext, src, dst kb.Handle) (LinkEvaluation, bool) {
	s := m.reg.Get(src)
	d := m.reg.Get(dst)
	if s == nil || d == nil {
		return LinkEvaluation{}, false
	}
	return m.evaluate(ctx, bc, src, s, dst, d)
}

func (m *Medium) evaluate(ctx context.Context, bc BudgetContext, srcH kb.Handle, src *model.Radio, dstH kb.Handle, dst *model.Radio) (LinkEvaluation, bool) {
	ev := LinkEvaluation{Distance: src.Position.DistanceTo(dst.Position)}

	lb := m.linkBudget()
	switch bc {
	case BudgetRefresh:
		maxTxDist := m.params.TransmitRange * src.PowerRatio()
		pl, ok := lb.PathLossRefresh(ev.Distance, maxTxDist)
		if !ok {
			return ev, false
		}
		ev.PathLossDB = pl
	default:
		ev.PathLossDB = lb.PathLossCreation(ev.Distance)
	}

	var gtx, grx float64
	gtx, ev.TxLookup = m.Antenna(srcH).Gain(src.Position, dst.Position)
	grx, ev.RxLookup = m.Antenna(dstH).Gain(dst.Position, src.Position)
	// Refresh passes revisit the same pairs on every connection change;
	// only the creation path counts diagnostics.
	if bc == BudgetCreation {
		m.recordLookup(ctx, srcH, dstH, ev.TxLookup)
		m.recordLookup(ctx, dstH, srcH, ev.RxLookup)
	}

	ev.TxGainDB = GainDB(gtx)
	ev.RxGainDB = GainDB(grx)
	ev.SignalStrength = SignalStrength(src.OutputPowerDBm, ev.TxGainDB, ev.RxGainDB, ev.PathLossDB)
	return ev, true
}

//
// ---------- Connections ----------
//

// CreateConnection evaluates one transmission attempt from sender against
// the currently active connections. It never fails: a failed transmit
// trial, an unknown sender or an empty neighbourhood all yield a
// connection nobody hears.
func (m *Medium) CreateConnection(ctx context.Context, sender kb.Handle) *Connection {
	m.nextID++
	conn := newConnection(m.nextID, sender)

	src := m.reg.Get(sender)
	if src == nil {
		m.log.Warn(ctx, "transmission from unknown radio", logging.Int("radio", int(sender)))
		return conn
	}

	if p := m.TxSuccessProbability(sender); p < 1.0 && m.rng.Float64() >= p {
		if m.metrics != nil {
			m.metrics.TransmitTrialFailed()
		}
		m.log.Debug(ctx, "transmission failed transmit trial", logging.Int("radio", int(sender)))
		return conn
	}

	ratio := src.PowerRatio()
	conn.TransmitRange = m.params.TransmitRange * ratio
	conn.InterferenceRange = m.params.InterferenceRange * ratio

	candidates, ok := m.cache.PotentialDestinations(sender)
	if !ok {
		m.finishConnection(ctx, conn)
		return conn
	}

	for _, h := range candidates {
		recv := m.reg.Get(h)
		if recv == nil {
			continue
		}
		outcome := m.classify(ctx, conn, sender, src, h, recv)
		if m.metrics != nil {
			m.metrics.CandidateEvaluated(outcome)
		}
	}

	m.finishConnection(ctx, conn)
	return conn
}

// classify applies the per-candidate rules in priority order and records
// the result on conn.
func (m *Medium) classify(ctx context.Context, conn *Connection, srcH kb.Handle, src *model.Radio, h kb.Handle, recv *model.Radio) CandidateOutcome {
	// Dormant: it would be activated if the receiver switched channel.
	if model.ChannelMismatch(src.Channel, recv.Channel) {
		conn.AddInterfered(h)
		return OutcomeChannelMismatch
	}

	ev, ok := m.evaluate(ctx, BudgetCreation, srcH, src, h, recv)
	if !ok {
		return OutcomeNoEffect
	}

	switch {
	case ev.SignalStrength >= m.params.ReceiverSensitivity:
		switch {
		case !recv.On:
			conn.AddInterfered(h)
			recv.Interfered = true
		case recv.Interfered:
			conn.AddInterfered(h)
		case recv.Transmitting:
			conn.AddInterfered(h)
		case recv.Receiving:
			conn.AddInterfered(h)
			recv.Interfered = true
			for _, other := range m.active {
				if other.IsDestination(h) {
					other.AddInterfered(h)
				}
			}
		default:
			conn.AddDestination(h)
			return OutcomeDestination
		}
		return OutcomeInterfered
	case ev.SignalStrength >= m.params.InterferenceThreshold:
		conn.AddInterfered(h)
		recv.Interfered = true
		return OutcomeInterfered
	default:
		return OutcomeNoEffect
	}
}

func (m *Medium) finishConnection(ctx context.Context, conn *Connection) {
	if m.metrics != nil {
		m.metrics.ConnectionCreated(len(conn.destinations), len(conn.interfered))
	}
	m.log.Debug(ctx, "connection created",
		logging.Uint64("connection", conn.ID),
		logging.Int("source", int(conn.Source)),
		logging.Int("destinations", len(conn.destinations)),
		logging.Int("interfered", len(conn.interfered)),
	)
}

// ActiveConnections returns the active connections in activation order.
func (m *Medium) ActiveConnections() []*Connection {
	return append([]*Connection(nil), m.active...)
}

// ActivateConnection starts conn: the source transmits, destinations
// receive, interfered radios are flagged. Signal strengths are refreshed.
func (m *Medium) ActivateConnection(ctx context.Context, conn *Connection) {
	if conn == nil {
		return
	}
	for _, c := range m.active {
		if c == conn {
			return
		}
	}
	m.active = append(m.active, conn)

	if src := m.reg.Get(conn.Source); src != nil {
		src.Transmitting = true
	}
	for _, h := range conn.destinations {
		if r := m.reg.Get(h); r != nil {
			r.Receiving = true
		}
	}
	for _, h := range conn.interfered {
		if r := m.reg.Get(h); r != nil && !model.ChannelMismatch(m.channelOf(conn.Source), r.Channel) {
			r.Interfered = true
		}
	}

	m.connectionsChanged(ctx, conn, true)
}

// DeactivateConnection ends conn and refreshes signal strengths. Radio
// flags are cleared only when no other active connection still holds them.
func (m *Medium) DeactivateConnection(ctx context.Context, conn *Connection) {
	if conn == nil {
		return
	}
	idx := -1
	for i, c := range m.active {
		if c == conn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	m.active = append(m.active[:idx], m.active[idx+1:]...)

	if src := m.reg.Get(conn.Source); src != nil && !m.isTransmitting(conn.Source) {
		src.Transmitting = false
	}
	for _, h := range append(conn.Destinations(), conn.interfered...) {
		r := m.reg.Get(h)
		if r == nil {
			continue
		}
		receiving, interfered := m.heldBy(h)
		if !receiving {
			r.Receiving = false
		}
		if !interfered {
			r.Interfered = false
		}
	}

	m.connectionsChanged(ctx, conn, false)
}

func (m *Medium) connectionsChanged(ctx context.Context, conn *Connection, activated bool) {
	ev := Event{Kind: EventConnectionsChanged, Connection: conn, Radio: conn.Source, Activated: activated}
	if activated {
		ev.Destinations = conn.Destinations()
		ev.Interfered = conn.Interfered()
	}
	m.events.Push(ev)
	if m.metrics != nil {
		m.metrics.SetActiveConnections(len(m.active))
	}
	m.UpdateSignalStrengths(ctx)
}

func (m *Medium) isTransmitting(h kb.Handle) bool {
	for _, c := range m.active {
		if c.Source == h {
			return true
		}
	}
	return false
}

// heldBy reports whether any active connection still has h as a
// destination or as an interfered radio.
func (m *Medium) heldBy(h kb.Handle) (receiving, interfered bool) {
	for _, c := range m.active {
		if c.IsDestination(h) {
			receiving = true
		}
		if c.IsInterfered(h) {
			interfered = true
		}
	}
	return receiving, interfered
}

func (m *Medium) channelOf(h kb.Handle) int {
	if r := m.reg.Get(h); r != nil {
		return r.Channel
	}
	return model.AnyChannel
}

//
// ---------- Events and diagnostics ----------
//

// DrainEvents returns and clears queued events.
func (m *Medium) DrainEvents() []Event {
	return m.events.Drain()
}

func (m *Medium) recordLookup(ctx context.Context, self, target kb.Handle, res LookupResult) {
	if !res.Miss() {
		return
	}
	if m.metrics != nil {
		m.metrics.GainLookupMiss()
	}
	m.log.Debug(ctx, "gain lookup fell back",
		logging.Int("radio", int(self)),
		logging.Int("target", int(target)),
		logging.String("result", res.String()),
	)
}

func (m *Medium) recordInvalidRange(ctx context.Context, src kb.Handle) {
	if m.metrics != nil {
		m.metrics.InvalidRange()
	}
	m.log.Debug(ctx, "zero transmitting range; link ignored", logging.Int("radio", int(src)))
}

func (m *Medium) recordRadioCount() {
	if m.metrics != nil {
		m.metrics.SetRegisteredRadios(m.reg.Len())
	}
}
