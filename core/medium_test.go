package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/directional-radio-medium/kb"
	"github.com/signalsfoundry/directional-radio-medium/model"
)

// fixedRandom always draws the same value.
type fixedRandom float64

func (f fixedRandom) Float64() float64 { return float64(f) }

// noDrawRandom fails the test if the medium consumes a random draw.
type noDrawRandom struct{ t *testing.T }

func (r noDrawRandom) Float64() float64 {
	r.t.Helper()
	r.t.Fatalf("unexpected random draw")
	return 0
}

type countingRecorder struct {
	connections   int
	trialFailures int
	outcomes      map[CandidateOutcome]int
	lookupMisses  int
	invalidRanges int
	rebuilds      int
	active        int
	radios        int
}

func (c *countingRecorder) ConnectionCreated(int, int) { c.connections++ }
func (c *countingRecorder) TransmitTrialFailed()       { c.trialFailures++ }
func (c *countingRecorder) CandidateEvaluated(o CandidateOutcome) {
	if c.outcomes == nil {
		c.outcomes = make(map[CandidateOutcome]int)
	}
	c.outcomes[o]++
}
func (c *countingRecorder) GainLookupMiss()                 { c.lookupMisses++ }
func (c *countingRecorder) InvalidRange()                   { c.invalidRanges++ }
func (c *countingRecorder) CacheRebuilt(time.Duration, int) { c.rebuilds++ }
func (c *countingRecorder) SetActiveConnections(n int)      { c.active = n }
func (c *countingRecorder) SetRegisteredRadios(n int)       { c.radios = n }

func newRadio(name string, x, y float64) *model.Radio {
	return &model.Radio{
		Name:                    name,
		Position:                model.Position{X: x, Y: y},
		Channel:                 model.AnyChannel,
		OutputPowerIndicator:    31,
		OutputPowerIndicatorMax: 31,
		On:                      true,
		SignalStrength:          SSNothing,
	}
}

func newTestMedium(t *testing.T, params Params, opts ...MediumOption) *Medium {
	t.Helper()
	m, err := NewMedium(kb.NewRegistry(), params, opts...)
	if err != nil {
		t.Fatalf("NewMedium: %v", err)
	}
	return m
}

func mustRegister(t *testing.T, m *Medium, r *model.Radio) kb.Handle {
	t.Helper()
	h, err := m.Register(r)
	if err != nil {
		t.Fatalf("Register(%s): %v", r.Name, err)
	}
	return h
}

func TestCreateConnection_FullTxRatioNeverDraws(t *testing.T) {
	ctx := context.Background()
	m := newTestMedium(t, DefaultParams(), WithRandom(noDrawRandom{t}))
	a := mustRegister(t, m, newRadio("a", 0, 0))
	b := mustRegister(t, m, newRadio("b", 10, 0))
	c := mustRegister(t, m, newRadio("c", 0, 20))

	for i := 0; i < 5; i++ {
		conn := m.CreateConnection(ctx, a)
		if got := conn.Destinations(); len(got) != 2 || got[0] != b || got[1] != c {
			t.Fatalf("attempt %d: destinations = %v, want [%d %d]", i, got, b, c)
		}
	}
}

func TestCreateConnection_ZeroTxRatioIsSilent(t *testing.T) {
	ctx := context.Background()
	params := DefaultParams()
	params.TxSuccessRatio = 0

	for _, draw := range []float64{0, 0.5, 0.999} {
		rec := &countingRecorder{}
		m := newTestMedium(t, params, WithRandom(fixedRandom(draw)), WithMetricsRecorder(rec))
		a := mustRegister(t, m, newRadio("a", 0, 0))
		mustRegister(t, m, newRadio("b", 1, 0))

		conn := m.CreateConnection(ctx, a)
		if !conn.Empty() {
			t.Fatalf("draw %v: expected empty connection, got dest=%v intf=%v", draw, conn.Destinations(), conn.Interfered())
		}
		if rec.trialFailures != 1 {
			t.Fatalf("draw %v: trial failures = %d, want 1", draw, rec.trialFailures)
		}
	}
}

func TestCreateConnection_PartialTxRatio(t *testing.T) {
	ctx := context.Background()
	params := DefaultParams()
	params.TxSuccessRatio = 0.5

	m := newTestMedium(t, params, WithRandom(fixedRandom(0.4)))
	a := mustRegister(t, m, newRadio("a", 0, 0))
	mustRegister(t, m, newRadio("b", 1, 0))
	if conn := m.CreateConnection(ctx, a); conn.Empty() {
		t.Fatalf("draw below ratio should succeed")
	}

	m = newTestMedium(t, params, WithRandom(fixedRandom(0.6)))
	a = mustRegister(t, m, newRadio("a", 0, 0))
	mustRegister(t, m, newRadio("b", 1, 0))
	if conn := m.CreateConnection(ctx, a); !conn.Empty() {
		t.Fatalf("draw above ratio should fail")
	}
}

func TestCreateConnection_ChannelMismatchIsInterfered(t *testing.T) {
	ctx := context.Background()
	rec := &countingRecorder{}
	m := newTestMedium(t, DefaultParams(), WithMetricsRecorder(rec))
	src := newRadio("a", 0, 0)
	src.Channel = 11
	dst := newRadio("r", 1, 0)
	dst.Channel = 26
	a := mustRegister(t, m, src)
	r := mustRegister(t, m, dst)

	ev, ok := m.EvaluateLink(ctx, BudgetCreation, a, r)
	if !ok || ev.SignalStrength < m.Params().ReceiverSensitivity+40 {
		t.Fatalf("test setup: expected a very strong link, got %+v ok=%v", ev, ok)
	}

	conn := m.CreateConnection(ctx, a)
	if conn.IsDestination(r) {
		t.Fatalf("channel-mismatched radio became a destination")
	}
	if !conn.IsInterfered(r) {
		t.Fatalf("channel-mismatched radio should be interfered")
	}
	if dst.Interfered {
		t.Fatalf("dormant receiver should not be flagged interfered")
	}
	if rec.outcomes[OutcomeChannelMismatch] != 1 {
		t.Fatalf("outcomes = %v, want one channel_mismatch", rec.outcomes)
	}
}

func TestCreateConnection_AnyChannelMatchesEverything(t *testing.T) {
	m := newTestMedium(t, DefaultParams())
	src := newRadio("a", 0, 0)
	src.Channel = 11
	a := mustRegister(t, m, src)
	r := mustRegister(t, m, newRadio("r", 1, 0))

	if conn := m.CreateConnection(context.Background(), a); !conn.IsDestination(r) {
		t.Fatalf("radio on any channel should receive")
	}
}

func TestCreateConnection_ThresholdBands(t *testing.T) {
	ctx := context.Background()
	m := newTestMedium(t, DefaultParams())
	src := newRadio("a", 0, 0)
	src.OutputPowerDBm = -40
	a := mustRegister(t, m, src)

	near := newRadio("near", 5, 0) // about -94 dBm
	mid := newRadio("mid", 8, 0)   // about -98 dBm
	far := newRadio("far", 12, 0)  // about -102 dBm
	hNear := mustRegister(t, m, near)
	hMid := mustRegister(t, m, mid)
	hFar := mustRegister(t, m, far)

	conn := m.CreateConnection(ctx, a)
	if !conn.IsDestination(hNear) {
		t.Fatalf("radio above sensitivity should be a destination")
	}
	if !conn.IsInterfered(hMid) || !mid.Interfered {
		t.Fatalf("radio in the interference band should be interfered and flagged")
	}
	if conn.IsDestination(hFar) || conn.IsInterfered(hFar) || far.Interfered {
		t.Fatalf("radio below the interference threshold should be unaffected")
	}
}

func TestCreateConnection_ReceiverStates(t *testing.T) {
	ctx := context.Background()
	m := newTestMedium(t, DefaultParams())
	a := mustRegister(t, m, newRadio("a", 0, 0))

	off := newRadio("off", 5, 0)
	off.On = false
	busy := newRadio("busy", 0, 5)
	busy.Transmitting = true
	already := newRadio("already", -5, 0)
	already.Interfered = true

	hOff := mustRegister(t, m, off)
	hBusy := mustRegister(t, m, busy)
	hAlready := mustRegister(t, m, already)

	conn := m.CreateConnection(ctx, a)
	for _, h := range []kb.Handle{hOff, hBusy, hAlready} {
		if conn.IsDestination(h) || !conn.IsInterfered(h) {
			t.Fatalf("radio %d: want interfered only", h)
		}
	}
	if !off.Interfered {
		t.Fatalf("switched-off receiver should be flagged interfered")
	}
	if busy.Interfered {
		t.Fatalf("transmitting receiver should not be flagged interfered")
	}
}

func TestCreateConnection_CrossConnectionInterference(t *testing.T) {
	ctx := context.Background()
	m := newTestMedium(t, DefaultParams())
	a := mustRegister(t, m, newRadio("a", 0, 0))
	rRadio := newRadio("r", 10, 0)
	r := mustRegister(t, m, rRadio)
	b := mustRegister(t, m, newRadio("b", 20, 0))

	connA := m.CreateConnection(ctx, a)
	if !connA.IsDestination(r) {
		t.Fatalf("r should receive a")
	}
	m.ActivateConnection(ctx, connA)
	if !rRadio.Receiving {
		t.Fatalf("r should be receiving after activation")
	}

	connB := m.CreateConnection(ctx, b)
	if !connB.IsInterfered(r) || connB.IsDestination(r) {
		t.Fatalf("r should be interfered in b's connection")
	}
	if !connA.IsInterfered(r) || connA.IsDestination(r) {
		t.Fatalf("r should be interfered in a's connection after b arrived")
	}
	if !rRadio.Interfered {
		t.Fatalf("r should be flagged interfered")
	}
	if !connB.IsInterfered(a) {
		t.Fatalf("transmitting a should be interfered in b's connection")
	}
}

func TestActivationEventSnapshotsMembers(t *testing.T) {
	ctx := context.Background()
	m := newTestMedium(t, DefaultParams())
	a := mustRegister(t, m, newRadio("a", 0, 0))
	r := mustRegister(t, m, newRadio("r", 10, 0))
	b := mustRegister(t, m, newRadio("b", 20, 0))

	connA := m.CreateConnection(ctx, a)
	m.ActivateConnection(ctx, connA)
	connB := m.CreateConnection(ctx, b)
	m.ActivateConnection(ctx, connB)
	if connA.IsDestination(r) {
		t.Fatalf("test setup: r should have been demoted in a's connection")
	}

	var found bool
	for _, ev := range m.DrainEvents() {
		if ev.Kind != EventConnectionsChanged || ev.Connection != connA {
			continue
		}
		found = true
		if len(ev.Destinations) != 1 || ev.Destinations[0] != r {
			t.Fatalf("activation destinations = %v, want [%d]", ev.Destinations, r)
		}
		for _, h := range ev.Interfered {
			if h == r {
				t.Fatalf("r should not be interfered in the activation snapshot")
			}
		}
	}
	if !found {
		t.Fatalf("no activation event for a's connection")
	}
}

func TestCreateConnection_NoCandidates(t *testing.T) {
	m := newTestMedium(t, DefaultParams())
	a := mustRegister(t, m, newRadio("a", 0, 0))
	mustRegister(t, m, newRadio("far", 500, 0))

	conn := m.CreateConnection(context.Background(), a)
	if !conn.Empty() {
		t.Fatalf("expected no destinations beyond the cache range")
	}
	if conn.TransmitRange != 50 || conn.InterferenceRange != 100 {
		t.Fatalf("ranges = %v/%v, want 50/100", conn.TransmitRange, conn.InterferenceRange)
	}
}

func TestCreateConnection_UnknownSender(t *testing.T) {
	m := newTestMedium(t, DefaultParams())
	if conn := m.CreateConnection(context.Background(), kb.Handle(42)); !conn.Empty() {
		t.Fatalf("unknown sender should yield an empty connection")
	}
}

func TestCreateConnection_ScalesRangesByPower(t *testing.T) {
	m := newTestMedium(t, DefaultParams())
	src := newRadio("a", 0, 0)
	src.OutputPowerIndicator = 15
	src.OutputPowerIndicatorMax = 30
	a := mustRegister(t, m, src)

	conn := m.CreateConnection(context.Background(), a)
	if conn.TransmitRange != 25 || conn.InterferenceRange != 50 {
		t.Fatalf("ranges = %v/%v, want 25/50", conn.TransmitRange, conn.InterferenceRange)
	}
}

func TestActivateAndDeactivateConnection(t *testing.T) {
	ctx := context.Background()
	rec := &countingRecorder{}
	m := newTestMedium(t, DefaultParams(), WithMetricsRecorder(rec))
	aRadio := newRadio("a", 0, 0)
	rRadio := newRadio("r", 10, 0)
	a := mustRegister(t, m, aRadio)
	mustRegister(t, m, rRadio)

	conn := m.CreateConnection(ctx, a)
	m.DrainEvents()

	m.ActivateConnection(ctx, conn)
	if !aRadio.Transmitting || !rRadio.Receiving {
		t.Fatalf("flags after activate: tx=%v rx=%v", aRadio.Transmitting, rRadio.Receiving)
	}
	if aRadio.SignalStrength != SSStrong {
		t.Fatalf("source strength = %v, want %v", aRadio.SignalStrength, SSStrong)
	}
	if rec.active != 1 || len(m.ActiveConnections()) != 1 {
		t.Fatalf("active connections = %d/%d, want 1", rec.active, len(m.ActiveConnections()))
	}
	m.ActivateConnection(ctx, conn)
	if len(m.ActiveConnections()) != 1 {
		t.Fatalf("double activation should be ignored")
	}

	events := m.DrainEvents()
	if len(events) == 0 || events[0].Kind != EventConnectionsChanged || !events[0].Activated || events[0].Connection != conn {
		t.Fatalf("first event = %+v, want activation of conn", events)
	}

	m.DeactivateConnection(ctx, conn)
	if aRadio.Transmitting || rRadio.Receiving || rRadio.Interfered {
		t.Fatalf("flags after deactivate: tx=%v rx=%v intf=%v", aRadio.Transmitting, rRadio.Receiving, rRadio.Interfered)
	}
	if aRadio.SignalStrength != SSNothing || rRadio.SignalStrength != SSNothing {
		t.Fatalf("strengths after deactivate = %v/%v, want base", aRadio.SignalStrength, rRadio.SignalStrength)
	}
	if rec.active != 0 {
		t.Fatalf("active gauge = %d, want 0", rec.active)
	}
}

func TestDeactivateKeepsFlagsHeldByOtherConnections(t *testing.T) {
	ctx := context.Background()
	m := newTestMedium(t, DefaultParams())
	a := mustRegister(t, m, newRadio("a", 0, 0))
	rRadio := newRadio("r", 10, 0)
	mustRegister(t, m, rRadio)
	b := mustRegister(t, m, newRadio("b", 20, 0))

	connA := m.CreateConnection(ctx, a)
	m.ActivateConnection(ctx, connA)
	connB := m.CreateConnection(ctx, b)
	m.ActivateConnection(ctx, connB)

	m.DeactivateConnection(ctx, connA)
	if !rRadio.Interfered {
		t.Fatalf("r is still interfered by b")
	}
	m.DeactivateConnection(ctx, connB)
	if rRadio.Interfered || rRadio.Receiving {
		t.Fatalf("r flags should clear once no connection holds them")
	}
}

func TestRxSuccessProbability(t *testing.T) {
	params := DefaultParams()
	params.RxSuccessRatio = 0.5
	m := newTestMedium(t, params)
	a := mustRegister(t, m, newRadio("a", 0, 0))
	atZero := mustRegister(t, m, newRadio("zero", 0, 0))
	mid := mustRegister(t, m, newRadio("mid", 25, 0))
	edge := mustRegister(t, m, newRadio("edge", 50, 0))
	beyond := mustRegister(t, m, newRadio("beyond", 60, 0))

	cases := []struct {
		dst  kb.Handle
		want float64
	}{
		{atZero, 1},
		{mid, 0.875},
		{edge, 0.5},
		{beyond, 0},
	}
	for _, tc := range cases {
		if got := m.RxSuccessProbability(a, tc.dst); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("RxSuccessProbability(a, %d) = %v, want %v", tc.dst, got, tc.want)
		}
	}
	if got := m.SuccessProbability(a, mid); math.Abs(got-0.875) > 1e-12 {
		t.Fatalf("SuccessProbability = %v, want 0.875", got)
	}
}

func TestRxSuccessProbability_ZeroRangeIsZero(t *testing.T) {
	rec := &countingRecorder{}
	m := newTestMedium(t, DefaultParams(), WithMetricsRecorder(rec))
	src := newRadio("a", 0, 0)
	src.OutputPowerIndicator = 0
	a := mustRegister(t, m, src)
	b := mustRegister(t, m, newRadio("b", 0, 0))

	got := m.RxSuccessProbability(a, b)
	if got != 0 || math.IsNaN(got) {
		t.Fatalf("RxSuccessProbability with zero range = %v, want 0", got)
	}
	if rec.invalidRanges != 1 {
		t.Fatalf("invalid ranges = %d, want 1", rec.invalidRanges)
	}
}

func TestSetParamsValidatesAndInvalidatesCache(t *testing.T) {
	m := newTestMedium(t, DefaultParams())
	a := mustRegister(t, m, newRadio("a", 0, 0))
	b := mustRegister(t, m, newRadio("b", 150, 0))

	if _, ok := m.Cache().PotentialDestinations(a); ok {
		t.Fatalf("b should be out of range")
	}
	if err := m.SetInterferenceRange(200); err != nil {
		t.Fatalf("SetInterferenceRange: %v", err)
	}
	got, ok := m.Cache().PotentialDestinations(a)
	if !ok || len(got) != 1 || got[0] != b {
		t.Fatalf("after widening range: %v, %v", got, ok)
	}

	if err := m.SetTxSuccessRatio(1.5); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("SetTxSuccessRatio(1.5) error = %v, want ErrConfiguration", err)
	}
	if m.Params().TxSuccessRatio != 1 {
		t.Fatalf("invalid params must not be applied")
	}
}

func TestDeregisterDropsRadio(t *testing.T) {
	m := newTestMedium(t, DefaultParams())
	a := mustRegister(t, m, newRadio("a", 0, 0))
	b := mustRegister(t, m, newRadio("b", 5, 0))
	m.SetBaseRSSI(b, -80)

	if err := m.Deregister(b); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if _, ok := m.Cache().PotentialDestinations(a); ok {
		t.Fatalf("deregistered radio still cached")
	}
	if m.Antenna(b) != nil {
		t.Fatalf("deregistered radio still has an antenna")
	}
	if m.BaseRSSI(b) != SSNothing {
		t.Fatalf("base RSSI not cleared")
	}
	if err := m.Deregister(b); !errors.Is(err, kb.ErrRadioNotFound) {
		t.Fatalf("second Deregister error = %v, want ErrRadioNotFound", err)
	}
}

func TestDirectionalGainShapesLinks(t *testing.T) {
	ctx := context.Background()
	pattern, err := NewRadiationPattern(map[int]float64{0: 1.0, 90: 0.001, 180: 0.001, -90: 0.001})
	if err != nil {
		t.Fatalf("NewRadiationPattern: %v", err)
	}
	params := DefaultParams()
	params.DefaultOrientationDeg = 0
	m := newTestMedium(t, params, WithRadiationPattern(pattern))

	src := newRadio("a", 0, 0)
	src.OutputPowerDBm = -20
	a := mustRegister(t, m, src)
	ahead := mustRegister(t, m, newRadio("ahead", 10, 0))
	behind := mustRegister(t, m, newRadio("behind", -10, 0))
	for _, h := range []kb.Handle{ahead, behind} {
		if _, err := m.ResyncAntenna(h, AntennaSettings{Omni: true, BeamwidthDeg: 60}); err != nil {
			t.Fatalf("ResyncAntenna: %v", err)
		}
	}

	conn := m.CreateConnection(ctx, a)
	if !conn.IsDestination(ahead) {
		t.Fatalf("radio in the main lobe should receive")
	}
	if conn.IsDestination(behind) || conn.IsInterfered(behind) {
		t.Fatalf("radio behind the antenna should be unaffected")
	}
	if g := m.Gain(a, behind); g != 0.001 {
		t.Fatalf("Gain toward behind = %v, want 0.001", g)
	}
}
