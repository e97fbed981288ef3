package core

import (
	"context"

	"github.com/signalsfoundry/directional-radio-medium/internal/logging"
	"github.com/signalsfoundry/directional-radio-medium/kb"
	"github.com/signalsfoundry/directional-radio-medium/model"
)

// UpdateSignalStrengths recomputes the strength every radio observes from
// the active connections. Each radio starts at its base RSSI; sources are
// raised to SSStrong; destinations keep the strongest refresh-context value
// over all connections; interfered radios are pinned at SSWeak. Pinning runs
// after every source and destination has been applied, so interference from
// one connection wins over reception or transmission in another regardless
// of activation order. Pairs on mismatched channels are skipped. A
// SignalStrengthUpdated event is queued for every radio whose value changed.
func (m *Medium) UpdateSignalStrengths(ctx context.Context) {
	handles := m.reg.Handles()
	before := make(map[kb.Handle]float64, len(handles))
	for _, h := range handles {
		r := m.reg.Get(h)
		if r == nil {
			continue
		}
		before[h] = r.SignalStrength
		r.SignalStrength = m.BaseRSSI(h)
	}

	for _, conn := range m.active {
		src := m.reg.Get(conn.Source)
		if src == nil {
			continue
		}
		if src.SignalStrength < SSStrong {
			src.SignalStrength = SSStrong
		}

		for _, h := range conn.destinations {
			dst := m.reg.Get(h)
			if dst == nil || model.ChannelMismatch(src.Channel, dst.Channel) {
				continue
			}
			ev, ok := m.evaluate(ctx, BudgetRefresh, conn.Source, src, h, dst)
			if !ok {
				continue
			}
			if ev.SignalStrength > dst.SignalStrength {
				dst.SignalStrength = ev.SignalStrength
			}
		}
	}

	for _, conn := range m.active {
		src := m.reg.Get(conn.Source)
		if src == nil {
			continue
		}
		for _, h := range conn.interfered {
			intf := m.reg.Get(h)
			if intf == nil || model.ChannelMismatch(src.Channel, intf.Channel) {
				continue
			}
			if ev, ok := m.evaluate(ctx, BudgetRefresh, conn.Source, src, h, intf); ok {
				m.log.Debug(ctx, "interfered strength clamped",
					logging.Int("radio", int(h)),
					logging.Float64("computed", ev.SignalStrength),
					logging.Float64("clamped", SSWeak),
				)
			}
			// Interference is graded by membership, not by distance.
			intf.SignalStrength = SSWeak
			intf.Interfered = true
		}
	}

	for _, h := range handles {
		r := m.reg.Get(h)
		if r == nil {
			continue
		}
		if prev, ok := before[h]; ok && prev == r.SignalStrength {
			continue
		}
		m.events.Push(Event{Kind: EventSignalStrengthUpdated, Radio: h, SignalStrength: r.SignalStrength})
	}
}
