package core

import (
	"math"
	"sync"

	"github.com/signalsfoundry/directional-radio-medium/kb"
)

// AntennaSource exposes the node-local antenna settings that firmware
// writes. The engine reads it at every tick boundary and resyncs antennas
// from it.
type AntennaSource interface {
	AntennaSettings(h kb.Handle, tick uint64) (AntennaSettings, bool)
}

// NodeAntenna is the node-local antenna state of one radio. A directional
// antenna with a non-zero RotationDegPerTick sweeps its orientation.
type NodeAntenna struct {
	Settings           AntennaSettings
	RotationDegPerTick float64
}

// AntennaTable is an in-memory AntennaSource keyed by radio handle.
type AntennaTable struct {
	mu    sync.RWMutex
	nodes map[kb.Handle]NodeAntenna
}

// NewAntennaTable returns an empty table.
func NewAntennaTable() *AntennaTable {
	return &AntennaTable{nodes: make(map[kb.Handle]NodeAntenna)}
}

// Set stores the node-local state of h.
func (t *AntennaTable) Set(h kb.Handle, n NodeAntenna) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[h] = n
}

// Delete forgets h.
func (t *AntennaTable) Delete(h kb.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, h)
}

// AntennaSettings returns the settings of h at tick, applying rotation.
func (t *AntennaTable) AntennaSettings(h kb.Handle, tick uint64) (AntennaSettings, bool) {
	t.mu.RLock()
	n, ok := t.nodes[h]
	t.mu.RUnlock()
	if !ok {
		return AntennaSettings{}, false
	}
	s := n.Settings
	if !s.Omni && n.RotationDegPerTick != 0 {
		s.OrientationDeg = math.Mod(s.OrientationDeg+n.RotationDegPerTick*float64(tick), 360)
		if s.OrientationDeg < 0 {
			s.OrientationDeg += 360
		}
	}
	return s, true
}
