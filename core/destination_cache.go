package core

import (
	"sort"
	"time"

	"github.com/signalsfoundry/directional-radio-medium/kb"
)

// Edge is a directed potential-destination pair.
type Edge struct {
	Source kb.Handle
	Dest   kb.Handle
}

// DestinationCache maps each transmitter to the radios within the superset
// range max(transmit, interference). It is rebuilt wholesale, lazily, on the
// first query after it was invalidated, either explicitly (range changes)
// or because the registry generation moved (add, remove, move).
type DestinationCache struct {
	reg      *kb.Registry
	maxRange func() float64

	edges map[kb.Handle][]kb.Handle
	count int

	dirty      bool
	generation uint64

	onRebuild func(took time.Duration, edges int)
}

// NewDestinationCache creates a dirty cache over reg. maxRange is evaluated
// at every rebuild.
func NewDestinationCache(reg *kb.Registry, maxRange func() float64) *DestinationCache {
	return &DestinationCache{
		reg:      reg,
		maxRange: maxRange,
		edges:    make(map[kb.Handle][]kb.Handle),
		dirty:    true,
	}
}

// RequestRebuild marks the cache dirty; the next query recomputes it.
func (c *DestinationCache) RequestRebuild() {
	c.dirty = true
}

// RebuildIfDirty recomputes the edge set if it is stale and reports
// whether it did. Calling it on a fresh cache is a no-op.
func (c *DestinationCache) RebuildIfDirty() bool {
	if !c.dirty && c.generation == c.reg.Generation() {
		return false
	}
	c.rebuild()
	return true
}

// PotentialDestinations returns the candidates for src in registration
// order. The boolean is false when src has no cached candidates.
func (c *DestinationCache) PotentialDestinations(src kb.Handle) ([]kb.Handle, bool) {
	c.RebuildIfDirty()
	dests := c.edges[src]
	if len(dests) == 0 {
		return nil, false
	}
	out := make([]kb.Handle, len(dests))
	copy(out, dests)
	return out, true
}

// Edges returns every cached edge ordered by source, then destination.
func (c *DestinationCache) Edges() []Edge {
	c.RebuildIfDirty()
	out := make([]Edge, 0, c.count)
	for src, dests := range c.edges {
		for _, dst := range dests {
			out = append(out, Edge{Source: src, Dest: dst})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Dest < out[j].Dest
	})
	return out
}

func (c *DestinationCache) rebuild() {
	start := time.Now()

	// Read the generation first: a move racing with the rebuild leaves the
	// cache stale rather than falsely fresh.
	gen := c.reg.Generation()
	handles := c.reg.Handles()
	limit := 0.0
	if c.maxRange != nil {
		limit = c.maxRange()
	}

	edges := make(map[kb.Handle][]kb.Handle, len(handles))
	count := 0
	for _, src := range handles {
		srcPos, ok := c.reg.Position(src)
		if !ok {
			continue
		}
		for _, dst := range handles {
			if dst == src {
				continue
			}
			dstPos, ok := c.reg.Position(dst)
			if !ok {
				continue
			}
			if srcPos.DistanceTo(dstPos) < limit {
				edges[src] = append(edges[src], dst)
				count++
			}
		}
	}

	c.edges = edges
	c.count = count
	c.dirty = false
	c.generation = gen

	if c.onRebuild != nil {
		c.onRebuild(time.Since(start), count)
	}
}
