package core

import "github.com/signalsfoundry/directional-radio-medium/kb"

// Connection is one transmission: a source, the radios that receive it
// successfully and the radios it interferes with. Both sets keep insertion
// order, and a radio is never in both.
type Connection struct {
	ID     uint64
	Source kb.Handle

	// TransmitRange and InterferenceRange are the power-scaled ranges at
	// the time the connection was created, kept for visualization.
	TransmitRange     float64
	InterferenceRange float64

	destinations []kb.Handle
	interfered   []kb.Handle
	destSet      map[kb.Handle]struct{}
	intfSet      map[kb.Handle]struct{}
}

func newConnection(id uint64, src kb.Handle) *Connection {
	return &Connection{
		ID:      id,
		Source:  src,
		destSet: make(map[kb.Handle]struct{}),
		intfSet: make(map[kb.Handle]struct{}),
	}
}

// AddDestination records a successful receiver. It is refused for radios
// already interfered in this connection and reports whether it was added.
func (c *Connection) AddDestination(h kb.Handle) bool {
	if _, ok := c.intfSet[h]; ok {
		return false
	}
	if _, ok := c.destSet[h]; ok {
		return false
	}
	c.destSet[h] = struct{}{}
	c.destinations = append(c.destinations, h)
	return true
}

// AddInterfered records an interfered radio. A radio that was a
// destination is demoted: it leaves the destination set.
func (c *Connection) AddInterfered(h kb.Handle) {
	if _, ok := c.destSet[h]; ok {
		delete(c.destSet, h)
		c.destinations = removeHandle(c.destinations, h)
	}
	if _, ok := c.intfSet[h]; ok {
		return
	}
	c.intfSet[h] = struct{}{}
	c.interfered = append(c.interfered, h)
}

// IsDestination reports whether h receives this connection.
func (c *Connection) IsDestination(h kb.Handle) bool {
	_, ok := c.destSet[h]
	return ok
}

// IsInterfered reports whether h is interfered by this connection.
func (c *Connection) IsInterfered(h kb.Handle) bool {
	_, ok := c.intfSet[h]
	return ok
}

// Destinations returns the successful receivers in insertion order.
func (c *Connection) Destinations() []kb.Handle {
	return append([]kb.Handle(nil), c.destinations...)
}

// Interfered returns the interfered radios in insertion order.
func (c *Connection) Interfered() []kb.Handle {
	return append([]kb.Handle(nil), c.interfered...)
}

// Empty reports whether nobody hears the connection at all.
func (c *Connection) Empty() bool {
	return len(c.destinations) == 0 && len(c.interfered) == 0
}

func removeHandle(hs []kb.Handle, h kb.Handle) []kb.Handle {
	out := hs[:0]
	for _, v := range hs {
		if v != h {
			out = append(out, v)
		}
	}
	return out
}
