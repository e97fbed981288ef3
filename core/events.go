package core

import "github.com/signalsfoundry/directional-radio-medium/kb"

// EventKind identifies an observable medium event.
type EventKind int

const (
	EventAntennaChanged EventKind = iota
	EventConnectionsChanged
	EventSignalStrengthUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventAntennaChanged:
		return "antenna_changed"
	case EventConnectionsChanged:
		return "connections_changed"
	case EventSignalStrengthUpdated:
		return "signal_strength_updated"
	default:
		return "unknown"
	}
}

// Event is queued by the medium for collaborators (visualization, loggers)
// to drain after each call. Radio is set for antenna and signal events,
// Connection for connection events.
type Event struct {
	Kind       EventKind
	Radio      kb.Handle
	Connection *Connection
	// Activated distinguishes activation from deactivation for
	// EventConnectionsChanged.
	Activated bool
	// Destinations and Interfered snapshot the connection's membership at
	// activation. A later connection in the same tick may demote a
	// destination to interfered on the live Connection.
	Destinations []kb.Handle
	Interfered   []kb.Handle
	// SignalStrength is the new value for EventSignalStrengthUpdated.
	SignalStrength float64
}

// EventQueue is an append-only queue drained by the caller. The zero value
// is ready to use; a nil queue drops events.
type EventQueue struct {
	events []Event
}

// Push appends an event.
func (q *EventQueue) Push(ev Event) {
	if q == nil {
		return
	}
	q.events = append(q.events, ev)
}

// Drain returns all queued events in order and empties the queue.
func (q *EventQueue) Drain() []Event {
	if q == nil || len(q.events) == 0 {
		return nil
	}
	out := q.events
	q.events = nil
	return out
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.events)
}
