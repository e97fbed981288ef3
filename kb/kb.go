package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/directional-radio-medium/model"
)

var (
	ErrRadioNotFound = errors.New("radio not found")
	ErrRadioExists   = errors.New("radio already exists")
	ErrRadioBadInput = errors.New("invalid radio")
)

// Handle is a stable reference to a registered radio. Handles are never
// reused within a Registry, so a stale handle resolves to "not found"
// instead of a different radio.
type Handle int

// NoHandle is returned when registration fails.
const NoHandle Handle = -1

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventRadioAdded EventType = iota
	EventRadioRemoved
	EventRadioMoved
)

func (t EventType) String() string {
	switch t {
	case EventRadioAdded:
		return "added"
	case EventRadioRemoved:
		return "removed"
	case EventRadioMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when the set of radios or a position
// changes.
type Event struct {
	Type     EventType
	Handle   Handle
	Position model.Position
}

type entry struct {
	radio   *model.Radio
	version uint64
}

// Registry is the arena of radios taking part in a simulation. The medium,
// its destination cache and its connections refer to radios by Handle only.
//
// The registry lock guards the arena itself (membership, positions,
// versions). Radio state fields are mutated in place by the single-threaded
// simulation loop and the medium.
type Registry struct {
	mu sync.RWMutex

	radios []*entry
	byName map[string]Handle

	// generation is bumped on every add, remove and move so caches can
	// tell whether anything distance-relevant changed.
	generation uint64

	subs   map[int]func(Event)
	nextID int
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Handle),
		subs:   make(map[int]func(Event)),
	}
}

// Add registers a radio and returns its handle. Named radios must be unique.
func (r *Registry) Add(radio *model.Radio) (Handle, error) {
	if radio == nil {
		return NoHandle, fmt.Errorf("%w: nil radio", ErrRadioBadInput)
	}

	r.mu.Lock()
	if radio.Name != "" {
		if _, exists := r.byName[radio.Name]; exists {
			r.mu.Unlock()
			return NoHandle, fmt.Errorf("%w: %q", ErrRadioExists, radio.Name)
		}
	}
	h := Handle(len(r.radios))
	r.radios = append(r.radios, &entry{radio: radio, version: 1})
	if radio.Name != "" {
		r.byName[radio.Name] = h
	}
	r.generation++
	ev := Event{Type: EventRadioAdded, Handle: h, Position: radio.Position}
	subs := r.subscribersLocked()
	r.mu.Unlock()

	notify(subs, ev)
	return h, nil
}

// Remove deregisters a radio. Its handle is never handed out again.
func (r *Registry) Remove(h Handle) error {
	r.mu.Lock()
	e := r.entryLocked(h)
	if e == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: handle %d", ErrRadioNotFound, h)
	}
	if e.radio.Name != "" {
		delete(r.byName, e.radio.Name)
	}
	r.radios[h] = nil
	r.generation++
	ev := Event{Type: EventRadioRemoved, Handle: h, Position: e.radio.Position}
	subs := r.subscribersLocked()
	r.mu.Unlock()

	notify(subs, ev)
	return nil
}

// Get returns the radio behind h, or nil if h is unknown or removed.
func (r *Registry) Get(h Handle) *model.Radio {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.entryLocked(h); e != nil {
		return e.radio
	}
	return nil
}

// Lookup resolves a radio name to its handle.
func (r *Registry) Lookup(name string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[name]
	return h, ok
}

// Handles returns all live handles in registration order.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.radios))
	for i, e := range r.radios {
		if e != nil {
			out = append(out, Handle(i))
		}
	}
	return out
}

// Len returns the number of live radios.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.radios {
		if e != nil {
			n++
		}
	}
	return n
}

// Position returns the current position of h.
func (r *Registry) Position(h Handle) (model.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.entryLocked(h); e != nil {
		return e.radio.Position, true
	}
	return model.Position{}, false
}

// SetPosition moves a radio, bumps its version and notifies subscribers.
// Setting the same position is a no-op.
func (r *Registry) SetPosition(h Handle, pos model.Position) error {
	r.mu.Lock()
	e := r.entryLocked(h)
	if e == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: handle %d", ErrRadioNotFound, h)
	}
	if e.radio.Position == pos {
		r.mu.Unlock()
		return nil
	}
	e.radio.Position = pos
	e.version++
	r.generation++
	ev := Event{Type: EventRadioMoved, Handle: h, Position: pos}
	subs := r.subscribersLocked()
	r.mu.Unlock()

	notify(subs, ev)
	return nil
}

// Version returns the per-radio version, bumped on every move. Unknown
// handles report 0.
func (r *Registry) Version(h Handle) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.entryLocked(h); e != nil {
		return e.version
	}
	return 0
}

// Generation returns a counter bumped on every add, remove and move.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function that is safe to call more than once.
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// entryLocked returns the live entry for h. Caller must hold r.mu.
func (r *Registry) entryLocked(h Handle) *entry {
	if h < 0 || int(h) >= len(r.radios) {
		return nil
	}
	return r.radios[h]
}

// subscribersLocked snapshots the subscriber list in subscription order so
// callbacks can run outside the lock. Caller must hold r.mu.
func (r *Registry) subscribersLocked() []func(Event) {
	if len(r.subs) == 0 {
		return nil
	}
	out := make([]func(Event), 0, len(r.subs))
	for id := 0; id < r.nextID; id++ {
		if fn, ok := r.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
