package surface

import (
	"errors"
	"fmt"
)

var ErrInvalidEvent = errors.New("surface: invalid event")

// Descriptor is the provider snapshot of one surface for one update.
type Descriptor struct {
	ID        Identity
	Category  Category
	Alignment Alignment
	// Outline is the boundary polygon in anchor-local coordinates. The plane
	// is local XZ with Y up.
	Outline []Vec3
	Pose    Transform
}

// Clone returns a descriptor that shares no memory with d.
func (d Descriptor) Clone() Descriptor {
	out := d
	if d.Outline != nil {
		out.Outline = make([]Vec3, len(d.Outline))
		copy(out.Outline, d.Outline)
	}
	return out
}

type EventKind uint8

const (
	EventAdded EventKind = iota + 1
	EventUpdated
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k EventKind) Valid() bool {
	return k >= EventAdded && k <= EventRemoved
}

// Event is one item of the provider's lifecycle stream.
type Event struct {
	Kind       EventKind
	ID         Identity
	Descriptor *Descriptor
}

func Added(d Descriptor) Event {
	return Event{Kind: EventAdded, ID: d.ID, Descriptor: &d}
}

func Updated(d Descriptor) Event {
	return Event{Kind: EventUpdated, ID: d.ID, Descriptor: &d}
}

func Removed(id Identity) Event {
	return Event{Kind: EventRemoved, ID: id}
}

// Validate checks the envelope only; geometry is the builder's concern.
func (e Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, e.Kind)
	}
	if e.ID.IsNil() {
		return fmt.Errorf("%w: missing identity", ErrInvalidEvent)
	}
	if e.Kind == EventRemoved {
		return nil
	}
	if e.Descriptor == nil {
		return fmt.Errorf("%w: %s event missing descriptor", ErrInvalidEvent, e.Kind)
	}
	if e.Descriptor.ID != e.ID {
		return fmt.Errorf("%w: descriptor identity %s does not match %s", ErrInvalidEvent, e.Descriptor.ID, e.ID)
	}
	return nil
}
