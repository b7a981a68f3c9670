package protocol

import (
	"errors"
	"fmt"

	"github.com/danmuck/surfacectl/internal/surface"
)

// Surface event field ids.
const (
	FieldIdentity    uint16 = 1
	FieldKind        uint16 = 2
	FieldCategory    uint16 = 3
	FieldAlignment   uint16 = 4
	FieldPose        uint16 = 5
	FieldOutline     uint16 = 6
	FieldTimestampMS uint16 = 7
)

var ErrInvalidSurfaceEvent = errors.New("protocol: invalid surface event")

// SurfaceEventSchema lists every known field. Descriptor fields are optional
// here because removals omit them; DecodeSurfaceEvent enforces them per kind.
var SurfaceEventSchema = Schema{
	MessageType: MessageSurfaceEvent,
	Fields: []FieldSpec{
		{ID: FieldIdentity, Type: FieldBytes, Required: true},
		{ID: FieldKind, Type: FieldUint8, Required: true},
		{ID: FieldCategory, Type: FieldUint8},
		{ID: FieldAlignment, Type: FieldUint8},
		{ID: FieldPose, Type: FieldFloat32List},
		{ID: FieldOutline, Type: FieldFloat32List},
		{ID: FieldTimestampMS, Type: FieldUint64},
	},
}

// SurfaceEvent is a decoded surface event frame.
type SurfaceEvent struct {
	Sequence    uint64
	TimestampMS uint64
	Event       surface.Event
}

// EncodeSurfaceEvent builds the frame for ev. A zero timestampMS omits the
// field.
func EncodeSurfaceEvent(seq uint64, ev surface.Event, timestampMS uint64) *Message {
	fields := []Field{
		NewFieldBytes(FieldIdentity, ev.ID.Bytes()),
		NewFieldUint8(FieldKind, uint8(ev.Kind)),
	}
	if d := ev.Descriptor; d != nil && ev.Kind != surface.EventRemoved {
		outline := make([]float32, 0, 3*len(d.Outline))
		for _, v := range d.Outline {
			outline = append(outline, v.X, v.Y, v.Z)
		}
		fields = append(fields,
			NewFieldUint8(FieldCategory, uint8(d.Category)),
			NewFieldUint8(FieldAlignment, uint8(d.Alignment)),
			NewFieldFloat32s(FieldPose, d.Pose[:]),
			NewFieldFloat32s(FieldOutline, outline),
		)
	}
	if timestampMS != 0 {
		fields = append(fields, NewFieldUint64(FieldTimestampMS, timestampMS))
	}
	return &Message{
		Header: Header{Sequence: seq, MessageType: MessageSurfaceEvent},
		Fields: fields,
	}
}

// SessionEnd builds the frame that closes a session stream.
func SessionEnd(seq uint64) *Message {
	return &Message{Header: Header{Sequence: seq, MessageType: MessageSessionEnd}}
}

// DecodeSurfaceEvent validates msg and maps it onto a surface event. Unknown
// fields are ignored.
func DecodeSurfaceEvent(msg *Message) (SurfaceEvent, error) {
	sem, err := ParseSemantic(msg, SurfaceEventSchema)
	if err != nil {
		return SurfaceEvent{}, err
	}

	id, err := surface.IdentityFromBytes(sem.Fields[FieldIdentity].Bytes)
	if err != nil {
		return SurfaceEvent{}, fmt.Errorf("%w: %v", ErrInvalidSurfaceEvent, err)
	}
	kind := surface.EventKind(sem.Fields[FieldKind].Uint8)
	if !kind.Valid() {
		return SurfaceEvent{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidSurfaceEvent, uint8(kind))
	}

	out := SurfaceEvent{
		Sequence:    sem.Header.Sequence,
		TimestampMS: sem.Fields[FieldTimestampMS].Uint64,
		Event:       surface.Event{Kind: kind, ID: id},
	}
	if kind == surface.EventRemoved {
		return out, nil
	}

	for _, fid := range []uint16{FieldCategory, FieldAlignment, FieldPose, FieldOutline} {
		if _, ok := sem.Fields[fid]; !ok {
			return SurfaceEvent{}, MissingFieldError{FieldID: fid}
		}
	}
	alignment := surface.Alignment(sem.Fields[FieldAlignment].Uint8)
	if alignment > surface.AlignmentVertical {
		return SurfaceEvent{}, fmt.Errorf("%w: unknown alignment %d", ErrInvalidSurfaceEvent, uint8(alignment))
	}
	pose := sem.Fields[FieldPose].Floats
	if len(pose) != len(surface.Transform{}) {
		return SurfaceEvent{}, fmt.Errorf("%w: pose has %d values", ErrInvalidSurfaceEvent, len(pose))
	}
	flat := sem.Fields[FieldOutline].Floats
	if len(flat)%3 != 0 {
		return SurfaceEvent{}, fmt.Errorf("%w: outline has %d values", ErrInvalidSurfaceEvent, len(flat))
	}

	d := &surface.Descriptor{
		ID:        id,
		Category:  surface.Category(sem.Fields[FieldCategory].Uint8),
		Alignment: alignment,
		Outline:   make([]surface.Vec3, len(flat)/3),
	}
	copy(d.Pose[:], pose)
	for i := range d.Outline {
		d.Outline[i] = surface.Vec3{X: flat[3*i], Y: flat[3*i+1], Z: flat[3*i+2]}
	}
	out.Event.Descriptor = d
	return out, nil
}
