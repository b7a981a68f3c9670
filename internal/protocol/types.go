package protocol

const (
	Magic      uint32 = 0x53524643
	Version    uint16 = 1
	HeaderSize        = 24

	// MaxPayload bounds one frame's TLV payload.
	MaxPayload = 4 << 20
)

// MessageType identifies the frame payload schema.
type MessageType uint32

const (
	MessageSurfaceEvent MessageType = 1
	MessageSessionEnd   MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case MessageSurfaceEvent:
		return "surface_event"
	case MessageSessionEnd:
		return "session_end"
	default:
		return "unknown"
	}
}

// Header is the fixed 24-byte frame header.
type Header struct {
	Magic       uint32
	Version     uint16
	Flags       uint16
	Sequence    uint64
	MessageType MessageType
	PayloadLen  uint32
}

// FieldType tags a TLV value encoding. Values are fixed on the wire; gaps
// belong to encodings this codec no longer produces.
type FieldType uint8

const (
	FieldUint8       FieldType = 1
	FieldUint64      FieldType = 4
	FieldBytes       FieldType = 7
	FieldFloat32List FieldType = 8
)

// Field is one TLV entry.
type Field struct {
	ID    uint16
	Type  FieldType
	Value []byte
}

// Message is a decoded frame.
type Message struct {
	Header Header
	Fields []Field
}

// Field returns the first field with id.
func (m *Message) Field(id uint16) (Field, bool) {
	for _, f := range m.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}
