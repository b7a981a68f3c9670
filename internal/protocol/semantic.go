package protocol

import "fmt"

// FieldSpec declares one field a message type understands.
type FieldSpec struct {
	ID       uint16
	Type     FieldType
	Required bool
}

// Schema lists the fields of one message type.
type Schema struct {
	MessageType MessageType
	Fields      []FieldSpec
}

func (s Schema) lookup(id uint16) (FieldSpec, bool) {
	for _, spec := range s.Fields {
		if spec.ID == id {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// Value holds a decoded field; only the member matching Type is set.
type Value struct {
	Type   FieldType
	Uint8  uint8
	Uint64 uint64
	Bytes  []byte
	Floats []float32
}

// SemanticMessage is a message whose schema fields have been type checked.
type SemanticMessage struct {
	Header      Header
	MessageType MessageType
	Fields      map[uint16]Value
	// Unknown keeps fields outside the schema, in wire order.
	Unknown []Field
}

// ParseSemantic checks msg against schema. A schema field that repeats, has
// the wrong type or does not decode fails the whole message; fields outside
// the schema are kept aside.
func ParseSemantic(msg *Message, schema Schema) (*SemanticMessage, error) {
	if msg == nil {
		return nil, ErrInvalidLength
	}
	if msg.Header.MessageType != schema.MessageType {
		return nil, ErrMessageTypeMismatch
	}

	out := &SemanticMessage{
		Header:      msg.Header,
		MessageType: msg.Header.MessageType,
		Fields:      make(map[uint16]Value, len(schema.Fields)),
	}
	for _, field := range msg.Fields {
		spec, ok := schema.lookup(field.ID)
		if !ok {
			out.Unknown = append(out.Unknown, field)
			continue
		}
		if _, dup := out.Fields[field.ID]; dup {
			return nil, fmt.Errorf("field %d: %w: repeated", field.ID, ErrInvalidValue)
		}
		if field.Type != spec.Type {
			return nil, fmt.Errorf("field %d: %w", field.ID, ErrFieldTypeMismatch)
		}
		value, err := decodeValue(field)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", field.ID, err)
		}
		out.Fields[field.ID] = value
	}

	for _, spec := range schema.Fields {
		if _, ok := out.Fields[spec.ID]; spec.Required && !ok {
			return nil, MissingFieldError{FieldID: spec.ID}
		}
	}
	return out, nil
}

// MissingFieldError reports the first required field absent from a message.
type MissingFieldError struct {
	FieldID uint16
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("protocol: missing required field %d", e.FieldID)
}

func decodeValue(field Field) (v Value, err error) {
	v.Type = field.Type
	switch field.Type {
	case FieldUint8:
		v.Uint8, err = field.Uint8()
	case FieldUint64:
		v.Uint64, err = field.Uint64()
	case FieldBytes:
		v.Bytes, err = field.Bytes()
	case FieldFloat32List:
		v.Floats, err = field.Float32s()
	default:
		err = ErrFieldTypeMismatch
	}
	if err != nil {
		return Value{}, err
	}
	return v, nil
}
