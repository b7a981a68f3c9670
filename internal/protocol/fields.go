package protocol

import (
	"encoding/binary"
	"math"
)

// NewFieldUint8 creates a uint8 TLV field.
func NewFieldUint8(id uint16, v uint8) Field {
	return Field{ID: id, Type: FieldUint8, Value: []byte{v}}
}

// NewFieldUint64 creates a uint64 TLV field.
func NewFieldUint64(id uint16, v uint64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Field{ID: id, Type: FieldUint64, Value: buf}
}

// NewFieldBytes creates a bytes TLV field.
func NewFieldBytes(id uint16, v []byte) Field {
	buf := make([]byte, len(v))
	copy(buf, v)
	return Field{ID: id, Type: FieldBytes, Value: buf}
}

// NewFieldFloat32s creates a float32 list TLV field.
func NewFieldFloat32s(id uint16, v []float32) Field {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.BigEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return Field{ID: id, Type: FieldFloat32List, Value: buf}
}

// Uint8 returns the field value as uint8.
func (f Field) Uint8() (uint8, error) {
	if f.Type != FieldUint8 {
		return 0, ErrFieldTypeMismatch
	}
	if len(f.Value) != 1 {
		return 0, ErrInvalidLength
	}
	return f.Value[0], nil
}

// Uint64 returns the field value as uint64.
func (f Field) Uint64() (uint64, error) {
	if f.Type != FieldUint64 {
		return 0, ErrFieldTypeMismatch
	}
	if len(f.Value) != 8 {
		return 0, ErrInvalidLength
	}
	return binary.BigEndian.Uint64(f.Value), nil
}

// Bytes returns the field value as bytes.
func (f Field) Bytes() ([]byte, error) {
	if f.Type != FieldBytes {
		return nil, ErrFieldTypeMismatch
	}
	buf := make([]byte, len(f.Value))
	copy(buf, f.Value)
	return buf, nil
}

// Float32s returns the field value as a float32 list.
func (f Field) Float32s() ([]float32, error) {
	if f.Type != FieldFloat32List {
		return nil, ErrFieldTypeMismatch
	}
	if len(f.Value)%4 != 0 {
		return nil, ErrInvalidLength
	}
	out := make([]float32, len(f.Value)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(f.Value[4*i:]))
	}
	return out, nil
}
