package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Decode reads a single frame from r. A clean end of stream before any header
// byte returns io.EOF.
func Decode(r io.Reader) (*Message, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, ErrTruncated
	}

	head, err := parseHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	if head.PayloadLen > MaxPayload {
		return nil, ErrPayloadTooLarge
	}

	msg := &Message{Header: head}
	if head.PayloadLen == 0 {
		return msg, nil
	}

	payload := make([]byte, head.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrTruncated
	}

	fields, err := parseFields(payload)
	if err != nil {
		return nil, err
	}
	msg.Fields = fields
	return msg, nil
}

// Unmarshal decodes exactly one frame from b.
func Unmarshal(b []byte) (*Message, error) {
	r := bytes.NewReader(b)
	msg, err := Decode(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	if r.Len() != 0 {
		return nil, ErrInvalidLength
	}
	return msg, nil
}

func parseHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, ErrTruncated
	}
	h := Header{
		Magic:       binary.BigEndian.Uint32(buf[0:4]),
		Version:     binary.BigEndian.Uint16(buf[4:6]),
		Flags:       binary.BigEndian.Uint16(buf[6:8]),
		Sequence:    binary.BigEndian.Uint64(buf[8:16]),
		MessageType: MessageType(binary.BigEndian.Uint32(buf[16:20])),
		PayloadLen:  binary.BigEndian.Uint32(buf[20:24]),
	}
	if h.Magic != Magic {
		return Header{}, ErrInvalidMagic
	}
	if h.Version != Version {
		return Header{}, ErrUnsupportedVersion
	}
	return h, nil
}

func parseFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0, 8)
	for offset := 0; offset < len(payload); {
		remaining := len(payload) - offset
		if remaining < fieldHeaderSize {
			return nil, ErrTruncated
		}
		id := binary.BigEndian.Uint16(payload[offset : offset+2])
		ft := FieldType(payload[offset+2])
		length := binary.BigEndian.Uint32(payload[offset+3 : offset+7])
		offset += fieldHeaderSize
		if length > uint32(len(payload)-offset) {
			return nil, ErrInvalidLength
		}
		if length == 0 {
			fields = append(fields, Field{ID: id, Type: ft})
			continue
		}
		end := offset + int(length)
		value := make([]byte, length)
		copy(value, payload[offset:end])
		fields = append(fields, Field{ID: id, Type: ft, Value: value})
		offset = end
	}
	return fields, nil
}
