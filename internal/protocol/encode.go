package protocol

import (
	"encoding/binary"
	"io"
)

const fieldHeaderSize = 2 + 1 + 4

// Encode writes msg to w as one frame.
func Encode(w io.Writer, msg *Message) error {
	buf, err := Marshal(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Marshal returns the frame bytes for msg. Magic, version and payload length
// are filled in from the fields.
func Marshal(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrInvalidLength
	}
	payloadLen, err := payloadLength(msg.Fields)
	if err != nil {
		return nil, err
	}

	head := msg.Header
	head.Magic = Magic
	head.Version = Version
	head.PayloadLen = payloadLen

	buf := make([]byte, 0, HeaderSize+int(payloadLen))
	buf = appendHeader(buf, head)
	for _, field := range msg.Fields {
		buf = appendField(buf, field)
	}
	return buf, nil
}

func payloadLength(fields []Field) (uint32, error) {
	var total int
	for _, field := range fields {
		total += fieldHeaderSize + len(field.Value)
		if total > MaxPayload {
			return 0, ErrPayloadTooLarge
		}
	}
	return uint32(total), nil
}

func appendHeader(buf []byte, h Header) []byte {
	buf = binary.BigEndian.AppendUint32(buf, h.Magic)
	buf = binary.BigEndian.AppendUint16(buf, h.Version)
	buf = binary.BigEndian.AppendUint16(buf, h.Flags)
	buf = binary.BigEndian.AppendUint64(buf, h.Sequence)
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.MessageType))
	buf = binary.BigEndian.AppendUint32(buf, h.PayloadLen)
	return buf
}

func appendField(buf []byte, field Field) []byte {
	buf = binary.BigEndian.AppendUint16(buf, field.ID)
	buf = append(buf, byte(field.Type))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(field.Value)))
	return append(buf, field.Value...)
}
