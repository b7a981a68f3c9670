package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/danmuck/surfacectl/internal/surface"
)

const (
	controlTypeStart    = "start"
	controlTypeStartAck = "start.ack"

	// ProviderSurfaceDetection is the capability every session must request.
	ProviderSurfaceDetection = "surface-detection"

	AckStatusAccepted = "accepted"
	AckStatusRejected = "rejected"

	maxControlLine = 128 * 1024
)

// Ack codes carried by start.ack.
const (
	AckCodeOK uint32 = iota
	AckCodeInvalidStart
	AckCodeUnsupportedProvider
	AckCodeSessionActive
)

var (
	ErrInvalidStart           = errors.New("session: invalid start")
	ErrInvalidStartAck        = errors.New("session: invalid start ack")
	ErrControlMessageTooLarge = errors.New("session: control message too large")
)

// Start is the client's session request.
type Start struct {
	Session    string   `json:"session"`
	Providers  []string `json:"providers"`
	Alignments []string `json:"alignments"`
}

func (s Start) Validate() error {
	if strings.TrimSpace(s.Session) == "" {
		return fmt.Errorf("%w: missing session", ErrInvalidStart)
	}
	if len(s.Providers) == 0 {
		return fmt.Errorf("%w: missing providers", ErrInvalidStart)
	}
	for i, p := range s.Providers {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: providers[%d] empty", ErrInvalidStart, i)
		}
	}
	for i, a := range s.Alignments {
		if _, err := surface.ParseAlignment(a); err != nil {
			return fmt.Errorf("%w: alignments[%d]: %v", ErrInvalidStart, i, err)
		}
	}
	return nil
}

// DetectsSurfaces reports whether the request includes surface detection.
func (s Start) DetectsSurfaces() bool {
	return slices.Contains(s.Providers, ProviderSurfaceDetection)
}

// StartAck is the server's answer to Start.
type StartAck struct {
	Status      string `json:"status"`
	Code        uint32 `json:"code"`
	Message     string `json:"message"`
	TimestampMS uint64 `json:"timestamp_ms"`
}

func (a StartAck) Validate() error {
	status := strings.TrimSpace(a.Status)
	if status != AckStatusAccepted && status != AckStatusRejected {
		return fmt.Errorf("%w: invalid status", ErrInvalidStartAck)
	}
	if a.TimestampMS == 0 {
		return fmt.Errorf("%w: missing timestamp_ms", ErrInvalidStartAck)
	}
	return nil
}

func (a StartAck) Accepted() bool {
	return a.Status == AckStatusAccepted
}

type controlEnvelope struct {
	Type  string    `json:"type"`
	Start *Start    `json:"start,omitempty"`
	Ack   *StartAck `json:"start_ack,omitempty"`
}

func WriteStart(w io.Writer, s Start) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{
		Type:  controlTypeStart,
		Start: &s,
	})
}

func ReadStart(r *bufio.Reader) (Start, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return Start{}, err
	}
	if env.Type != controlTypeStart || env.Start == nil {
		return Start{}, fmt.Errorf("%w: unexpected control type", ErrInvalidStart)
	}
	if err := env.Start.Validate(); err != nil {
		return Start{}, err
	}
	return *env.Start, nil
}

func WriteStartAck(w io.Writer, ack StartAck) error {
	if err := ack.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{
		Type: controlTypeStartAck,
		Ack:  &ack,
	})
}

func ReadStartAck(r *bufio.Reader) (StartAck, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return StartAck{}, err
	}
	if env.Type != controlTypeStartAck || env.Ack == nil {
		return StartAck{}, fmt.Errorf("%w: unexpected control type", ErrInvalidStartAck)
	}
	if err := env.Ack.Validate(); err != nil {
		return StartAck{}, err
	}
	return *env.Ack, nil
}

func writeControlEnvelope(w io.Writer, env controlEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}

func readControlEnvelope(r *bufio.Reader) (controlEnvelope, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxControlLine {
			return controlEnvelope{}, ErrControlMessageTooLarge
		}
		if err == nil {
			break
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return controlEnvelope{}, err
		}
	}
	var env controlEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return controlEnvelope{}, err
	}
	return env, nil
}
