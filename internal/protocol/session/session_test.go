package session

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/surfacectl/internal/testutil/testlog"
)

func TestStartRoundTrip(t *testing.T) {
	testlog.Start(t)
	start := Start{
		Session:    "room.scan",
		Providers:  []string{ProviderSurfaceDetection},
		Alignments: []string{"horizontal", "vertical"},
	}
	var buf bytes.Buffer
	if err := WriteStart(&buf, start); err != nil {
		t.Fatalf("write start: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("start must be newline terminated: %q", buf.String())
	}
	got, err := ReadStart(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read start: %v", err)
	}
	if got.Session != "room.scan" || len(got.Alignments) != 2 || !got.DetectsSurfaces() {
		t.Fatalf("unexpected start: %+v", got)
	}
}

func TestStartValidate(t *testing.T) {
	testlog.Start(t)
	cases := map[string]Start{
		"missing session":   {Providers: []string{ProviderSurfaceDetection}},
		"missing providers": {Session: "s"},
		"blank provider":    {Session: "s", Providers: []string{" "}},
		"bad alignment":     {Session: "s", Providers: []string{ProviderSurfaceDetection}, Alignments: []string{"diagonal"}},
	}
	for name, start := range cases {
		if err := start.Validate(); !errors.Is(err, ErrInvalidStart) {
			t.Fatalf("%s: expected ErrInvalidStart, got %v", name, err)
		}
	}
	other := Start{Session: "s", Providers: []string{"hand-tracking"}}
	if err := other.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if other.DetectsSurfaces() {
		t.Fatalf("hand-tracking session should not detect surfaces")
	}
}

func TestStartAckRoundTrip(t *testing.T) {
	testlog.Start(t)
	ack := StartAck{
		Status:      AckStatusRejected,
		Code:        AckCodeSessionActive,
		Message:     "session already active",
		TimestampMS: 1700000000000,
	}
	var buf bytes.Buffer
	if err := WriteStartAck(&buf, ack); err != nil {
		t.Fatalf("write ack: %v", err)
	}
	got, err := ReadStartAck(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if got.Accepted() || got.Code != AckCodeSessionActive || got.Message != "session already active" {
		t.Fatalf("unexpected ack: %+v", got)
	}
	if err := WriteStartAck(&buf, StartAck{Status: "maybe", TimestampMS: 1}); !errors.Is(err, ErrInvalidStartAck) {
		t.Fatalf("expected ErrInvalidStartAck, got %v", err)
	}
}

func TestReadStartRejectsWrongType(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := WriteStartAck(&buf, StartAck{Status: AckStatusAccepted, TimestampMS: 1}); err != nil {
		t.Fatalf("write ack: %v", err)
	}
	if _, err := ReadStart(bufio.NewReader(&buf)); !errors.Is(err, ErrInvalidStart) {
		t.Fatalf("expected ErrInvalidStart, got %v", err)
	}
}

func TestReadControlTooLarge(t *testing.T) {
	testlog.Start(t)
	line := strings.Repeat("x", maxControlLine+1) + "\n"
	_, err := ReadStart(bufio.NewReader(strings.NewReader(line)))
	if !errors.Is(err, ErrControlMessageTooLarge) {
		t.Fatalf("expected ErrControlMessageTooLarge, got %v", err)
	}
}

func TestReadStartLeavesFollowingBytes(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := WriteStart(&buf, Start{Session: "s", Providers: []string{ProviderSurfaceDetection}}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	buf.WriteString("FRAME")
	r := bufio.NewReader(&buf)
	if _, err := ReadStart(r); err != nil {
		t.Fatalf("read start: %v", err)
	}
	rest := make([]byte, 5)
	if _, err := r.Read(rest); err != nil || string(rest) != "FRAME" {
		t.Fatalf("trailing bytes lost: %q %v", rest, err)
	}
}
