package provider

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/surfacectl/internal/protocol"
	"github.com/danmuck/surfacectl/internal/protocol/session"
	"github.com/danmuck/surfacectl/internal/surface"
)

var ErrSessionRejected = errors.New("provider: session rejected")

type StreamConfig struct {
	Addr    string
	Start   session.Start
	Session session.Config
	// Buffer is the delivered event channel depth.
	Buffer int
}

// Stream is the network anchor provider client. Each Start dials, performs
// the start handshake and then decodes frames until the endpoint ends the
// session or the connection fails.
type Stream struct {
	cfg    StreamConfig
	active atomic.Bool
}

func NewStream(cfg StreamConfig) *Stream {
	def := session.DefaultConfig()
	if cfg.Session.DialTimeout <= 0 {
		cfg.Session.DialTimeout = def.DialTimeout
	}
	if cfg.Session.HandshakeTimeout <= 0 {
		cfg.Session.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	return &Stream{cfg: cfg}
}

func (s *Stream) Name() string {
	return "stream:" + s.cfg.Addr
}

func (s *Stream) Start(ctx context.Context) (<-chan surface.Event, error) {
	if !s.active.CompareAndSwap(false, true) {
		return nil, ErrSessionActive
	}
	conn, r, err := s.open(ctx)
	if err != nil {
		s.active.Store(false)
		return nil, err
	}
	out := make(chan surface.Event, s.cfg.Buffer)
	go s.read(ctx, conn, r, out)
	return out, nil
}

func (s *Stream) open(ctx context.Context) (net.Conn, *bufio.Reader, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Session.DialTimeout)
	defer cancel()
	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", s.cfg.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("provider: dial %s: %w", s.cfg.Addr, err)
	}

	_ = conn.SetDeadline(time.Now().Add(s.cfg.Session.HandshakeTimeout))
	if err := session.WriteStart(conn, s.cfg.Start); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("provider: send start: %w", err)
	}
	r := bufio.NewReader(conn)
	ack, err := session.ReadStartAck(r)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("provider: read start ack: %w", err)
	}
	if !ack.Accepted() {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: code=%d %s", ErrSessionRejected, ack.Code, ack.Message)
	}
	_ = conn.SetDeadline(time.Time{})

	log.Info().
		Str("component", "provider").
		Str("addr", s.cfg.Addr).
		Str("session", s.cfg.Start.Session).
		Msg("stream session accepted")
	return conn, r, nil
}

func (s *Stream) read(ctx context.Context, conn net.Conn, r *bufio.Reader, out chan<- surface.Event) {
	defer s.active.Store(false)
	defer close(out)
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var last uint64
	for {
		if s.cfg.Session.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Session.ReadTimeout))
		}
		msg, err := protocol.Decode(r)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				log.Info().Str("component", "provider").Str("addr", s.cfg.Addr).Msg("stream session cancelled")
			case errors.Is(err, io.EOF):
				log.Info().Str("component", "provider").Str("addr", s.cfg.Addr).Msg("stream closed by endpoint")
			default:
				log.Warn().Str("component", "provider").Str("addr", s.cfg.Addr).Err(err).Msg("frame error, ending session")
			}
			return
		}
		if seq := msg.Header.Sequence; seq != last+1 {
			log.Warn().Str("component", "provider").Uint64("want", last+1).Uint64("got", seq).Msg("sequence gap")
		}
		last = msg.Header.Sequence

		switch msg.Header.MessageType {
		case protocol.MessageSessionEnd:
			log.Info().Str("component", "provider").Str("addr", s.cfg.Addr).Uint64("frames", last).Msg("stream session ended")
			return
		case protocol.MessageSurfaceEvent:
			decoded, err := protocol.DecodeSurfaceEvent(msg)
			if err != nil {
				log.Warn().Str("component", "provider").Uint64("seq", last).Err(err).Msg("invalid surface event skipped")
				continue
			}
			select {
			case out <- decoded.Event:
			case <-ctx.Done():
				return
			}
		default:
			log.Warn().Str("component", "provider").Uint32("type", uint32(msg.Header.MessageType)).Msg("unknown message type skipped")
		}
	}
}
