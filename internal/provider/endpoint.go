package provider

import (
	"bufio"
	"context"
	"errors"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/surfacectl/internal/protocol"
	"github.com/danmuck/surfacectl/internal/protocol/session"
	"github.com/danmuck/surfacectl/internal/surface"
)

// Source produces one session's events. Script implements it.
type Source interface {
	Play(ctx context.Context, emit func(context.Context, surface.Event) error) error
}

// Endpoint is the provider side of a Stream: it accepts connections, runs the
// start handshake and plays its source into the accepted session. Only one
// session is active at a time.
type Endpoint struct {
	source   Source
	cfg      session.Config
	active   atomic.Bool
	sessions atomic.Uint64
	wg       sync.WaitGroup
}

func NewEndpoint(source Source, cfg session.Config) *Endpoint {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = session.DefaultConfig().HandshakeTimeout
	}
	return &Endpoint{source: source, cfg: cfg}
}

// Sessions counts accepted sessions.
func (e *Endpoint) Sessions() uint64 {
	return e.sessions.Load()
}

func (e *Endpoint) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

// Serve accepts until ctx ends, then waits for open sessions to finish.
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer e.wg.Wait()

	log.Info().Str("component", "endpoint").Str("addr", ln.Addr().String()).Msg("listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.handle(ctx, conn)
		}()
	}
}

func (e *Endpoint) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	_ = conn.SetDeadline(time.Now().Add(e.cfg.HandshakeTimeout))

	r := bufio.NewReader(conn)
	start, err := session.ReadStart(r)
	if err != nil {
		log.Warn().Str("component", "endpoint").Str("remote", remote).Err(err).Msg("invalid start")
		e.reject(conn, session.AckCodeInvalidStart, err.Error())
		return
	}
	if !start.DetectsSurfaces() {
		e.reject(conn, session.AckCodeUnsupportedProvider, session.ProviderSurfaceDetection+" not requested")
		return
	}
	if !e.active.CompareAndSwap(false, true) {
		e.reject(conn, session.AckCodeSessionActive, "session already active")
		return
	}
	defer e.active.Store(false)

	if err := session.WriteStartAck(conn, session.StartAck{
		Status:      session.AckStatusAccepted,
		Code:        session.AckCodeOK,
		Message:     "ok",
		TimestampMS: nowMS(),
	}); err != nil {
		log.Warn().Str("component", "endpoint").Str("remote", remote).Err(err).Msg("start ack failed")
		return
	}
	_ = conn.SetDeadline(time.Time{})
	e.sessions.Add(1)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sessCtx, func() { _ = conn.Close() })
	defer stop()

	log.Info().
		Str("component", "endpoint").
		Str("remote", remote).
		Str("session", start.Session).
		Strs("alignments", start.Alignments).
		Msg("session accepted")

	allowed := alignmentFilter(start.Alignments)
	w := bufio.NewWriter(conn)
	var seq uint64
	err = e.source.Play(sessCtx, func(_ context.Context, ev surface.Event) error {
		if ev.Descriptor != nil && !allowed(ev.Descriptor.Alignment) {
			return nil
		}
		seq++
		if err := protocol.Encode(w, protocol.EncodeSurfaceEvent(seq, ev, nowMS())); err != nil {
			return err
		}
		return w.Flush()
	})
	if err != nil {
		log.Warn().Str("component", "endpoint").Str("remote", remote).Err(err).Msg("session aborted")
		return
	}
	seq++
	if err := protocol.Encode(w, protocol.SessionEnd(seq)); err == nil {
		_ = w.Flush()
	}
	log.Info().Str("component", "endpoint").Str("remote", remote).Uint64("frames", seq).Msg("session complete")
}

func (e *Endpoint) reject(conn net.Conn, code uint32, msg string) {
	_ = session.WriteStartAck(conn, session.StartAck{
		Status:      session.AckStatusRejected,
		Code:        code,
		Message:     msg,
		TimestampMS: nowMS(),
	})
	log.Info().Str("component", "endpoint").Str("remote", conn.RemoteAddr().String()).Uint32("code", code).Msg(msg)
}

// alignmentFilter admits everything when no alignments were requested.
func alignmentFilter(requested []string) func(surface.Alignment) bool {
	if len(requested) == 0 {
		return func(surface.Alignment) bool { return true }
	}
	allowed := make([]surface.Alignment, 0, len(requested))
	for _, raw := range requested {
		if a, err := surface.ParseAlignment(raw); err == nil {
			allowed = append(allowed, a)
		}
	}
	return func(a surface.Alignment) bool {
		return slices.Contains(allowed, a)
	}
}

func nowMS() uint64 {
	return uint64(time.Now().UnixMilli())
}
