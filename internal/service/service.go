// Package service wires one surfacectl process: the configured anchor
// provider feeds the reconcile loop, which maintains the scene, while the
// admin server and the snapshot writer observe it.
package service

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/surfacectl/internal/config"
	"github.com/danmuck/surfacectl/internal/geometry"
	"github.com/danmuck/surfacectl/internal/journal"
	"github.com/danmuck/surfacectl/internal/observability"
	"github.com/danmuck/surfacectl/internal/protocol/session"
	"github.com/danmuck/surfacectl/internal/provider"
	"github.com/danmuck/surfacectl/internal/reconcile"
	"github.com/danmuck/surfacectl/internal/registry"
	"github.com/danmuck/surfacectl/internal/scene"
	"github.com/danmuck/surfacectl/internal/surface"
)

var ErrAlreadyServed = errors.New("service: already served")

const heartbeatInterval = 5 * time.Second

// Service runs one provider session end to end. It is single use.
type Service struct {
	cfg     config.Config
	root    *scene.Root
	reg     *registry.Registry
	loop    *reconcile.Loop
	store   *journal.Store
	source  reconcile.Provider
	publish func(context.Context) error
	served  bool
}

// New validates cfg and assembles the pipeline. The journal, when
// configured, is opened here and closed when Serve returns.
func New(cfg config.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:  cfg,
		root: scene.NewRoot(),
	}
	s.reg = registry.New(s.root, cfg.Reconcile.Parent)

	builder := geometry.NewPolygonBuilder(geometry.Limits{
		MaxVertices: cfg.Reconcile.MaxVertices,
		MinArea:     float32(cfg.Reconcile.MinArea),
	})
	s.loop = reconcile.NewLoop(reconcile.Config{
		Workers:       cfg.Reconcile.Workers,
		LaneDepth:     cfg.Reconcile.LaneDepth,
		TeardownOnEnd: cfg.Reconcile.TeardownOnEnd,
		Metrics:       observability.NewLoopMetrics(),
	}, s.reg, builder)

	if err := s.buildSource(); err != nil {
		if s.store != nil {
			_ = s.store.Close()
		}
		return nil, err
	}
	return s, nil
}

// Scene exposes the scene graph the registry attaches to.
func (s *Service) Scene() *scene.Root {
	return s.root
}

func (s *Service) Loop() *reconcile.Loop {
	return s.loop
}

// Run blocks until the session ends or the process is signalled.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve runs the loop and its sidecars until the provider session ends or
// ctx is cancelled. A provider that cannot start yields a
// *reconcile.SessionError.
func (s *Service) Serve(ctx context.Context) error {
	if s.served {
		return ErrAlreadyServed
	}
	s.served = true
	if s.store != nil {
		defer s.store.Close()
	}

	log.Info().
		Str("component", "service").
		Str("source", s.cfg.Session.Source).
		Str("provider", providerName(s.source)).
		Int("workers", s.cfg.Reconcile.Workers).
		Msg("service starting")

	g, gctx := errgroup.WithContext(ctx)
	sideCtx, stopSide := context.WithCancel(gctx)
	defer stopSide()

	g.Go(func() error {
		defer stopSide()
		err := s.loop.Run(gctx, s.source)
		if err == nil {
			s.finalSnapshot()
		}
		return err
	})
	if s.publish != nil {
		g.Go(func() error { return s.publish(sideCtx) })
	}
	if s.cfg.Admin.ListenAddr != "" {
		admin := observability.NewAdmin(s.cfg.Admin.ListenAddr, s.loop).RequireToken(s.cfg.Admin.Token)
		g.Go(func() error { return admin.Run(sideCtx) })
	}
	if s.cfg.Scene.SnapshotPath != "" {
		g.Go(func() error { return s.snapshotLoop(sideCtx) })
	}
	g.Go(func() error { return s.heartbeat(sideCtx) })

	err := g.Wait()
	attaches, detaches := s.root.Counters()
	stats := s.loop.Stats()
	log.Info().
		Str("component", "service").
		Uint64("events", stats.Events).
		Int("surfaces", s.root.Len()).
		Uint64("attaches", attaches).
		Uint64("detaches", detaches).
		Err(err).
		Msg("service stopped")
	return err
}

func (s *Service) buildSource() error {
	sc := s.cfg.Session
	if sc.JournalPath != "" {
		store, err := journal.Open(sc.JournalPath)
		if err != nil {
			return err
		}
		s.store = store
	}

	var src journal.Source
	switch sc.Source {
	case config.SourceReplay:
		replay := journal.NewReplay(s.store, sc.ReplaySession)
		replay.Speed = sc.ReplaySpeed
		s.source = replay
		return nil
	case config.SourceStream:
		src = provider.NewStream(provider.StreamConfig{
			Addr: sc.Addr,
			Start: session.Start{
				Session:    sc.Name,
				Providers:  []string{session.ProviderSurfaceDetection},
				Alignments: sc.Alignments,
			},
			Session: session.Config{
				DialTimeout:      sc.DialTimeout,
				HandshakeTimeout: sc.HandshakeTimeout,
				ReadTimeout:      sc.ReadTimeout,
			},
		})
	case config.SourceFeed:
		opts := provider.DefaultRoomScanOptions()
		opts.Seed = sc.ScanSeed
		opts.Interval = sc.ScanInterval
		feed := provider.NewFeed(0)
		scan := provider.RoomScan(opts)
		s.publish = func(ctx context.Context) error {
			defer feed.Close()
			err := scan.Play(ctx, feed.Publish)
			if errors.Is(err, provider.ErrFeedClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		src = feed
	default:
		return fmt.Errorf("%w: session.source %q", config.ErrInvalidConfig, sc.Source)
	}

	if s.store != nil {
		name := fmt.Sprintf("%s-%s", sc.Name, time.Now().UTC().Format("20060102T150405.000"))
		log.Info().Str("component", "service").Str("journal", s.store.Path()).Str("session", name).Msg("recording session")
		s.source = journal.NewTee(src, s.store, name)
		return nil
	}
	s.source = src
	return nil
}

func (s *Service) snapshotLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Scene.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			var reps []surface.Representation
			err := s.loop.Inspect(ctx, func(reg *registry.Registry) {
				reps = reg.Snapshot()
			})
			if err != nil {
				if errors.Is(err, reconcile.ErrNotRunning) || ctx.Err() != nil {
					continue
				}
				return err
			}
			if err := s.writeSnapshot(reps); err != nil {
				log.Warn().Str("component", "service").Err(err).Msg("snapshot failed")
			}
		}
	}
}

// finalSnapshot runs after the loop has returned, so the registry has no
// other writer.
func (s *Service) finalSnapshot() {
	if s.cfg.Scene.SnapshotPath == "" {
		return
	}
	if err := s.writeSnapshot(s.reg.Snapshot()); err != nil {
		log.Warn().Str("component", "service").Err(err).Msg("final snapshot failed")
	}
}

func (s *Service) writeSnapshot(reps []surface.Representation) error {
	opts := scene.DefaultRenderOptions()
	opts.Size = s.cfg.Scene.SnapshotSize
	opts.Scale = float32(s.cfg.Scene.SnapshotScale)
	if err := scene.WritePNG(s.cfg.Scene.SnapshotPath, scene.Render(reps, opts)); err != nil {
		return err
	}
	log.Debug().Str("component", "service").Str("path", s.cfg.Scene.SnapshotPath).Int("surfaces", len(reps)).Msg("snapshot written")
	return nil
}

func (s *Service) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := s.loop.Stats()
			log.Info().
				Str("component", "service").
				Str("loop", s.loop.State().String()).
				Uint64("events", stats.Events).
				Int64("surfaces", stats.Surfaces).
				Uint64("failures", stats.GeometryFailures).
				Msg("heartbeat")
		}
	}
}

func providerName(p reconcile.Provider) string {
	if named, ok := p.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", p)
}
