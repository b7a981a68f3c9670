package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/surfacectl/internal/geometry"
	"github.com/danmuck/surfacectl/internal/registry"
	"github.com/danmuck/surfacectl/internal/surface"
)

// Provider is the anchor provider session boundary. Start opens a sensing
// session and returns its ordered event stream; the provider closes the
// stream when the session ends.
type Provider interface {
	Start(ctx context.Context) (<-chan surface.Event, error)
}

// Builder produces geometry for one descriptor. With Workers > 1 it is
// called from several goroutines at once.
type Builder interface {
	Build(d surface.Descriptor) (surface.Mesh, error)
}

type Config struct {
	// Workers is the number of geometry build lanes. 1 keeps the loop
	// strictly serial.
	Workers int
	// LaneDepth is the per-lane event buffer when Workers > 1.
	LaneDepth int
	// TeardownOnEnd detaches every representation when the session ends.
	TeardownOnEnd bool
	Metrics       Metrics
}

func DefaultConfig() Config {
	return Config{
		Workers:   1,
		LaneDepth: 16,
	}
}

// Loop drains one provider session into a registry.
type Loop struct {
	cfg      Config
	registry *registry.Registry
	builder  Builder
	metrics  Metrics
	stats    counters
	state    atomic.Int32
	// pending counts events handed to build lanes and not yet applied.
	pending atomic.Int64

	mu      sync.Mutex
	quit    chan struct{}
	inspect chan inspectRequest
}

type inspectRequest struct {
	fn   func(*registry.Registry)
	done chan struct{}
}

// mutation is a prepared event waiting for the writer.
type mutation struct {
	event surface.Event
	rep   *surface.Representation
	err   error
}

func NewLoop(cfg Config, reg *registry.Registry, builder Builder) *Loop {
	def := DefaultConfig()
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.LaneDepth < 1 {
		cfg.LaneDepth = def.LaneDepth
	}
	var metrics Metrics = nopMetrics{}
	if cfg.Metrics != nil {
		metrics = cfg.Metrics
	}
	return &Loop{
		cfg:      cfg,
		registry: reg,
		builder:  builder,
		metrics:  metrics,
		inspect:  make(chan inspectRequest),
	}
}

// Run starts a provider session and applies its events until the stream
// closes or ctx is cancelled. Session start failures return *SessionError;
// per-event failures never end the loop.
func (l *Loop) Run(ctx context.Context, provider Provider) error {
	quit, err := l.begin()
	if err != nil {
		return err
	}
	defer l.end(quit)

	name := providerName(provider)
	events, err := provider.Start(ctx)
	if err != nil {
		log.Error().
			Str("component", "reconcile").
			Str("provider", name).
			Err(err).
			Msg("session start failed")
		return &SessionError{Provider: name, Err: err}
	}
	log.Info().
		Str("component", "reconcile").
		Str("provider", name).
		Str("parent", l.registry.Parent()).
		Int("workers", l.cfg.Workers).
		Msg("session started")

	if l.cfg.Workers > 1 {
		l.drainLanes(ctx, events)
	} else {
		l.drainSerial(ctx, events)
	}

	if l.cfg.TeardownOnEnd {
		n := l.registry.Clear()
		l.publishSurfaces()
		log.Info().Str("component", "reconcile").Int("detached", n).Msg("session teardown")
	}
	stats := l.Stats()
	log.Info().
		Str("component", "reconcile").
		Str("provider", name).
		Uint64("events", stats.Events).
		Int64("surfaces", stats.Surfaces).
		Uint64("geometry_failures", stats.GeometryFailures).
		Msg("session ended")
	return nil
}

// Inspect runs fn on the writer goroutine, between events. fn must not
// retain the registry.
func (l *Loop) Inspect(ctx context.Context, fn func(*registry.Registry)) error {
	l.mu.Lock()
	quit := l.quit
	l.mu.Unlock()
	if quit == nil {
		return ErrNotRunning
	}
	req := inspectRequest{fn: fn, done: make(chan struct{})}
	select {
	case l.inspect <- req:
	case <-quit:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	<-req.done
	return nil
}

// State reports Processing while the writer applies an event or, with build
// lanes, while any dispatched event is still being built.
func (l *Loop) State() State {
	s := State(l.state.Load())
	if s == StateIdle && l.pending.Load() > 0 {
		return StateProcessing
	}
	return s
}

func (l *Loop) Stats() Stats {
	return l.stats.snapshot()
}

func (l *Loop) begin() (chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quit != nil {
		return nil, ErrAlreadyRunning
	}
	l.quit = make(chan struct{})
	l.pending.Store(0)
	l.state.Store(int32(StateIdle))
	return l.quit, nil
}

func (l *Loop) end(quit chan struct{}) {
	l.state.Store(int32(StateStopped))
	l.mu.Lock()
	defer l.mu.Unlock()
	close(quit)
	l.quit = nil
}

func (l *Loop) drainSerial(ctx context.Context, events <-chan surface.Event) {
	for {
		l.state.Store(int32(StateIdle))
		select {
		case <-ctx.Done():
			return
		case req := <-l.inspect:
			l.serveInspect(req)
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.state.Store(int32(StateProcessing))
			l.apply(l.prepare(ev))
		}
	}
}

func (l *Loop) serveInspect(req inspectRequest) {
	defer close(req.done)
	req.fn(l.registry)
}

// prepare classifies and builds. It touches no shared state and may run on
// any goroutine.
func (l *Loop) prepare(ev surface.Event) (m mutation) {
	m.event = ev
	if err := ev.Validate(); err != nil {
		m.err = err
		return m
	}
	if ev.Kind == surface.EventRemoved {
		return m
	}

	d := *ev.Descriptor
	style := surface.Classify(d.Category)
	mesh, err := l.build(d)
	if err != nil {
		m.err = err
		return m
	}
	m.rep = &surface.Representation{
		ID:    ev.ID,
		Mesh:  mesh,
		Style: style,
		Pose:  d.Pose,
	}
	return m
}

func (l *Loop) build(d surface.Descriptor) (mesh surface.Mesh, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &geometry.Error{ID: d.ID, Reason: fmt.Sprintf("builder panic: %v", r)}
		}
		l.metrics.ObserveBuild(time.Since(start), err == nil)
	}()
	return l.builder.Build(d)
}

// apply performs the registry mutation for one prepared event. Writer only.
func (l *Loop) apply(m mutation) {
	ev := m.event
	l.stats.events.Add(1)
	l.metrics.ObserveEvent(ev.Kind)

	if m.err != nil {
		l.reject(m)
		return
	}

	switch ev.Kind {
	case surface.EventAdded, surface.EventUpdated:
		outcome, err := l.registry.Upsert(ev.ID, m.rep)
		if err != nil {
			log.Error().
				Str("component", "reconcile").
				Stringer("surface", ev.ID).
				Err(err).
				Msg("registry rejected representation")
			return
		}
		switch outcome {
		case registry.OutcomeCreated:
			l.stats.created.Add(1)
			l.metrics.ObserveOutcome(OutcomeCreated)
		case registry.OutcomeReplaced:
			l.stats.replaced.Add(1)
			l.metrics.ObserveOutcome(OutcomeReplaced)
		}
		log.Debug().
			Str("component", "reconcile").
			Str("event", ev.Kind.String()).
			Stringer("surface", ev.ID).
			Str("style", string(m.rep.Style)).
			Uint64("generation", m.rep.Generation).
			Int("triangles", m.rep.Mesh.TriangleCount()).
			Msg(outcome.String())
	case surface.EventRemoved:
		if l.registry.Remove(ev.ID) {
			l.stats.removed.Add(1)
			l.metrics.ObserveOutcome(OutcomeRemoved)
			log.Debug().Str("component", "reconcile").Stringer("surface", ev.ID).Msg("removed")
		} else {
			l.stats.ignoredRemovals.Add(1)
			l.metrics.ObserveOutcome(OutcomeIgnoredRemoval)
			log.Debug().Str("component", "reconcile").Stringer("surface", ev.ID).Msg("removal of untracked surface ignored")
		}
	}
	l.publishSurfaces()
}

func (l *Loop) reject(m mutation) {
	ev := m.event
	if errors.Is(m.err, surface.ErrInvalidEvent) {
		l.stats.invalidEvents.Add(1)
		l.metrics.ObserveOutcome(OutcomeInvalidEvent)
		log.Warn().
			Str("component", "reconcile").
			Str("event", ev.Kind.String()).
			Err(m.err).
			Msg("event dropped")
		return
	}
	_, kept := l.registry.Get(ev.ID)
	l.stats.geometryFailures.Add(1)
	l.metrics.ObserveOutcome(OutcomeGeometryFailure)
	log.Warn().
		Str("component", "reconcile").
		Str("event", ev.Kind.String()).
		Stringer("surface", ev.ID).
		Bool("kept_previous", kept).
		Err(m.err).
		Msg("geometry build failed, event dropped")
}

func (l *Loop) publishSurfaces() {
	n := l.registry.Len()
	l.stats.surfaces.Store(int64(n))
	l.metrics.SetSurfaces(n)
}

func providerName(p Provider) string {
	if named, ok := p.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", p)
}
