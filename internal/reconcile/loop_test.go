package reconcile

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/surfacectl/internal/geometry"
	"github.com/danmuck/surfacectl/internal/registry"
	"github.com/danmuck/surfacectl/internal/scene"
	"github.com/danmuck/surfacectl/internal/surface"
	"github.com/danmuck/surfacectl/internal/testutil/testlog"
)

// sliceProvider replays a fixed event list and closes the stream.
type sliceProvider struct {
	events []surface.Event
	err    error
}

func (p *sliceProvider) Name() string { return "slice" }

func (p *sliceProvider) Start(context.Context) (<-chan surface.Event, error) {
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan surface.Event, len(p.events))
	for _, ev := range p.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// chanProvider hands the test an unbuffered stream it feeds by hand.
type chanProvider struct {
	ch      chan surface.Event
	started chan struct{}
}

func newChanProvider() *chanProvider {
	return &chanProvider{ch: make(chan surface.Event), started: make(chan struct{})}
}

func (p *chanProvider) Start(context.Context) (<-chan surface.Event, error) {
	close(p.started)
	return p.ch, nil
}

type panicBuilder struct{}

func (panicBuilder) Build(surface.Descriptor) (surface.Mesh, error) {
	panic("boom")
}

func square(id surface.Identity, c surface.Category, size float32) surface.Descriptor {
	return surface.Descriptor{
		ID:       id,
		Category: c,
		Outline: []surface.Vec3{
			{X: 0, Z: 0}, {X: size, Z: 0}, {X: size, Z: size}, {X: 0, Z: size},
		},
		Pose: surface.IdentityTransform(),
	}
}

func broken(id surface.Identity) surface.Descriptor {
	return surface.Descriptor{
		ID:       id,
		Category: surface.CategoryWall,
		Outline:  []surface.Vec3{{X: 0}, {X: 1}},
		Pose:     surface.IdentityTransform(),
	}
}

type harness struct {
	rec  *scene.Recorder
	reg  *registry.Registry
	loop *Loop
}

func newHarness(cfg Config) *harness {
	rec := scene.NewRecorder(nil)
	reg := registry.New(rec, "root")
	return &harness{
		rec:  rec,
		reg:  reg,
		loop: NewLoop(cfg, reg, geometry.NewPolygonBuilder(geometry.DefaultLimits())),
	}
}

func (h *harness) run(t *testing.T, events ...surface.Event) {
	t.Helper()
	if err := h.loop.Run(context.Background(), &sliceProvider{events: events}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestLoopAddUpdateRemove(t *testing.T) {
	testlog.Start(t)
	h := newHarness(DefaultConfig())
	a, b := surface.NewIdentity(), surface.NewIdentity()

	h.run(t,
		surface.Added(square(a, surface.CategoryFloor, 2)),
		surface.Added(square(b, surface.CategoryWall, 1)),
		surface.Updated(square(a, surface.CategoryFloor, 3)),
		surface.Removed(b),
	)

	if got := h.rec.Count(scene.OpAttach); got != 3 {
		t.Fatalf("expected 3 attaches, got %d", got)
	}
	if got := h.rec.Count(scene.OpDetach); got != 2 {
		t.Fatalf("expected 2 detaches, got %d", got)
	}
	if h.reg.Len() != 1 {
		t.Fatalf("expected one tracked surface, got %d", h.reg.Len())
	}
	rep, ok := h.reg.Get(a)
	if !ok {
		t.Fatalf("surface A missing")
	}
	if rep.Style != surface.StyleFloor || rep.Generation != 2 {
		t.Fatalf("unexpected representation: style=%s generation=%d", rep.Style, rep.Generation)
	}
	if !h.rec.IsAttached(rep) {
		t.Fatalf("current representation of A not attached")
	}
	attached := h.rec.Attached()
	if len(attached) != 1 || attached[a] != 1 {
		t.Fatalf("unexpected attached set: %v", attached)
	}

	stats := h.loop.Stats()
	want := Stats{Events: 4, Created: 2, Replaced: 1, Removed: 1, Surfaces: 1}
	if stats != want {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if h.loop.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", h.loop.State())
	}
}

func posed(id surface.Identity, pose surface.Transform) surface.Descriptor {
	d := square(id, surface.CategoryFloor, 1)
	d.Pose = pose
	return d
}

func TestLoopCarriesPoseAndReplacesInOrder(t *testing.T) {
	testlog.Start(t)
	h := newHarness(DefaultConfig())
	p := newChanProvider()
	id := surface.NewIdentity()
	p1, p2 := surface.Translation(1, 0, 0), surface.Translation(2, 0, 0)

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(context.Background(), p) }()
	<-p.started

	current := func() (surface.Representation, bool) {
		var rep surface.Representation
		var ok bool
		if err := h.loop.Inspect(context.Background(), func(reg *registry.Registry) {
			var got *surface.Representation
			if got, ok = reg.Get(id); ok {
				rep = *got
			}
		}); err != nil {
			t.Fatalf("inspect failed: %v", err)
		}
		return rep, ok
	}

	p.ch <- surface.Added(posed(id, p1))
	rep, ok := current()
	if !ok || rep.Pose != p1 || rep.Style != surface.StyleFloor {
		t.Fatalf("after add: want floor at %v, got %+v (tracked=%v)", p1.Position(), rep.Pose.Position(), ok)
	}

	p.ch <- surface.Updated(posed(id, p2))
	rep, ok = current()
	if !ok || rep.Pose != p2 || rep.Generation != 2 {
		t.Fatalf("after update: want generation 2 at %v, got generation %d at %v", p2.Position(), rep.Generation, rep.Pose.Position())
	}

	p.ch <- surface.Removed(id)
	if _, ok := current(); ok {
		t.Fatalf("surface still tracked after removal")
	}
	close(p.ch)
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}

	calls := h.rec.Calls()
	want := []scene.Op{scene.OpAttach, scene.OpDetach, scene.OpAttach, scene.OpDetach}
	if len(calls) != len(want) {
		t.Fatalf("expected %d host calls, got %d: %+v", len(want), len(calls), calls)
	}
	for i, op := range want {
		if calls[i].Op != op || calls[i].ID != id {
			t.Fatalf("call %d: want %s got %s", i, op, calls[i].Op)
		}
	}
	if calls[0].Rep.Pose != p1 || calls[1].Rep != calls[0].Rep {
		t.Fatalf("update must detach the first representation")
	}
	if calls[2].Rep.Pose != p2 || calls[2].Parent != "root" || calls[3].Rep != calls[2].Rep {
		t.Fatalf("second representation attached or detached incorrectly")
	}
}

func TestLoopGeometryFailureIsolated(t *testing.T) {
	testlog.Start(t)
	h := newHarness(DefaultConfig())
	a, b := surface.NewIdentity(), surface.NewIdentity()

	h.run(t,
		surface.Added(square(a, surface.CategoryTable, 1)),
		surface.Added(broken(b)),
		surface.Updated(square(a, surface.CategoryTable, 2)),
	)

	if _, ok := h.reg.Get(b); ok {
		t.Fatalf("failed surface B should not be tracked")
	}
	if len(h.rec.CallsFor(b)) != 0 {
		t.Fatalf("failed surface B reached the host")
	}
	rep, ok := h.reg.Get(a)
	if !ok || rep.Generation != 2 {
		t.Fatalf("surface A should be at generation 2, got %+v", rep)
	}
	if got := h.loop.Stats().GeometryFailures; got != 1 {
		t.Fatalf("expected 1 geometry failure, got %d", got)
	}
}

func TestLoopFailedUpdateKeepsPrevious(t *testing.T) {
	testlog.Start(t)
	h := newHarness(DefaultConfig())
	a := surface.NewIdentity()

	h.run(t,
		surface.Added(square(a, surface.CategoryCeiling, 1)),
		surface.Updated(broken(a)),
	)

	rep, ok := h.reg.Get(a)
	if !ok || rep.Generation != 1 || rep.Style != surface.StyleCeiling {
		t.Fatalf("previous representation should survive, got %+v", rep)
	}
	if !h.rec.IsAttached(rep) {
		t.Fatalf("previous representation detached")
	}
	if got := h.rec.Count(scene.OpDetach); got != 0 {
		t.Fatalf("expected no detaches, got %d", got)
	}
}

func TestLoopIgnoresUnknownRemoval(t *testing.T) {
	testlog.Start(t)
	h := newHarness(DefaultConfig())
	a := surface.NewIdentity()

	h.run(t,
		surface.Removed(surface.NewIdentity()),
		surface.Added(square(a, surface.CategoryFloor, 1)),
		surface.Removed(a),
		surface.Removed(a),
	)

	if got := len(h.rec.Calls()); got != 2 {
		t.Fatalf("expected one attach and one detach, got %d calls", got)
	}
	stats := h.loop.Stats()
	if stats.IgnoredRemovals != 2 || stats.Removed != 1 || stats.Surfaces != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestLoopDropsInvalidEvents(t *testing.T) {
	testlog.Start(t)
	h := newHarness(DefaultConfig())
	a := surface.NewIdentity()

	h.run(t,
		surface.Event{Kind: surface.EventAdded},
		surface.Event{Kind: surface.EventUpdated, ID: a},
		surface.Event{Kind: 42, ID: a},
		surface.Added(square(a, surface.CategoryOther, 1)),
	)

	stats := h.loop.Stats()
	if stats.InvalidEvents != 3 || stats.Created != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	rep, ok := h.reg.Get(a)
	if !ok || rep.Style != surface.StyleDefault {
		t.Fatalf("expected default-styled surface, got %+v", rep)
	}
}

func TestLoopBuilderPanicIsGeometryFailure(t *testing.T) {
	testlog.Start(t)
	rec := scene.NewRecorder(nil)
	reg := registry.New(rec, "root")
	loop := NewLoop(DefaultConfig(), reg, panicBuilder{})

	err := loop.Run(context.Background(), &sliceProvider{events: []surface.Event{
		surface.Added(square(surface.NewIdentity(), surface.CategoryFloor, 1)),
	}})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := loop.Stats().GeometryFailures; got != 1 {
		t.Fatalf("expected 1 geometry failure, got %d", got)
	}
	if reg.Len() != 0 || len(rec.Calls()) != 0 {
		t.Fatalf("panicking build must not reach the host")
	}
}

func TestLoopSessionStartFailure(t *testing.T) {
	testlog.Start(t)
	h := newHarness(DefaultConfig())
	cause := errors.New("sensor unavailable")

	err := h.loop.Run(context.Background(), &sliceProvider{err: cause})
	var sessionErr *SessionError
	if !errors.As(err, &sessionErr) {
		t.Fatalf("expected *SessionError, got %v", err)
	}
	if sessionErr.Provider != "slice" {
		t.Fatalf("unexpected provider name: %q", sessionErr.Provider)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("session error should unwrap to cause")
	}
	if len(h.rec.Calls()) != 0 {
		t.Fatalf("no host calls expected on start failure")
	}
}

func TestLoopTeardownOnEnd(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.TeardownOnEnd = true
	h := newHarness(cfg)

	h.run(t,
		surface.Added(square(surface.NewIdentity(), surface.CategoryFloor, 1)),
		surface.Added(square(surface.NewIdentity(), surface.CategoryWall, 1)),
	)

	if h.reg.Len() != 0 {
		t.Fatalf("registry should be empty after teardown")
	}
	if len(h.rec.Attached()) != 0 {
		t.Fatalf("host should have nothing attached after teardown")
	}
	if h.loop.Stats().Surfaces != 0 {
		t.Fatalf("surface gauge not reset")
	}
}

func TestLoopInspectAndAlreadyRunning(t *testing.T) {
	testlog.Start(t)
	h := newHarness(DefaultConfig())
	p := newChanProvider()
	a := surface.NewIdentity()

	if err := h.loop.Inspect(context.Background(), func(*registry.Registry) {}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before run, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(context.Background(), p) }()
	<-p.started

	if err := h.loop.Run(context.Background(), &sliceProvider{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	p.ch <- surface.Added(square(a, surface.CategoryWall, 1))

	var ids []surface.Identity
	if err := h.loop.Inspect(context.Background(), func(reg *registry.Registry) {
		ids = reg.IDs()
	}); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != a {
		t.Fatalf("unexpected ids: %v", ids)
	}

	close(p.ch)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop after stream close")
	}
	if err := h.loop.Inspect(context.Background(), func(*registry.Registry) {}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after run, got %v", err)
	}
}

func TestLoopCancelReturnsNil(t *testing.T) {
	testlog.Start(t)
	h := newHarness(DefaultConfig())
	p := newChanProvider()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx, p) }()
	<-p.started
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop on cancel")
	}
}

// gateBuilder holds every build until release is closed.
type gateBuilder struct {
	entered chan struct{}
	release chan struct{}
	next    Builder
}

func (b *gateBuilder) Build(d surface.Descriptor) (surface.Mesh, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.next.Build(d)
}

func TestLanesReportProcessingWhileBuilding(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Workers = 2
	gate := &gateBuilder{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		next:    geometry.NewPolygonBuilder(geometry.DefaultLimits()),
	}
	reg := registry.New(scene.NewRecorder(nil), "root")
	loop := NewLoop(cfg, reg, gate)
	p := newChanProvider()

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background(), p) }()
	<-p.started

	p.ch <- surface.Added(square(surface.NewIdentity(), surface.CategoryFloor, 1))
	<-gate.entered
	if got := loop.State(); got != StateProcessing {
		t.Fatalf("expected processing while a lane builds, got %s", got)
	}
	close(gate.release)

	deadline := time.Now().Add(2 * time.Second)
	for loop.Stats().Events != 1 || loop.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatalf("loop did not settle: state=%s stats=%+v", loop.State(), loop.Stats())
		}
		time.Sleep(time.Millisecond)
	}

	close(p.ch)
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := loop.State(); got != StateStopped {
		t.Fatalf("expected stopped, got %s", got)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected one tracked surface, got %d", reg.Len())
	}
}

func TestLanesMatchSerial(t *testing.T) {
	testlog.Start(t)
	events := randomStream(rand.New(rand.NewSource(7)), 12, 600)

	serial := newHarness(DefaultConfig())
	serial.run(t, events...)

	cfg := DefaultConfig()
	cfg.Workers = 4
	cfg.LaneDepth = 2
	laned := newHarness(cfg)
	laned.run(t, events...)

	want := serial.reg.Snapshot()
	got := laned.reg.Snapshot()
	if len(want) != len(got) {
		t.Fatalf("surface count mismatch: serial=%d lanes=%d", len(want), len(got))
	}
	for i := range want {
		if want[i].ID != got[i].ID ||
			want[i].Generation != got[i].Generation ||
			want[i].Style != got[i].Style ||
			want[i].Mesh.Area != got[i].Mesh.Area {
			t.Fatalf("surface %s diverged: serial=%+v lanes=%+v", want[i].ID, want[i], got[i])
		}
	}
	if serial.loop.Stats() != laned.loop.Stats() {
		t.Fatalf("stats diverged: serial=%+v lanes=%+v", serial.loop.Stats(), laned.loop.Stats())
	}
	if len(laned.rec.Attached()) != laned.reg.Len() {
		t.Fatalf("attached set does not match registry")
	}
}

func randomStream(rng *rand.Rand, identities, n int) []surface.Event {
	ids := make([]surface.Identity, identities)
	for i := range ids {
		ids[i] = surface.NewIdentity()
	}
	categories := []surface.Category{
		surface.CategoryFloor, surface.CategoryWall, surface.CategoryTable, surface.CategoryCeiling, surface.CategoryOther,
	}
	events := make([]surface.Event, 0, n)
	for k := 0; k < n; k++ {
		id := ids[rng.Intn(len(ids))]
		switch roll := rng.Intn(10); {
		case roll < 4:
			events = append(events, surface.Added(square(id, categories[rng.Intn(len(categories))], 1+float32(rng.Intn(4)))))
		case roll < 7:
			events = append(events, surface.Updated(square(id, categories[rng.Intn(len(categories))], 1+float32(rng.Intn(4)))))
		case roll < 8:
			events = append(events, surface.Updated(broken(id)))
		default:
			events = append(events, surface.Removed(id))
		}
	}
	return events
}
