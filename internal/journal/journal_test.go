package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/surfacectl/internal/geometry"
	"github.com/danmuck/surfacectl/internal/provider"
	"github.com/danmuck/surfacectl/internal/reconcile"
	"github.com/danmuck/surfacectl/internal/registry"
	"github.com/danmuck/surfacectl/internal/scene"
	"github.com/danmuck/surfacectl/internal/surface"
	"github.com/danmuck/surfacectl/internal/testutil/testlog"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func scan() *provider.Script {
	opts := provider.DefaultRoomScanOptions()
	opts.Interval = 0
	opts.Refinements = 2
	return provider.RoomScan(opts)
}

func drain(t *testing.T, ch <-chan surface.Event) []surface.Event {
	t.Helper()
	var out []surface.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("stream did not close")
		}
	}
}

func TestAppendAndEvents(t *testing.T) {
	testlog.Start(t)
	store := openStore(t)
	ctx := context.Background()
	id := surface.NewIdentity()
	d := surface.Descriptor{
		ID:       id,
		Category: surface.CategoryWall,
		Outline:  []surface.Vec3{{}, {X: 1}, {X: 1, Z: 1}},
		Pose:     surface.Translation(0, 1, 0),
	}
	base := time.UnixMilli(1700000000000)

	if err := store.Append(ctx, "a", 1, surface.Added(d), base); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, "a", 2, surface.Removed(id), base.Add(time.Second)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, "a", 2, surface.Removed(id), base); err == nil {
		t.Fatalf("duplicate sequence accepted")
	}
	if err := store.Append(ctx, "", 1, surface.Removed(id), base); !errors.Is(err, ErrEmptySession) {
		t.Fatalf("expected ErrEmptySession, got %v", err)
	}

	records, err := store.Events(ctx, "a")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(records) != 2 || records[0].Seq != 1 || records[1].Event.Kind != surface.EventRemoved {
		t.Fatalf("unexpected records: %+v", records)
	}
	if got := records[0].Event.Descriptor; got == nil || got.Pose != d.Pose || got.Category != d.Category {
		t.Fatalf("descriptor not preserved: %+v", got)
	}
	if !records[1].RecordedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("unexpected recorded_at: %v", records[1].RecordedAt)
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Name != "a" || sessions[0].Events != 2 {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestReplayUnknownSession(t *testing.T) {
	testlog.Start(t)
	store := openStore(t)
	_, err := NewReplay(store, "missing").Start(context.Background())
	if !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}

	loop := reconcile.NewLoop(reconcile.DefaultConfig(), registry.New(scene.NewRecorder(nil), "root"), geometry.NewPolygonBuilder(geometry.DefaultLimits()))
	err = loop.Run(context.Background(), NewReplay(store, "missing"))
	var sessionErr *reconcile.SessionError
	if !errors.As(err, &sessionErr) || !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected SessionError wrapping ErrUnknownSession, got %v", err)
	}
}

func TestTeeThenReplayReproducesRegistry(t *testing.T) {
	testlog.Start(t)
	store := openStore(t)
	script := scan()

	live := func(p reconcile.Provider) []surface.Representation {
		reg := registry.New(scene.NewRecorder(nil), "root")
		loop := reconcile.NewLoop(reconcile.DefaultConfig(), reg, geometry.NewPolygonBuilder(geometry.DefaultLimits()))
		if err := loop.Run(context.Background(), p); err != nil {
			t.Fatalf("run %T: %v", p, err)
		}
		return reg.Snapshot()
	}

	recorded := live(NewTee(script, store, "scan-1"))
	replayed := live(NewReplay(store, "scan-1"))

	if len(recorded) == 0 || len(recorded) != len(replayed) {
		t.Fatalf("surface count mismatch: live=%d replay=%d", len(recorded), len(replayed))
	}
	for i := range recorded {
		if recorded[i].ID != replayed[i].ID || recorded[i].Generation != replayed[i].Generation || recorded[i].Style != replayed[i].Style {
			t.Fatalf("surface %d diverged: live=%+v replay=%+v", i, recorded[i], replayed[i])
		}
	}

	records, err := store.Events(context.Background(), "scan-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(records) != script.Len() {
		t.Fatalf("expected %d journaled events, got %d", script.Len(), len(records))
	}
}

func TestTeeSkipsInvalidEvents(t *testing.T) {
	testlog.Start(t)
	store := openStore(t)
	feed := provider.NewFeed(4)
	ctx := context.Background()

	tee := NewTee(feed, store, "feed")
	events, err := tee.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if tee.Name() != "journal:feed" {
		t.Fatalf("unexpected name: %q", tee.Name())
	}
	_ = feed.Publish(ctx, surface.Event{Kind: surface.EventAdded})
	_ = feed.Publish(ctx, surface.Removed(surface.NewIdentity()))
	feed.Close()

	if got := drain(t, events); len(got) != 2 {
		t.Fatalf("tee must forward every event, got %d", len(got))
	}
	records, err := store.Events(ctx, "feed")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(records) != 1 || records[0].Seq != 1 {
		t.Fatalf("expected only the valid event journaled, got %+v", records)
	}
}

func TestReplayPacing(t *testing.T) {
	testlog.Start(t)
	store := openStore(t)
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 3; i++ {
		if err := store.Append(ctx, "paced", uint64(i+1), surface.Removed(surface.NewIdentity()), base.Add(time.Duration(i)*100*time.Millisecond)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	replay := NewReplay(store, "paced")
	replay.Speed = 2
	start := time.Now()
	events, err := replay.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := drain(t, events); len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("replay ignored recorded gaps: %v", elapsed)
	}
}
