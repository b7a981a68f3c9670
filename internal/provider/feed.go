// Package provider holds anchor provider adapters for the reconcile loop.
//
// Ownership boundary:
// - in-memory feeds and scripted sessions
// - the network stream client and the endpoint that serves it
//
// Every adapter emits events in delivery order and closes its stream when
// the session ends.
package provider

import (
	"context"
	"errors"
	"sync"

	"github.com/danmuck/surfacectl/internal/surface"
)

var (
	ErrSessionActive = errors.New("provider: session already active")
	ErrFeedClosed    = errors.New("provider: feed closed")
)

// Feed is an in-memory provider for a single session. Callers publish events
// and Close to end the session.
type Feed struct {
	mu      sync.RWMutex
	events  chan surface.Event
	done    chan struct{}
	once    sync.Once
	started bool
	closed  bool
}

func NewFeed(buffer int) *Feed {
	if buffer < 0 {
		buffer = 0
	}
	return &Feed{
		events: make(chan surface.Event, buffer),
		done:   make(chan struct{}),
	}
}

func (f *Feed) Name() string {
	return "feed"
}

func (f *Feed) Start(ctx context.Context) (<-chan surface.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil, ErrSessionActive
	}
	f.started = true
	return f.events, nil
}

// Publish blocks until the event is buffered or consumed.
func (f *Feed) Publish(ctx context.Context, ev surface.Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrFeedClosed
	}
	select {
	case f.events <- ev:
		return nil
	case <-f.done:
		return ErrFeedClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the session. Buffered events are still delivered.
func (f *Feed) Close() {
	f.once.Do(func() {
		close(f.done)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.closed = true
		close(f.events)
	})
}
