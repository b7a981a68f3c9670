package journal

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/surfacectl/internal/surface"
)

// Source is the provider shape Tee wraps.
type Source interface {
	Start(ctx context.Context) (<-chan surface.Event, error)
}

// Tee records every valid event an inner provider delivers, then forwards
// it unchanged. Journal write failures are logged and never block delivery.
type Tee struct {
	inner   Source
	store   *Store
	session string
	now     func() time.Time
}

func NewTee(inner Source, store *Store, session string) *Tee {
	return &Tee{inner: inner, store: store, session: session, now: time.Now}
}

func (t *Tee) Name() string {
	if named, ok := t.inner.(interface{ Name() string }); ok {
		return "journal:" + named.Name()
	}
	return "journal"
}

func (t *Tee) Start(ctx context.Context) (<-chan surface.Event, error) {
	if t.session == "" {
		return nil, ErrEmptySession
	}
	in, err := t.inner.Start(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan surface.Event)
	go t.forward(ctx, in, out)
	return out, nil
}

func (t *Tee) forward(ctx context.Context, in <-chan surface.Event, out chan<- surface.Event) {
	defer close(out)
	var seq uint64
	for ev := range in {
		if err := ev.Validate(); err == nil {
			seq++
			if err := t.store.Append(ctx, t.session, seq, ev, t.now()); err != nil {
				log.Warn().Str("component", "journal").Str("session", t.session).Err(err).Msg("record failed")
			}
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
	log.Info().Str("component", "journal").Str("session", t.session).Uint64("recorded", seq).Msg("session recorded")
}

// Replay serves a recorded session as a provider. With Speed > 0 the
// recorded gaps are reproduced, divided by Speed.
type Replay struct {
	store   *Store
	session string
	Speed   float64
}

func NewReplay(store *Store, session string) *Replay {
	return &Replay{store: store, session: session}
}

func (r *Replay) Name() string {
	return "replay:" + r.session
}

func (r *Replay) Start(ctx context.Context) (<-chan surface.Event, error) {
	records, err := r.store.Events(ctx, r.session)
	if err != nil {
		return nil, err
	}
	out := make(chan surface.Event)
	go func() {
		defer close(out)
		for i, rec := range records {
			if r.Speed > 0 && i > 0 {
				gap := time.Duration(float64(rec.RecordedAt.Sub(records[i-1].RecordedAt)) / r.Speed)
				if gap > 0 {
					timer := time.NewTimer(gap)
					select {
					case <-timer.C:
					case <-ctx.Done():
						timer.Stop()
						return
					}
				}
			}
			select {
			case out <- rec.Event:
			case <-ctx.Done():
				return
			}
		}
		log.Info().Str("component", "journal").Str("session", r.session).Int("events", len(records)).Msg("replay complete")
	}()
	return out, nil
}
