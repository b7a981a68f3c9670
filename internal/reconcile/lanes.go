package reconcile

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/danmuck/surfacectl/internal/surface"
)

// drainLanes builds on Workers goroutines. An identity always maps to the
// same lane, so its events are prepared and delivered to the writer in
// arrival order.
func (l *Loop) drainLanes(ctx context.Context, events <-chan surface.Event) {
	laneCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := l.cfg.Workers
	results := make(chan mutation, n*l.cfg.LaneDepth)
	lanes := make([]chan surface.Event, n)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan surface.Event, l.cfg.LaneDepth)
		wg.Add(1)
		go l.runLane(laneCtx, lanes[i], results, &wg)
	}
	go l.dispatch(laneCtx, events, lanes)
	go func() {
		wg.Wait()
		close(results)
	}()

	for {
		l.state.Store(int32(StateIdle))
		select {
		case req := <-l.inspect:
			l.serveInspect(req)
		case m, ok := <-results:
			if !ok {
				return
			}
			l.state.Store(int32(StateProcessing))
			l.apply(m)
			l.pending.Add(-1)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, events <-chan surface.Event, lanes []chan surface.Event) {
	defer func() {
		for _, lane := range lanes {
			close(lane)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.pending.Add(1)
			select {
			case lanes[laneFor(ev.ID, len(lanes))] <- ev:
			case <-ctx.Done():
				l.pending.Add(-1)
				return
			}
		}
	}
}

func (l *Loop) runLane(ctx context.Context, in <-chan surface.Event, out chan<- mutation, wg *sync.WaitGroup) {
	defer wg.Done()
	for ev := range in {
		m := l.prepare(ev)
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}

func laneFor(id surface.Identity, n int) int {
	return int(xxhash.Sum64(id[:]) % uint64(n))
}
