package reconcile

import (
	"sync/atomic"
	"time"

	"github.com/danmuck/surfacectl/internal/surface"
)

// State is the loop's position in its per-event cycle.
type State int32

const (
	StateStopped State = iota
	StateIdle
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	default:
		return "stopped"
	}
}

// Metrics receives per-event outcomes. Calls come from the writer goroutine
// except ObserveBuild, which runs wherever the build ran.
type Metrics interface {
	ObserveEvent(kind surface.EventKind)
	ObserveOutcome(outcome string)
	ObserveBuild(d time.Duration, ok bool)
	SetSurfaces(n int)
}

const (
	OutcomeCreated         = "created"
	OutcomeReplaced        = "replaced"
	OutcomeRemoved         = "removed"
	OutcomeIgnoredRemoval  = "ignored_removal"
	OutcomeGeometryFailure = "geometry_failure"
	OutcomeInvalidEvent    = "invalid_event"
)

type nopMetrics struct{}

func (nopMetrics) ObserveEvent(surface.EventKind)   {}
func (nopMetrics) ObserveOutcome(string)            {}
func (nopMetrics) ObserveBuild(time.Duration, bool) {}
func (nopMetrics) SetSurfaces(int)                  {}

// Stats is a point-in-time copy of the loop counters.
type Stats struct {
	Events           uint64 `json:"events"`
	Created          uint64 `json:"created"`
	Replaced         uint64 `json:"replaced"`
	Removed          uint64 `json:"removed"`
	IgnoredRemovals  uint64 `json:"ignored_removals"`
	GeometryFailures uint64 `json:"geometry_failures"`
	InvalidEvents    uint64 `json:"invalid_events"`
	Surfaces         int64  `json:"surfaces"`
}

type counters struct {
	events           atomic.Uint64
	created          atomic.Uint64
	replaced         atomic.Uint64
	removed          atomic.Uint64
	ignoredRemovals  atomic.Uint64
	geometryFailures atomic.Uint64
	invalidEvents    atomic.Uint64
	surfaces         atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Events:           c.events.Load(),
		Created:          c.created.Load(),
		Replaced:         c.replaced.Load(),
		Removed:          c.removed.Load(),
		IgnoredRemovals:  c.ignoredRemovals.Load(),
		GeometryFailures: c.geometryFailures.Load(),
		InvalidEvents:    c.invalidEvents.Load(),
		Surfaces:         c.surfaces.Load(),
	}
}
