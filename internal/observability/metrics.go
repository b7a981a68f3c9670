package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danmuck/surfacectl/internal/surface"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surfacectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "surfacectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	reconcileEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surfacectl",
			Subsystem: "reconcile",
			Name:      "events_total",
			Help:      "Provider events consumed by the reconcile loop.",
		},
		[]string{"kind"},
	)
	reconcileOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surfacectl",
			Subsystem: "reconcile",
			Name:      "outcomes_total",
			Help:      "Per-event reconcile outcomes.",
		},
		[]string{"outcome"},
	)
	geometryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "surfacectl",
			Subsystem: "geometry",
			Name:      "build_duration_seconds",
			Help:      "Geometry build duration in seconds.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
		[]string{"success"},
	)
	registrySurfaces = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "surfacectl",
			Subsystem: "registry",
			Name:      "surfaces",
			Help:      "Representations currently attached.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			reconcileEvents, reconcileOutcomes, geometryDuration, registrySurfaces,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// LoopMetrics feeds reconcile loop outcomes into the default registry.
type LoopMetrics struct{}

func NewLoopMetrics() LoopMetrics {
	RegisterMetrics()
	return LoopMetrics{}
}

func (LoopMetrics) ObserveEvent(kind surface.EventKind) {
	reconcileEvents.WithLabelValues(kind.String()).Inc()
}

func (LoopMetrics) ObserveOutcome(outcome string) {
	reconcileOutcomes.WithLabelValues(outcome).Inc()
}

func (LoopMetrics) ObserveBuild(d time.Duration, ok bool) {
	geometryDuration.WithLabelValues(strconv.FormatBool(ok)).Observe(d.Seconds())
}

func (LoopMetrics) SetSurfaces(n int) {
	registrySurfaces.Set(float64(n))
}
