// Package observability owns metrics and the admin HTTP surface.
package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/surfacectl/internal/auth"
	"github.com/danmuck/surfacectl/internal/reconcile"
	"github.com/danmuck/surfacectl/internal/registry"
	"github.com/danmuck/surfacectl/internal/surface"
)

// Inspector is the read side of the reconcile loop.
type Inspector interface {
	Inspect(ctx context.Context, fn func(*registry.Registry)) error
	State() reconcile.State
	Stats() reconcile.Stats
}

// SurfaceView is the JSON shape served by /surfaces.
type SurfaceView struct {
	ID         surface.Identity   `json:"id"`
	Style      surface.StyleToken `json:"style"`
	Generation uint64             `json:"generation"`
	Triangles  int                `json:"triangles"`
	Area       float32            `json:"area"`
	Position   surface.Vec3       `json:"position"`
}

// Admin serves /metrics, /healthz, /stats and /surfaces.
type Admin struct {
	addr      string
	inspector Inspector
	started   time.Time
	router    *gin.Engine
	validator auth.Validator
}

func NewAdmin(addr string, inspector Inspector) *Admin {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	a := &Admin{
		addr:      addr,
		inspector: inspector,
		started:   time.Now(),
		router:    gin.New(),
	}
	a.router.Use(
		gin.Recovery(),
		RequestLogger(log.With().Str("component", "admin").Logger()),
		RequestMetricsMiddleware(),
	)
	a.registerRoutes()
	return a
}

// RequireToken guards every route but /healthz with a bearer token. An
// empty token leaves the routes open.
func (a *Admin) RequireToken(token string) *Admin {
	if token != "" {
		a.validator = auth.StaticToken{Token: token}
	}
	return a
}

// Handler exposes the router for tests and embedding.
func (a *Admin) Handler() http.Handler {
	return a.router
}

func (a *Admin) registerRoutes() {
	a.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(a.started).Round(time.Second).String(),
			"loop":   a.inspector.State().String(),
		})
	})

	guarded := a.router.Group("/", RequireAuth(func() auth.Validator { return a.validator }))
	guarded.GET("/metrics", gin.WrapH(promhttp.Handler()))

	guarded.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.inspector.Stats())
	})

	guarded.GET("/surfaces", func(c *gin.Context) {
		var views []SurfaceView
		err := a.inspector.Inspect(c.Request.Context(), func(reg *registry.Registry) {
			views = make([]SurfaceView, 0, reg.Len())
			for _, rep := range reg.Snapshot() {
				views = append(views, SurfaceView{
					ID:         rep.ID,
					Style:      rep.Style,
					Generation: rep.Generation,
					Triangles:  rep.Mesh.TriangleCount(),
					Area:       rep.Mesh.Area,
					Position:   rep.Pose.Position(),
				})
			}
		})
		if errors.Is(err, reconcile.ErrNotRunning) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(views), "surfaces": views})
	})
}

// Run serves until ctx ends, then shuts down gracefully.
func (a *Admin) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

func (a *Admin) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		log.Info().Str("component", "admin").Str("addr", ln.Addr().String()).Msg("admin listening")
		errs <- srv.Serve(ln)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
