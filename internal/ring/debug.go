package ring

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshot reads a consistent view of driver state by round-tripping through
// the mailbox loop, the same way every other goroutine in this package talks
// to Driver (§9, "no field is read from outside the mailbox goroutine").
func (d *Driver) Snapshot(ctx context.Context) (Snapshot, bool) {
	reply := make(chan Snapshot, 1)
	d.post(ctx, snapshotRequest{reply: reply})
	select {
	case s := <-reply:
		return s, true
	case <-ctx.Done():
		return Snapshot{}, false
	case <-time.After(2 * time.Second):
		return Snapshot{}, false
	}
}

// Registry exposes this driver's private Prometheus registry so the debug
// sidecar can serve it, without putting driver metrics on the global
// default registry (every driver process in a test run shares one binary).
func (d *Driver) Registry() *prometheus.Registry { return d.metrics.registry }

// DebugServer wires a read-only gin engine exposing /health, /debug/state,
// and /debug/metrics for one driver, listening on BASE_PORT+id+10000
// (SPEC_FULL.md "debug/observability sidecar"). This is the teacher's
// gin.Default()+router.Setup() wiring idiom, repurposed from the REST ride
// API to an observability surface fed entirely by Snapshot.
type DebugServer struct {
	driver *Driver
	addr   string
	srv    *http.Server
}

// NewDebugServer constructs a DebugServer bound to addr. Call Run to start
// serving.
func NewDebugServer(d *Driver, addr string) *DebugServer {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	ds := &DebugServer{driver: d, addr: addr}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "driver_id": d.id})
	})

	debug := engine.Group("/debug")
	{
		debug.GET("/state", func(c *gin.Context) {
			snap, ok := d.Snapshot(c.Request.Context())
			if !ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot timed out"})
				return
			}
			c.JSON(http.StatusOK, snap)
		})
		debug.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry(), promhttp.HandlerOpts{})))
	}

	ds.srv = &http.Server{Addr: addr, Handler: engine}
	return ds
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (ds *DebugServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- ds.srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ds.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
