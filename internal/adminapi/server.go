// Package adminapi exposes the process's debug/observability HTTP surface:
// health, query-count stats, Prometheus metrics, and a Swagger UI. This is
// observability, not a routing feature, so it is carried regardless of the
// Non-goals that scope out caching/ACLs/rate-limiting/hot-reload.
package adminapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/routewarden/routewarden/internal/statsstore"
)

// StatsSource reports the persisted per-group, per-outcome query counters.
type StatsSource interface {
	Totals() ([]statsstore.Counter, error)
}

// Server is the admin/debug HTTP server, mounted alongside the DoH listener.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
	startTime  time.Time
}

// New builds the admin HTTP server bound to addr. gatherer supplies the
// Prometheus collectors to expose at /metrics; stats supplies the
// persisted query counters for /stats.
func New(logger *slog.Logger, addr string, gatherer prometheus.Gatherer, stats StatsSource) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	s := &Server{logger: logger, engine: engine, startTime: time.Now()}

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/stats", func(c *gin.Context) { s.handleStats(c, stats) })
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Engine exposes the gin engine so other listeners (e.g. DoH) can mount
// their own routes on the same HTTP server.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Debug("admin api request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}
