// Package api implements the HTTP surface (§6): health/version/metrics,
// the Alertmanager webhook, self-preservation resume, maintenance window
// CRUD, pattern/analytics/runbook inspection, and external dependency
// health. Grounded on the teacher's cmd/tarsy/main.go router setup and
// pkg/api/handlers.go's Server-struct-plus-gin.Context handler style; the
// teacher's own pkg/api had drifted onto an uncommitted echo migration not
// reflected in its go.mod, so this package stays on gin, the dependency
// actually declared (SPEC_FULL.md §6).
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/homelab/warden/pkg/degradequeue"
	"github.com/homelab/warden/pkg/models"
	"github.com/homelab/warden/pkg/version"
)

// Coordinator is the subset of *pipeline.Coordinator the server dispatches
// webhook alerts to.
type Coordinator interface {
	Process(ctx context.Context, alert models.Alert) models.Result
	ProcessResolution(ctx context.Context, alert models.Alert) error
}

// DBPinger is the subset of *database.Client (its embedded *sqlx.DB) the
// health check needs.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// QueueStats is the subset of *degradequeue.Queue /health surfaces.
type QueueStats interface {
	Stats() degradequeue.Stats
}

// Server holds every dependency the HTTP surface dispatches to. Built and
// wired in cmd/warden/main.go.
type Server struct {
	Coordinator  Coordinator
	DB           DBPinger
	Maintenance  *MaintenanceHandlers
	Patterns     *PatternHandlers
	Runbooks     *RunbookHandlers
	SelfPreserve *SelfPreserveHandlers
	External     *ExternalServicesHandler
	Queue        QueueStats

	AuthUsername string
	AuthPassword string

	MetricsHandler http.Handler

	Log *slog.Logger
}

// Router builds the gin engine with every route wired, mirroring the
// teacher's single-router-in-main layout (cmd/tarsy/main.go) generalized
// into a dedicated constructor so cmd/warden stays a thin wiring file.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/version", s.versionInfo)
	if s.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(s.MetricsHandler))
	}
	r.GET("/external-services", s.External.Get)

	write := r.Group("/")
	write.Use(s.basicAuth())
	{
		write.POST("/webhook/alertmanager", s.webhookAlertmanager)
		write.POST("/resume", s.resume)

		write.POST("/maintenance/start", s.Maintenance.Start)
		write.POST("/maintenance/end", s.Maintenance.End)
		write.GET("/maintenance/status", s.Maintenance.Status)

		write.GET("/patterns", s.Patterns.List)
		write.GET("/patterns/:id", s.Patterns.Get)
		write.GET("/analytics", s.Patterns.Analytics)
		write.GET("/statistics", s.Patterns.Statistics)

		write.GET("/runbooks", s.Runbooks.List)
		write.GET("/runbooks/:alert", s.Runbooks.Get)
		write.POST("/runbooks/reload", s.Runbooks.Reload)
	}

	return r
}

// requestLogger logs each request at Info, in the teacher's structured
// slog style rather than gin's default combined-log-format writer.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Log.InfoContext(c.Request.Context(), "http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// basicAuth enforces HTTP Basic auth on write endpoints per §6/§9 Open
// Question i, mirroring original_source/app/main.py's verify_credentials.
func (s *Server) basicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok || user != s.AuthUsername || pass != s.AuthPassword {
			c.Header("WWW-Authenticate", `Basic realm="warden"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.Next()
	}
}

// health reports overall liveness, matching §6's {status, version,
// timestamp, database_connected, maintenance_mode, queue_stats?} shape.
func (s *Server) health(c *gin.Context) {
	ctx := c.Request.Context()
	status := "healthy"

	dbOK := true
	if s.DB != nil {
		if err := s.DB.PingContext(ctx); err != nil {
			dbOK = false
			status = "unhealthy"
		}
	}

	maintenanceMode := false
	if s.Maintenance != nil {
		if windows, err := s.Maintenance.svc.Status(ctx, ""); err == nil && len(windows) > 0 {
			maintenanceMode = true
			if status == "healthy" {
				status = "degraded"
			}
		}
	}

	resp := gin.H{
		"status":             status,
		"version":            version.Full(),
		"timestamp":          time.Now().UTC(),
		"database_connected": dbOK,
		"maintenance_mode":   maintenanceMode,
	}
	if s.Queue != nil {
		resp["queue_stats"] = s.Queue.Stats()
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (s *Server) versionInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    version.AppName,
		"commit":  version.GitCommit,
		"version": version.Full(),
	})
}
