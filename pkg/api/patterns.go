package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/homelab/warden/pkg/models"
	"github.com/homelab/warden/pkg/store"
)

// PatternsDAO is the subset of *store.Patterns the handlers need.
type PatternsDAO interface {
	All(ctx context.Context) ([]*models.RemediationPattern, error)
	Get(ctx context.Context, id int64) (*models.RemediationPattern, error)
	ByAlertName(ctx context.Context, alertName string) ([]*models.RemediationPattern, error)
}

// StatisticsDAO is the subset of *store.RemediationLog the handlers need.
type StatisticsDAO interface {
	StatisticsSince(ctx context.Context, since time.Time) (*store.Statistics, error)
}

// PatternHandlers exposes learned-pattern inspection and aggregate
// statistics at /patterns, /patterns/{id}, /analytics, /statistics (§4.9).
type PatternHandlers struct {
	patterns PatternsDAO
	stats    StatisticsDAO
}

// NewPatternHandlers builds a PatternHandlers over patterns and stats.
func NewPatternHandlers(patterns PatternsDAO, stats StatisticsDAO) *PatternHandlers {
	return &PatternHandlers{patterns: patterns, stats: stats}
}

// List handles GET /patterns, optionally filtered by ?alert_name=.
func (h *PatternHandlers) List(c *gin.Context) {
	ctx := c.Request.Context()
	if name := c.Query("alert_name"); name != "" {
		patterns, err := h.patterns.ByAlertName(ctx, name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"patterns": patterns, "count": len(patterns)})
		return
	}
	patterns, err := h.patterns.All(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": patterns, "count": len(patterns)})
}

// Get handles GET /patterns/{id}.
func (h *PatternHandlers) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	pattern, err := h.patterns.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if pattern == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "pattern not found"})
		return
	}
	c.JSON(http.StatusOK, pattern)
}

func daysParam(c *gin.Context, def int) int {
	raw := c.Query("days")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Statistics handles GET /statistics?days=N, aggregating remediation_log
// outcomes over the trailing N days (default 7).
func (h *PatternHandlers) Statistics(c *gin.Context) {
	days := daysParam(c, 7)
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	stats, err := h.stats.StatisticsSince(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "statistics": stats})
}

// Analytics handles GET /analytics: a 30-day outcome summary plus the
// learned-pattern count, combining the two stores the original's
// /analytics endpoint reads from in one response.
func (h *PatternHandlers) Analytics(c *gin.Context) {
	ctx := c.Request.Context()
	since := time.Now().Add(-30 * 24 * time.Hour)
	stats, err := h.stats.StatisticsSince(ctx, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	patterns, err := h.patterns.All(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	enabled := 0
	for _, p := range patterns {
		if p.Enabled {
			enabled++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"window_days":      30,
		"statistics":       stats,
		"patterns_learned": len(patterns),
		"patterns_enabled": enabled,
	})
}
