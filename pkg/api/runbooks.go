package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/homelab/warden/pkg/runbook"
)

// RunbookService is the subset of *runbook.Service the handlers need.
type RunbookService interface {
	List() []runbook.Summary
	Get(alertName string) (*runbook.Runbook, bool)
	Load() (int, error)
}

// RunbookHandlers exposes runbook inspection at /runbooks,
// /runbooks/{alert}, /runbooks/reload (§4.15).
type RunbookHandlers struct {
	svc RunbookService
}

// NewRunbookHandlers builds a RunbookHandlers over svc.
func NewRunbookHandlers(svc RunbookService) *RunbookHandlers {
	return &RunbookHandlers{svc: svc}
}

func (h *RunbookHandlers) List(c *gin.Context) {
	summaries := h.svc.List()
	c.JSON(http.StatusOK, gin.H{"runbooks": summaries, "count": len(summaries)})
}

func (h *RunbookHandlers) Get(c *gin.Context) {
	alert := c.Param("alert")
	rb, ok := h.svc.Get(alert)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no runbook for " + alert})
		return
	}
	c.JSON(http.StatusOK, rb)
}

// Reload re-reads the runbook directory from disk, so an operator editing a
// runbook is picked up without a restart (§4.15).
func (h *RunbookHandlers) Reload(c *gin.Context) {
	n, err := h.svc.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded": n})
}
