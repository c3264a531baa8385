package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/homelab/warden/pkg/selfpreserve"
)

// SelfPreserveService is the subset of *selfpreserve.Manager the handler
// needs.
type SelfPreserveService interface {
	ResumeFromHandoff(ctx context.Context, handoffID string) (*selfpreserve.ResumeResult, error)
}

// SelfPreserveHandlers exposes the self-preservation resume callback at
// POST /resume (§4.13).
type SelfPreserveHandlers struct {
	svc SelfPreserveService
}

// NewSelfPreserveHandlers builds a SelfPreserveHandlers over svc.
func NewSelfPreserveHandlers(svc SelfPreserveService) *SelfPreserveHandlers {
	return &SelfPreserveHandlers{svc: svc}
}

// Resume completes a pending handoff once the orchestrator confirms the
// engine is healthy again. The pipeline does not automatically re-run the
// remediation context on resume: §4.13 only requires the context be
// recoverable for an operator or a future automated continuation, and
// wiring it directly back into Process here would re-execute commands
// outside the gating the webhook path applies.
func (h *SelfPreserveHandlers) Resume(c *gin.Context, handoffID string) {
	result, err := h.svc.ResumeFromHandoff(c.Request.Context(), handoffID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"handoff_id":     result.HandoffID,
		"restart_target": result.RestartTarget,
		"context":        result.Context,
	})
}
