package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/homelab/warden/pkg/models"
)

// MaintenanceService is the subset of *maintenance.Service the handlers
// need.
type MaintenanceService interface {
	Start(ctx context.Context, host, reason, createdBy string) (*models.MaintenanceWindow, error)
	End(ctx context.Context, id int64) error
	Status(ctx context.Context, host string) ([]*models.MaintenanceWindow, error)
}

// MaintenanceHandlers exposes maintenance window CRUD at
// /maintenance/{start,end,status} (§4.15).
type MaintenanceHandlers struct {
	svc MaintenanceService
}

// NewMaintenanceHandlers builds a MaintenanceHandlers over svc.
func NewMaintenanceHandlers(svc MaintenanceService) *MaintenanceHandlers {
	return &MaintenanceHandlers{svc: svc}
}

type startMaintenanceRequest struct {
	Host      string `json:"host"`
	Reason    string `json:"reason" binding:"required"`
	CreatedBy string `json:"created_by"`
}

func (h *MaintenanceHandlers) Start(c *gin.Context) {
	var req startMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "api"
	}
	window, err := h.svc.Start(c.Request.Context(), req.Host, req.Reason, createdBy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, window)
}

type endMaintenanceRequest struct {
	ID int64 `json:"id" binding:"required"`
}

func (h *MaintenanceHandlers) End(c *gin.Context) {
	var req endMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.End(c.Request.Context(), req.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended", "id": req.ID})
}

func (h *MaintenanceHandlers) Status(c *gin.Context) {
	host := c.Query("host")
	windows, err := h.svc.Status(c.Request.Context(), host)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": windows, "count": len(windows)})
}

// idParam parses a positive :id path parameter, writing a 400 response and
// returning ok=false on failure.
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
