package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ExternalServiceCheck is one external collaborator's reachability probe,
// built in cmd/warden/main.go for each configured dependency (metrics,
// logs, home automation, workflow orchestrator).
type ExternalServiceCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ExternalServicesHandler exposes dependency health at GET
// /external-services (§6), the same "is the thing the pipeline calls out
// to actually reachable" concern original_source/app/main.py's
// /external-services endpoint reports on.
type ExternalServicesHandler struct {
	checks  []ExternalServiceCheck
	timeout time.Duration
}

// NewExternalServicesHandler builds a handler over checks, each given
// timeout to respond before being marked unreachable.
func NewExternalServicesHandler(checks []ExternalServiceCheck, timeout time.Duration) *ExternalServicesHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ExternalServicesHandler{checks: checks, timeout: timeout}
}

func (h *ExternalServicesHandler) Get(c *gin.Context) {
	results := make([]gin.H, 0, len(h.checks))
	allOK := true
	for _, chk := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		err := chk.Check(ctx)
		cancel()
		ok := err == nil
		entry := gin.H{"name": chk.Name, "reachable": ok}
		if !ok {
			entry["error"] = err.Error()
			allOK = false
		}
		results = append(results, entry)
	}

	status := "healthy"
	if !allOK {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "services": results})
}
