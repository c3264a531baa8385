package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/homelab/warden/pkg/models"
)

// alertLabels mirrors original_source/app/models.py's AlertLabels: the two
// fields the engine actually reads, plus whatever else Alertmanager sends
// (tolerated via the map, not rejected).
type alertLabels struct {
	AlertName string `json:"alertname"`
	Instance  string `json:"instance"`
	Severity  string `json:"severity"`
}

type alertAnnotations struct {
	Description string `json:"description"`
	Summary     string `json:"summary"`
}

// webhookAlert mirrors original_source/app/models.py's Alert.
type webhookAlert struct {
	Status      string           `json:"status" binding:"required"`
	Labels      alertLabels      `json:"labels" binding:"required"`
	Annotations alertAnnotations `json:"annotations"`
	StartsAt    string           `json:"startsAt"`
	EndsAt      string           `json:"endsAt"`
	Fingerprint string           `json:"fingerprint" binding:"required"`
}

// alertmanagerWebhook mirrors original_source/app/models.py's
// AlertmanagerWebhook. Only the fields the engine reads are bound; the rest
// of the real payload (groupKey, receiver, groupLabels, ...) is tolerated
// and ignored per §6.
type alertmanagerWebhook struct {
	Status string         `json:"status"`
	Alerts []webhookAlert `json:"alerts" binding:"required"`
}

const alertTimeLayout = time.RFC3339

func parseAlertTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(alertTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toModelAlert(a webhookAlert) models.Alert {
	labels := map[string]string{
		"alertname": a.Labels.AlertName,
		"instance":  a.Labels.Instance,
		"severity":  a.Labels.Severity,
	}
	annotations := map[string]string{}
	if a.Annotations.Description != "" {
		annotations["description"] = a.Annotations.Description
	}
	if a.Annotations.Summary != "" {
		annotations["summary"] = a.Annotations.Summary
	}
	return models.Alert{
		Status:      a.Status,
		AlertName:   a.Labels.AlertName,
		Instance:    a.Labels.Instance,
		Fingerprint: a.Fingerprint,
		Severity:    a.Labels.Severity,
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    parseAlertTime(a.StartsAt),
		EndsAt:      parseAlertTime(a.EndsAt),
	}
}

// webhookAlertmanager handles POST /webhook/alertmanager. Checks maintenance
// mode once up front (a short-circuit the original's receive_alertmanager_webhook
// performs before touching any individual alert), then dispatches each
// contained alert to Process (firing) or ProcessResolution (resolved),
// tolerant of a mixed-status batch since each alert carries its own status.
func (s *Server) webhookAlertmanager(c *gin.Context) {
	var payload alertmanagerWebhook
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed alertmanager payload: " + err.Error()})
		return
	}

	ctx := c.Request.Context()

	if s.Maintenance != nil {
		if windows, err := s.Maintenance.svc.Status(ctx, ""); err == nil {
			for _, w := range windows {
				if w.Host == "" && w.Active() {
					c.JSON(http.StatusOK, gin.H{"status": "skipped", "reason": "maintenance_mode"})
					return
				}
			}
		}
	}

	results := make([]gin.H, 0, len(payload.Alerts))
	for _, raw := range payload.Alerts {
		alert := toModelAlert(raw)
		if alert.Status == "resolved" {
			if err := s.Coordinator.ProcessResolution(ctx, alert); err != nil {
				results = append(results, gin.H{
					"alert_name": alert.AlertName, "instance": alert.Instance,
					"status": "error", "reason": err.Error(),
				})
				continue
			}
			results = append(results, gin.H{
				"alert_name": alert.AlertName, "instance": alert.Instance,
				"status": "resolved",
			})
			continue
		}

		result := s.Coordinator.Process(ctx, alert)
		results = append(results, gin.H{
			"alert_name": alert.AlertName, "instance": alert.Instance,
			"status": string(result.Outcome), "reason": result.Reason,
		})
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed", "alerts": results})
}

// resumeRequest is the self-preservation callback body: {"handoff_id": "..."}.
type resumeRequest struct {
	HandoffID string `json:"handoff_id" binding:"required"`
}

// resume handles POST /resume, the orchestrator's callback once the engine
// (or its database) has come back up after a self-restart (§4.13).
func (s *Server) resume(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.SelfPreserve == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "self-preservation not configured"})
		return
	}
	s.SelfPreserve.Resume(c, req.HandoffID)
}
