package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/homelab/warden/pkg/models"
)

// attemptRow mirrors remediation_log's columns for sqlx struct scanning.
type attemptRow struct {
	ID                    int64          `db:"id"`
	Timestamp             time.Time      `db:"timestamp"`
	AlertName             string         `db:"alert_name"`
	AlertInstance         string         `db:"alert_instance"`
	AlertFingerprint      string         `db:"alert_fingerprint"`
	Severity              string         `db:"severity"`
	AttemptNumber         int            `db:"attempt_number"`
	AIAnalysis            string         `db:"ai_analysis"`
	AIReasoning           string         `db:"ai_reasoning"`
	RemediationPlan       string         `db:"remediation_plan"`
	CommandsExecuted      pq.StringArray `db:"commands_executed"`
	CommandOutputs        pq.StringArray `db:"command_outputs"`
	ExitCodes             pq.Int64Array  `db:"exit_codes"`
	Success               bool           `db:"success"`
	ErrorMessage          string         `db:"error_message"`
	ExecutionDurationSecs float64        `db:"execution_duration_seconds"`
	RiskLevel             string         `db:"risk_level"`
	Escalated             bool           `db:"escalated"`
	UserApproved          bool           `db:"user_approved"`
	ChatMessageID         string         `db:"chat_message_id"`
	ChatThreadID          string         `db:"chat_thread_id"`
}

func (r attemptRow) toModel() *models.RemediationAttempt {
	exitCodes := make([]int, len(r.ExitCodes))
	for i, c := range r.ExitCodes {
		exitCodes[i] = int(c)
	}
	return &models.RemediationAttempt{
		ID:                    r.ID,
		Timestamp:             r.Timestamp,
		AlertName:             r.AlertName,
		AlertInstance:         r.AlertInstance,
		AlertFingerprint:      r.AlertFingerprint,
		Severity:              r.Severity,
		AttemptNumber:         r.AttemptNumber,
		AIAnalysis:            r.AIAnalysis,
		AIReasoning:           r.AIReasoning,
		RemediationPlan:       r.RemediationPlan,
		ExecutedCommands:      []string(r.CommandsExecuted),
		CommandOutputs:        []string(r.CommandOutputs),
		ExitCodes:             exitCodes,
		Success:               r.Success,
		ErrorMessage:          r.ErrorMessage,
		ExecutionDurationSecs: r.ExecutionDurationSecs,
		RiskLevel:             models.RiskLevel(r.RiskLevel),
		Escalated:             r.Escalated,
		UserApproved:          r.UserApproved,
		ChatMessageID:         r.ChatMessageID,
		ChatThreadID:          r.ChatThreadID,
	}
}

// RemediationLog is the DAO for the remediation_log table (C4).
type RemediationLog struct {
	s *Store
}

// NewRemediationLog builds a RemediationLog DAO.
func NewRemediationLog(s *Store) *RemediationLog { return &RemediationLog{s: s} }

// Insert persists one attempt row and returns its assigned ID.
func (d *RemediationLog) Insert(ctx context.Context, a *models.RemediationAttempt) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	exitCodes := make([]int64, len(a.ExitCodes))
	for i, c := range a.ExitCodes {
		exitCodes[i] = int64(c)
	}
	const q = `
		INSERT INTO remediation_log (
			alert_name, alert_instance, alert_fingerprint, severity, attempt_number,
			ai_analysis, ai_reasoning, remediation_plan,
			commands_executed, command_outputs, exit_codes,
			success, error_message, execution_duration_seconds, risk_level,
			escalated, user_approved, chat_message_id, chat_thread_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING id`
	var id int64
	err := d.s.db.QueryRowxContext(ctx, q,
		a.AlertName, a.AlertInstance, a.AlertFingerprint, a.Severity, a.AttemptNumber,
		a.AIAnalysis, a.AIReasoning, a.RemediationPlan,
		pq.Array(a.ExecutedCommands), pq.Array(a.CommandOutputs), pq.Array(exitCodes),
		a.Success, a.ErrorMessage, a.ExecutionDurationSecs, string(a.RiskLevel),
		a.Escalated, a.UserApproved, a.ChatMessageID, a.ChatThreadID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert remediation_log: %w", err)
	}
	return id, nil
}

// CountAttempts returns the number of non-escalation-only attempts for
// identity (alertName, alertInstance) within the trailing window, per §8
// property 2: escalation-only markers are never counted.
func (d *RemediationLog) CountAttempts(ctx context.Context, alertName, alertInstance string, window time.Duration) (int, error) {
	const q = `
		SELECT count(*) FROM remediation_log
		WHERE alert_name = $1 AND alert_instance = $2
		  AND timestamp >= $3
		  AND NOT (escalated AND cardinality(commands_executed) = 0)`
	var n int
	if err := d.s.db.GetContext(ctx, &n, q, alertName, alertInstance, time.Now().Add(-window)); err != nil {
		return 0, fmt.Errorf("count remediation_log attempts: %w", err)
	}
	return n, nil
}

// ClearAttempts deletes every attempt row for identity (alertName,
// alertInstance), used when an alert resolves (§8 property 3).
func (d *RemediationLog) ClearAttempts(ctx context.Context, alertName, alertInstance string) error {
	const q = `DELETE FROM remediation_log WHERE alert_name = $1 AND alert_instance = $2`
	if _, err := d.s.db.ExecContext(ctx, q, alertName, alertInstance); err != nil {
		return fmt.Errorf("clear remediation_log: %w", err)
	}
	return nil
}

// RecentForIdentity returns the most recent attempts for an identity, most
// recent first, used by the Escalation component to decide the nth attempt.
func (d *RemediationLog) RecentForIdentity(ctx context.Context, alertName, alertInstance string, limit int) ([]*models.RemediationAttempt, error) {
	const q = `
		SELECT * FROM remediation_log
		WHERE alert_name = $1 AND alert_instance = $2
		ORDER BY timestamp DESC LIMIT $3`
	var rows []attemptRow
	if err := d.s.db.SelectContext(ctx, &rows, q, alertName, alertInstance, limit); err != nil {
		return nil, fmt.Errorf("select remediation_log: %w", err)
	}
	out := make([]*models.RemediationAttempt, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// Statistics aggregates outcomes over the trailing N days for GET /statistics.
type Statistics struct {
	TotalAttempts  int `db:"total_attempts"`
	Successful     int `db:"successful"`
	Failed         int `db:"failed"`
	Escalated      int `db:"escalated"`
}

// StatisticsSince aggregates remediation_log rows newer than since.
func (d *RemediationLog) StatisticsSince(ctx context.Context, since time.Time) (*Statistics, error) {
	const q = `
		SELECT
			count(*) AS total_attempts,
			count(*) FILTER (WHERE success) AS successful,
			count(*) FILTER (WHERE NOT success AND NOT escalated) AS failed,
			count(*) FILTER (WHERE escalated) AS escalated
		FROM remediation_log WHERE timestamp >= $1`
	var stats Statistics
	if err := d.s.db.GetContext(ctx, &stats, q, since); err != nil {
		return nil, fmt.Errorf("aggregate remediation_log statistics: %w", err)
	}
	return &stats, nil
}
