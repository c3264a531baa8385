package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/homelab/warden/pkg/models"
)

type patternRow struct {
	ID                 int64           `db:"id"`
	AlertName          string          `db:"alert_name"`
	AlertCategory      string          `db:"alert_category"`
	SymptomFingerprint string          `db:"symptom_fingerprint"`
	RootCause          string          `db:"root_cause"`
	SolutionCommands   pq.StringArray  `db:"solution_commands"`
	SuccessCount       int             `db:"success_count"`
	FailureCount       int             `db:"failure_count"`
	ConfidenceScore    float64         `db:"confidence_score"`
	RiskLevel          string          `db:"risk_level"`
	UsageCount         int             `db:"usage_count"`
	AvgExecutionTime   float64         `db:"avg_execution_time"`
	TargetHost         sql.NullString  `db:"target_host"`
	Enabled            bool            `db:"enabled"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
	LastUsedAt         sql.NullTime    `db:"last_used_at"`
}

func (r patternRow) toModel() *models.RemediationPattern {
	p := &models.RemediationPattern{
		ID:                 r.ID,
		AlertName:          r.AlertName,
		Category:           r.AlertCategory,
		SymptomFingerprint: r.SymptomFingerprint,
		RootCause:          r.RootCause,
		SolutionCommands:   []string(r.SolutionCommands),
		SuccessCount:       r.SuccessCount,
		FailureCount:       r.FailureCount,
		Confidence:         r.ConfidenceScore,
		RiskLevel:          models.RiskLevel(r.RiskLevel),
		UsageCount:         r.UsageCount,
		AvgExecutionSec:    r.AvgExecutionTime,
		TargetHost:         r.TargetHost.String,
		Enabled:            r.Enabled,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.LastUsedAt.Valid {
		p.LastUsedAt = r.LastUsedAt.Time
	}
	return p
}

// Patterns is the DAO for remediation_patterns (C9 Learning Engine).
type Patterns struct {
	s *Store
}

// NewPatterns builds a Patterns DAO.
func NewPatterns(s *Store) *Patterns { return &Patterns{s: s} }

// ByAlertName returns every enabled pattern for alertName, used to build the
// Learning Engine's refreshed lookup cache.
func (d *Patterns) ByAlertName(ctx context.Context, alertName string) ([]*models.RemediationPattern, error) {
	const q = `SELECT * FROM remediation_patterns WHERE alert_name = $1 AND enabled ORDER BY confidence_score DESC, usage_count DESC`
	var rows []patternRow
	if err := d.s.db.SelectContext(ctx, &rows, q, alertName); err != nil {
		return nil, fmt.Errorf("select remediation_patterns by alert: %w", err)
	}
	out := make([]*models.RemediationPattern, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// All returns every enabled pattern, sorted by (confidence desc, usage desc),
// used to seed the Learning Engine's TTL cache.
func (d *Patterns) All(ctx context.Context) ([]*models.RemediationPattern, error) {
	const q = `SELECT * FROM remediation_patterns WHERE enabled ORDER BY confidence_score DESC, usage_count DESC`
	var rows []patternRow
	if err := d.s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("select remediation_patterns: %w", err)
	}
	out := make([]*models.RemediationPattern, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// Get returns a single pattern by ID.
func (d *Patterns) Get(ctx context.Context, id int64) (*models.RemediationPattern, error) {
	const q = `SELECT * FROM remediation_patterns WHERE id = $1`
	var row patternRow
	if err := d.s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get remediation_pattern: %w", err)
	}
	return row.toModel(), nil
}

// ByFingerprint looks up a pattern by its (alert_name, symptom_fingerprint)
// key, used to decide insert-vs-update during pattern extraction (§4.9).
func (d *Patterns) ByFingerprint(ctx context.Context, alertName, symptomFingerprint string) (*models.RemediationPattern, error) {
	const q = `SELECT * FROM remediation_patterns WHERE alert_name = $1 AND symptom_fingerprint = $2`
	var row patternRow
	if err := d.s.db.GetContext(ctx, &row, q, alertName, symptomFingerprint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get remediation_pattern by fingerprint: %w", err)
	}
	return row.toModel(), nil
}

// Insert creates a new pattern, typically from a freshly extracted solution.
func (d *Patterns) Insert(ctx context.Context, p *models.RemediationPattern) (int64, error) {
	const q = `
		INSERT INTO remediation_patterns (
			alert_name, alert_category, symptom_fingerprint, root_cause, solution_commands,
			success_count, failure_count, confidence_score, risk_level, usage_count,
			avg_execution_time, target_host, enabled, last_used_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,''),$13,$14)
		RETURNING id`
	var id int64
	err := d.s.db.QueryRowxContext(ctx, q,
		p.AlertName, p.Category, p.SymptomFingerprint, p.RootCause, pq.Array(p.SolutionCommands),
		p.SuccessCount, p.FailureCount, p.Confidence, string(p.RiskLevel), p.UsageCount,
		p.AvgExecutionSec, p.TargetHost, p.Enabled, nowOrNil(p.LastUsedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert remediation_pattern: %w", err)
	}
	return id, nil
}

// RecordOutcome updates success/failure counts, recomputes Laplace
// confidence, replaces the solution command list, and bumps usage stats
// (§4.9). Pass success=true after a verified-successful remediation.
func (d *Patterns) RecordOutcome(ctx context.Context, id int64, success bool, commands []string, execDurationSec float64) error {
	const q = `
		UPDATE remediation_patterns SET
			success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			failure_count = failure_count + CASE WHEN $2 THEN 0 ELSE 1 END,
			confidence_score = (success_count + CASE WHEN $2 THEN 1 ELSE 0 END + 1)::float8
				/ (success_count + failure_count + 2)::float8,
			solution_commands = CASE WHEN $2 THEN $3 ELSE solution_commands END,
			usage_count = usage_count + 1,
			avg_execution_time = (avg_execution_time * usage_count + $4) / (usage_count + 1),
			updated_at = now(),
			last_used_at = now()
		WHERE id = $1`
	if _, err := d.s.db.ExecContext(ctx, q, id, success, pq.Array(commands), execDurationSec); err != nil {
		return fmt.Errorf("record remediation_pattern outcome: %w", err)
	}
	return nil
}

// Failures is the DAO for remediation_failures (C9 failure-pattern recording).
type Failures struct {
	s *Store
}

// NewFailures builds a Failures DAO.
func NewFailures(s *Store) *Failures { return &Failures{s: s} }

type failureRow struct {
	PatternSignature   string         `db:"pattern_signature"`
	AlertName          string         `db:"alert_name"`
	AlertInstance      string         `db:"alert_instance"`
	SymptomFingerprint sql.NullString `db:"symptom_fingerprint"`
	CommandsAttempted  pq.StringArray `db:"commands_attempted"`
	FailureReason      string         `db:"failure_reason"`
	FailureCount       int            `db:"failure_count"`
	LastFailedAt       time.Time      `db:"last_failed_at"`
}

func (r failureRow) toModel() *models.FailurePattern {
	return &models.FailurePattern{
		PatternSignature:  r.PatternSignature,
		AlertName:         r.AlertName,
		CommandsAttempted: []string(r.CommandsAttempted),
		FailureReason:     r.FailureReason,
		FailureCount:      r.FailureCount,
		LastFailedAt:      r.LastFailedAt,
	}
}

// Record upserts a failure pattern keyed by signature, incrementing the
// counter on repeat failures of the same plan.
func (d *Failures) Record(ctx context.Context, signature, alertName, alertInstance, symptomFingerprint string, commands []string, reason string) error {
	const q = `
		INSERT INTO remediation_failures (
			pattern_signature, alert_name, alert_instance, symptom_fingerprint,
			commands_attempted, failure_reason, failure_count, last_failed_at
		) VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,1,now())
		ON CONFLICT (pattern_signature) DO UPDATE SET
			failure_count = remediation_failures.failure_count + 1,
			failure_reason = EXCLUDED.failure_reason,
			last_failed_at = now()`
	if _, err := d.s.db.ExecContext(ctx, q, signature, alertName, alertInstance, symptomFingerprint, pq.Array(commands), reason); err != nil {
		return fmt.Errorf("record remediation_failure: %w", err)
	}
	return nil
}

// Get returns a failure pattern by signature, or nil if none recorded.
func (d *Failures) Get(ctx context.Context, signature string) (*models.FailurePattern, error) {
	const q = `SELECT * FROM remediation_failures WHERE pattern_signature = $1`
	var row failureRow
	if err := d.s.db.GetContext(ctx, &row, q, signature); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get remediation_failure: %w", err)
	}
	return row.toModel(), nil
}

func nowOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
