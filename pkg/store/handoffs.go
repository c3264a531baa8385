package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/homelab/warden/pkg/models"
)

type handoffRow struct {
	HandoffID           string         `db:"handoff_id"`
	RestartTarget       string         `db:"restart_target"`
	RestartReason       string         `db:"restart_reason"`
	RemediationContext  []byte         `db:"remediation_context"`
	Status              string         `db:"status"`
	CallbackURL         sql.NullString `db:"callback_url"`
	ExternalExecutionID sql.NullString `db:"external_execution_id"`
	ErrorMessage        sql.NullString `db:"error_message"`
	CreatedAt           time.Time      `db:"created_at"`
	CompletedAt         sql.NullTime   `db:"completed_at"`
}

func (r handoffRow) toModel() (*models.SelfPreservationHandoff, error) {
	var rc models.RemediationContext
	if len(r.RemediationContext) > 0 {
		if err := json.Unmarshal(r.RemediationContext, &rc); err != nil {
			return nil, fmt.Errorf("unmarshal remediation_context: %w", err)
		}
	}
	h := &models.SelfPreservationHandoff{
		HandoffID:           r.HandoffID,
		RestartTarget:       models.RestartTarget(r.RestartTarget),
		RestartReason:       r.RestartReason,
		RemediationContext:  rc,
		Status:              models.HandoffStatus(r.Status),
		CallbackURL:         r.CallbackURL.String,
		ExternalExecutionID: r.ExternalExecutionID.String,
		Error:               r.ErrorMessage.String,
		CreatedAt:           r.CreatedAt,
	}
	if r.CompletedAt.Valid {
		h.CompletedAt = &r.CompletedAt.Time
	}
	return h, nil
}

// Handoffs is the DAO for self_preservation_handoffs (C13).
type Handoffs struct {
	s *Store
}

// NewHandoffs builds a Handoffs DAO.
func NewHandoffs(s *Store) *Handoffs { return &Handoffs{s: s} }

// advisoryLockKey is the fixed Postgres advisory lock key serializing
// handoff creation across concurrent callers (§5, §4.13).
const advisoryLockKey = 123456789

// ErrActiveHandoffExists indicates a non-terminal handoff already exists;
// §8 property 10 requires exactly one concurrent Create to succeed.
var ErrActiveHandoffExists = errors.New("a self-preservation handoff is already in progress")

// Create inserts a new handoff under the shared advisory lock, first
// verifying no other non-terminal handoff exists. Runs in a single
// transaction so concurrent callers serialize on the lock rather than racing
// on a plain check-then-insert.
func (d *Handoffs) Create(ctx context.Context, h *models.SelfPreservationHandoff) error {
	tx, err := d.s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin handoff transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey); err != nil {
		return fmt.Errorf("acquire handoff advisory lock: %w", err)
	}

	var activeCount int
	const checkQ = `
		SELECT count(*) FROM self_preservation_handoffs
		WHERE status IN ('pending', 'in_progress')`
	if err := tx.GetContext(ctx, &activeCount, checkQ); err != nil {
		return fmt.Errorf("check active handoffs: %w", err)
	}
	if activeCount > 0 {
		return ErrActiveHandoffExists
	}

	ctxJSON, err := json.Marshal(h.RemediationContext)
	if err != nil {
		return fmt.Errorf("marshal remediation context: %w", err)
	}

	const insertQ = `
		INSERT INTO self_preservation_handoffs (
			handoff_id, restart_target, restart_reason, remediation_context, status, callback_url
		) VALUES ($1,$2,$3,$4,$5,NULLIF($6,''))`
	if _, err := tx.ExecContext(ctx, insertQ, h.HandoffID, string(h.RestartTarget), h.RestartReason, ctxJSON, string(h.Status), h.CallbackURL); err != nil {
		return fmt.Errorf("insert handoff: %w", err)
	}

	return tx.Commit()
}

// Get returns a handoff by ID.
func (d *Handoffs) Get(ctx context.Context, id string) (*models.SelfPreservationHandoff, error) {
	const q = `SELECT * FROM self_preservation_handoffs WHERE handoff_id = $1`
	var row handoffRow
	if err := d.s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get handoff: %w", err)
	}
	return row.toModel()
}

// ActiveHandoff returns the single non-terminal handoff, if any, used on
// engine startup to resume an interrupted restart.
func (d *Handoffs) ActiveHandoff(ctx context.Context) (*models.SelfPreservationHandoff, error) {
	const q = `SELECT * FROM self_preservation_handoffs WHERE status IN ('pending','in_progress') ORDER BY created_at DESC LIMIT 1`
	var row handoffRow
	if err := d.s.db.GetContext(ctx, &row, q); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active handoff: %w", err)
	}
	return row.toModel()
}

// UpdateStatus transitions a handoff's status and optional error message.
func (d *Handoffs) UpdateStatus(ctx context.Context, id string, status models.HandoffStatus, errMsg string, externalExecutionID string) error {
	const q = `
		UPDATE self_preservation_handoffs SET
			status = $2,
			error_message = NULLIF($3, ''),
			external_execution_id = CASE WHEN $4 = '' THEN external_execution_id ELSE $4 END,
			completed_at = CASE WHEN $2 IN ('completed','failed','timeout','cancelled') THEN now() ELSE completed_at END
		WHERE handoff_id = $1`
	if _, err := d.s.db.ExecContext(ctx, q, id, string(status), errMsg, externalExecutionID); err != nil {
		return fmt.Errorf("update handoff status: %w", err)
	}
	return nil
}

// CleanupStale deletes terminal handoffs (completed, failed, timeout,
// cancelled) older than cutoff, at most batchSize rows per call (§4.13
// startup cleanup). Pending and in-progress handoffs are never deleted.
func (d *Handoffs) CleanupStale(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	const q = `
		DELETE FROM self_preservation_handoffs
		WHERE handoff_id IN (
			SELECT handoff_id FROM self_preservation_handoffs
			WHERE created_at < $1 AND status IN ('completed','failed','timeout','cancelled')
			LIMIT $2
		)`
	res, err := d.s.db.ExecContext(ctx, q, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale handoffs: %w", err)
	}
	return res.RowsAffected()
}
