package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/homelab/warden/pkg/models"
)

// ProactiveChecks is the DAO for proactive_checks, an audit trail of the
// Proactive Monitor's periodic exhaustion-prediction runs (C15).
type ProactiveChecks struct {
	s *Store
}

// NewProactiveChecks builds a ProactiveChecks DAO.
func NewProactiveChecks(s *Store) *ProactiveChecks { return &ProactiveChecks{s: s} }

type proactiveCheckRow struct {
	ID          int64          `db:"id"`
	CheckType   string         `db:"check_type"`
	Target      string         `db:"target"`
	Finding     string         `db:"finding"`
	ActionTaken sql.NullString `db:"action_taken"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r proactiveCheckRow) toModel() *models.ProactiveCheck {
	return &models.ProactiveCheck{
		ID:          r.ID,
		CheckType:   models.ProactiveCheckType(r.CheckType),
		Target:      r.Target,
		Finding:     r.Finding,
		ActionTaken: r.ActionTaken.String,
		CreatedAt:   r.CreatedAt,
	}
}

// Record inserts a proactive check outcome.
func (d *ProactiveChecks) Record(ctx context.Context, c models.ProactiveCheck) (int64, error) {
	const q = `
		INSERT INTO proactive_checks (check_type, target, finding, action_taken)
		VALUES ($1,$2,$3,NULLIF($4,''))
		RETURNING id`
	var id int64
	err := d.s.db.QueryRowxContext(ctx, q, string(c.CheckType), c.Target, c.Finding, c.ActionTaken).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert proactive_check: %w", err)
	}
	return id, nil
}

// Recent returns the most recent checks, newest first, bounded to limit rows.
func (d *ProactiveChecks) Recent(ctx context.Context, limit int) ([]*models.ProactiveCheck, error) {
	const q = `SELECT * FROM proactive_checks ORDER BY created_at DESC LIMIT $1`
	var rows []proactiveCheckRow
	if err := d.s.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("select proactive_checks: %w", err)
	}
	out := make([]*models.ProactiveCheck, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}
