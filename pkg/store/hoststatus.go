package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/homelab/warden/pkg/models"
)

// HostStatusLog is the DAO for host_status_log, an append-only audit trail of
// Host Monitor state transitions (C6).
type HostStatusLog struct {
	s *Store
}

// NewHostStatusLog builds a HostStatusLog DAO.
func NewHostStatusLog(s *Store) *HostStatusLog { return &HostStatusLog{s: s} }

// Record appends one host status observation.
func (d *HostStatusLog) Record(ctx context.Context, h models.HostState, errMsg string) error {
	const q = `
		INSERT INTO host_status_log (
			host, status, failure_count, last_success_at, last_check_at, error_message
		) VALUES ($1,$2,$3,$4,$5,NULLIF($6,''))`
	var lastSuccess interface{}
	if !h.LastSuccessAt.IsZero() {
		lastSuccess = h.LastSuccessAt
	}
	if _, err := d.s.db.ExecContext(ctx, q, h.Host, string(h.Status), h.FailureCount, lastSuccess, h.LastAttemptAt, errMsg); err != nil {
		return fmt.Errorf("record host_status_log: %w", err)
	}
	return nil
}

type hostStatusRow struct {
	ID            int64          `db:"id"`
	Host          string         `db:"host"`
	Status        string         `db:"status"`
	FailureCount  int            `db:"failure_count"`
	LastSuccessAt sql.NullTime   `db:"last_success_at"`
	LastCheckAt   time.Time      `db:"last_check_at"`
	ErrorMessage  sql.NullString `db:"error_message"`
	RecordedAt    time.Time      `db:"recorded_at"`
}

// Recent returns the most recent transitions for a host, newest first,
// bounded to limit rows (used by the status/analytics API surface).
func (d *HostStatusLog) Recent(ctx context.Context, host string, limit int) ([]models.HostState, error) {
	const q = `SELECT * FROM host_status_log WHERE host = $1 ORDER BY recorded_at DESC LIMIT $2`
	var rows []hostStatusRow
	if err := d.s.db.SelectContext(ctx, &rows, q, host, limit); err != nil {
		return nil, fmt.Errorf("select host_status_log: %w", err)
	}
	out := make([]models.HostState, len(rows))
	for i, r := range rows {
		hs := models.HostState{
			Host:          r.Host,
			Status:        models.HostStatus(r.Status),
			FailureCount:  r.FailureCount,
			LastAttemptAt: r.LastCheckAt,
			Error:         r.ErrorMessage.String,
		}
		if r.LastSuccessAt.Valid {
			hs.LastSuccessAt = r.LastSuccessAt.Time
		}
		out[i] = hs
	}
	return out, nil
}
