package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/homelab/warden/pkg/models"
)

type maintenanceRow struct {
	ID                   int64        `db:"id"`
	Host                 sql.NullString `db:"host"`
	StartedAt            time.Time    `db:"started_at"`
	EndedAt              sql.NullTime `db:"ended_at"`
	IsActive             bool         `db:"is_active"`
	Reason               string       `db:"reason"`
	CreatedBy            string       `db:"created_by"`
	SuppressedAlertCount int          `db:"suppressed_alert_count"`
}

func (r maintenanceRow) toModel() *models.MaintenanceWindow {
	w := &models.MaintenanceWindow{
		ID:              r.ID,
		Host:            r.Host.String,
		StartedAt:       r.StartedAt,
		IsActive:        r.IsActive,
		Reason:          r.Reason,
		CreatedBy:       r.CreatedBy,
		SuppressedCount: r.SuppressedAlertCount,
	}
	if r.EndedAt.Valid {
		w.EndedAt = &r.EndedAt.Time
	}
	return w
}

// Maintenance is the DAO for maintenance_windows (C15).
type Maintenance struct {
	s *Store
}

// NewMaintenance builds a Maintenance DAO.
func NewMaintenance(s *Store) *Maintenance { return &Maintenance{s: s} }

// Start opens a new maintenance window. An empty host means fleet-wide.
func (d *Maintenance) Start(ctx context.Context, host, reason, createdBy string) (*models.MaintenanceWindow, error) {
	const q = `
		INSERT INTO maintenance_windows (host, reason, created_by, is_active)
		VALUES (NULLIF($1, ''), $2, $3, true)
		RETURNING id, host, started_at, ended_at, is_active, reason, created_by, suppressed_alert_count`
	var row maintenanceRow
	if err := d.s.db.GetContext(ctx, &row, q, host, reason, createdBy); err != nil {
		return nil, fmt.Errorf("start maintenance window: %w", err)
	}
	return row.toModel(), nil
}

// End closes an active maintenance window by ID.
func (d *Maintenance) End(ctx context.Context, id int64) error {
	const q = `UPDATE maintenance_windows SET is_active = false, ended_at = now() WHERE id = $1 AND is_active`
	res, err := d.s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("end maintenance window: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("maintenance window %d is not active", id)
	}
	return nil
}

// Active returns every currently active window.
func (d *Maintenance) Active(ctx context.Context) ([]*models.MaintenanceWindow, error) {
	const q = `SELECT * FROM maintenance_windows WHERE is_active ORDER BY started_at DESC`
	var rows []maintenanceRow
	if err := d.s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("select active maintenance windows: %w", err)
	}
	out := make([]*models.MaintenanceWindow, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// IncrementSuppressed bumps the suppressed-alert counter for a window.
func (d *Maintenance) IncrementSuppressed(ctx context.Context, id int64) error {
	const q = `UPDATE maintenance_windows SET suppressed_alert_count = suppressed_alert_count + 1 WHERE id = $1`
	if _, err := d.s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("increment suppressed count: %w", err)
	}
	return nil
}
