package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/homelab/warden/pkg/models"
)

// Snapshots is the DAO for state_snapshots, the rollback helper's
// pre-change capture store (SPEC_FULL.md §3 NEW).
type Snapshots struct {
	s *Store
}

// NewSnapshots builds a Snapshots DAO.
func NewSnapshots(s *Store) *Snapshots { return &Snapshots{s: s} }

type snapshotRow struct {
	SnapshotID     string         `db:"snapshot_id"`
	Host           string         `db:"host"`
	TargetType     string         `db:"target_type"`
	TargetName     string         `db:"target_name"`
	StateData      string         `db:"state_data"`
	AlertContext   sql.NullString `db:"alert_context"`
	CreatedAt      time.Time      `db:"created_at"`
	RolledBackAt   sql.NullTime   `db:"rolled_back_at"`
	RollbackReason sql.NullString `db:"rollback_reason"`
}

func (r snapshotRow) toModel() *models.Snapshot {
	s := &models.Snapshot{
		SnapshotID:     r.SnapshotID,
		Host:           r.Host,
		TargetType:     r.TargetType,
		TargetName:     r.TargetName,
		StateData:      r.StateData,
		AlertContext:   r.AlertContext.String,
		CreatedAt:      r.CreatedAt,
		RollbackReason: r.RollbackReason.String,
	}
	if r.RolledBackAt.Valid {
		s.RolledBackAt = &r.RolledBackAt.Time
	}
	return s
}

// Insert stores a new pre-change snapshot.
func (d *Snapshots) Insert(ctx context.Context, s *models.Snapshot) error {
	const q = `
		INSERT INTO state_snapshots (snapshot_id, host, target_type, target_name, state_data, alert_context)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''))`
	if _, err := d.s.db.ExecContext(ctx, q, s.SnapshotID, s.Host, s.TargetType, s.TargetName, s.StateData, s.AlertContext); err != nil {
		return fmt.Errorf("insert state_snapshot: %w", err)
	}
	return nil
}

// Get returns a snapshot by ID.
func (d *Snapshots) Get(ctx context.Context, id string) (*models.Snapshot, error) {
	const q = `SELECT * FROM state_snapshots WHERE snapshot_id = $1`
	var row snapshotRow
	if err := d.s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get state_snapshot: %w", err)
	}
	return row.toModel(), nil
}

// MarkRolledBack records that a snapshot was used to roll back a change.
func (d *Snapshots) MarkRolledBack(ctx context.Context, id, reason string) error {
	const q = `UPDATE state_snapshots SET rolled_back_at = now(), rollback_reason = $2 WHERE snapshot_id = $1`
	if _, err := d.s.db.ExecContext(ctx, q, id, reason); err != nil {
		return fmt.Errorf("mark state_snapshot rolled back: %w", err)
	}
	return nil
}

// CleanupOlderThan deletes snapshots created before cutoff, regardless of
// rollback status, in bounded batches of batchSize.
func (d *Snapshots) CleanupOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	const q = `
		DELETE FROM state_snapshots WHERE snapshot_id IN (
			SELECT snapshot_id FROM state_snapshots WHERE created_at < $1 LIMIT $2
		)`
	res, err := d.s.db.ExecContext(ctx, q, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("cleanup state_snapshots: %w", err)
	}
	return res.RowsAffected()
}
