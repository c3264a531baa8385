package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AlertCache is the DAO for alert_processing_cache, the dedup gate (C4, §8
// property 1).
type AlertCache struct {
	s *Store
}

// NewAlertCache builds an AlertCache DAO.
func NewAlertCache(s *Store) *AlertCache { return &AlertCache{s: s} }

// TryClaim attempts to atomically record fingerprint as processed. It
// returns claimed=true only if this call inserted the row (i.e. no prior
// claim exists within cooldown) or the prior claim is outside cooldown and
// this call refreshed it. Exactly one concurrent caller for the same
// fingerprint within cooldown gets claimed=true; others get false.
func (d *AlertCache) TryClaim(ctx context.Context, fingerprint, alertName, alertInstance string, cooldown time.Duration) (claimed bool, err error) {
	const q = `
		INSERT INTO alert_processing_cache (fingerprint, alert_name, alert_instance, processed_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (fingerprint) DO UPDATE
			SET processed_at = now(), alert_name = EXCLUDED.alert_name, alert_instance = EXCLUDED.alert_instance
			WHERE alert_processing_cache.processed_at < now() - $4::interval
		RETURNING true`
	var claimedRow bool
	getErr := d.s.db.GetContext(ctx, &claimedRow, q, fingerprint, alertName, alertInstance, cooldown.String())
	if getErr != nil {
		if errors.Is(getErr, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("claim alert_processing_cache: %w", getErr)
	}
	return claimedRow, nil
}

// Clear removes the cache entry for a fingerprint, used on alert resolution.
func (d *AlertCache) Clear(ctx context.Context, fingerprint string) error {
	const q = `DELETE FROM alert_processing_cache WHERE fingerprint = $1`
	if _, err := d.s.db.ExecContext(ctx, q, fingerprint); err != nil {
		return fmt.Errorf("clear alert_processing_cache: %w", err)
	}
	return nil
}

// EscalationCooldowns is the DAO for escalation_cooldowns (C12).
type EscalationCooldowns struct {
	s *Store
}

// NewEscalationCooldowns builds an EscalationCooldowns DAO.
func NewEscalationCooldowns(s *Store) *EscalationCooldowns { return &EscalationCooldowns{s: s} }

// Check reports whether identity (alertName, alertInstance) is within an
// active escalation cooldown, and the timestamp it was last escalated at.
func (d *EscalationCooldowns) Check(ctx context.Context, alertName, alertInstance string, cooldown time.Duration) (active bool, escalatedAt *time.Time, err error) {
	const q = `SELECT escalated_at FROM escalation_cooldowns WHERE alert_name = $1 AND alert_instance = $2`
	var ts time.Time
	getErr := d.s.db.GetContext(ctx, &ts, q, alertName, alertInstance)
	if getErr != nil {
		if errors.Is(getErr, sql.ErrNoRows) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("check escalation_cooldowns: %w", getErr)
	}
	if time.Since(ts) >= cooldown {
		return false, &ts, nil
	}
	return true, &ts, nil
}

// Set records an escalation, starting (or restarting) the cooldown clock.
func (d *EscalationCooldowns) Set(ctx context.Context, alertName, alertInstance string) error {
	const q = `
		INSERT INTO escalation_cooldowns (alert_name, alert_instance, escalated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (alert_name, alert_instance) DO UPDATE SET escalated_at = now()`
	if _, err := d.s.db.ExecContext(ctx, q, alertName, alertInstance); err != nil {
		return fmt.Errorf("set escalation_cooldowns: %w", err)
	}
	return nil
}

// Clear removes the cooldown entry, used on alert resolution (§8 property 3).
func (d *EscalationCooldowns) Clear(ctx context.Context, alertName, alertInstance string) error {
	const q = `DELETE FROM escalation_cooldowns WHERE alert_name = $1 AND alert_instance = $2`
	if _, err := d.s.db.ExecContext(ctx, q, alertName, alertInstance); err != nil {
		return fmt.Errorf("clear escalation_cooldowns: %w", err)
	}
	return nil
}
