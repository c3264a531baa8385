// Package maintenance implements maintenance window CRUD (C15): start/end a
// suppression window and query current status, a thin wrapper over
// pkg/store's Maintenance DAO exposed at /maintenance/{start,end,status}
// (SPEC_FULL.md §4.15).
package maintenance

import (
	"context"
	"fmt"

	"github.com/homelab/warden/pkg/models"
)

// DAO is the subset of *store.Maintenance the service needs.
type DAO interface {
	Start(ctx context.Context, host, reason, createdBy string) (*models.MaintenanceWindow, error)
	End(ctx context.Context, id int64) error
	Active(ctx context.Context) ([]*models.MaintenanceWindow, error)
	IncrementSuppressed(ctx context.Context, id int64) error
}

// Service manages maintenance windows.
type Service struct {
	dao DAO
}

// New builds a Service.
func New(dao DAO) *Service {
	return &Service{dao: dao}
}

// Start opens a new maintenance window. host == "" suppresses fleet-wide.
func (s *Service) Start(ctx context.Context, host, reason, createdBy string) (*models.MaintenanceWindow, error) {
	return s.dao.Start(ctx, host, reason, createdBy)
}

// End closes an active window by ID.
func (s *Service) End(ctx context.Context, id int64) error {
	return s.dao.End(ctx, id)
}

// Status returns the active windows that apply to host (including any
// global window), or every active window if host is "".
func (s *Service) Status(ctx context.Context, host string) ([]*models.MaintenanceWindow, error) {
	active, err := s.dao.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active maintenance windows: %w", err)
	}
	if host == "" {
		return active, nil
	}
	matching := make([]*models.MaintenanceWindow, 0, len(active))
	for _, w := range active {
		if w.Matches(host) {
			matching = append(matching, w)
		}
	}
	return matching, nil
}
