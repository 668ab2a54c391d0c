// Package history provides detection history lookups over past scans.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultWindow is how long a detection suppresses re-announcement of the
// same entity/scenario pair.
const DefaultWindow = 24 * time.Hour

// Service answers "have we already surfaced this opportunity recently".
type Service struct {
	repo   domain.Repository
	window time.Duration
}

// NewService creates a detection history service. A non-positive window
// falls back to DefaultWindow.
func NewService(repo domain.Repository, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		repo:   repo,
		window: window,
	}
}

// CountRecentDetections returns how many times an entity/scenario pair was
// detected within the service window.
func (s *Service) CountRecentDetections(ctx context.Context, tenantID, entityID, scenarioID string) (int64, error) {
	if tenantID == "" || entityID == "" || scenarioID == "" {
		return 0, fmt.Errorf("tenantID, entityID and scenarioID are required")
	}

	since := time.Now().Add(-s.window)
	return s.repo.CountOpportunities(ctx, tenantID, entityID, scenarioID, since)
}

// RecentlyDetected reports whether the pair was already surfaced within the
// window. A lookup failure reads as "not detected".
func (s *Service) RecentlyDetected(ctx context.Context, tenantID, entityID, scenarioID string) bool {
	count, err := s.CountRecentDetections(ctx, tenantID, entityID, scenarioID)
	if err != nil {
		return false
	}
	return count > 0
}
