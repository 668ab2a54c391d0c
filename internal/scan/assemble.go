// Package scan runs the batch opportunity detection pipeline:
// entity/scenario matching fans out over a bounded worker pool, revenue is
// estimated for passing pairs, and the joined collection is ranked once.
package scan

import (
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Assemble combines a passing match with its revenue estimate into an
// immutable Opportunity. Pure construction: the scenario priority is
// copied onto the opportunity and a creation identity stamped. Pairs that
// fail their threshold never reach this step.
func Assemble(entity *domain.Entity, s *domain.Scenario, score float64, details []domain.MatchDetail, amount float64, breakdown domain.RevenueBreakdown) *domain.Opportunity {
	return &domain.Opportunity{
		ID:               uuid.New().String(),
		TenantID:         entity.TenantID,
		EntityID:         entity.ID,
		ScenarioID:       s.ID,
		ScenarioName:     s.Name,
		Category:         s.Category,
		Priority:         s.Priority,
		MatchScore:       score,
		MatchDetails:     details,
		EstimatedRevenue: amount,
		RevenueBreakdown: breakdown,
		CreatedAt:        time.Now().UTC(),
	}
}
