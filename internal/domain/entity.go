package domain

import (
	"time"
)

// Entity represents a client record to be scanned for opportunities.
// Attributes carry an arbitrarily nested structure; the engine assumes no
// fixed schema beyond what individual criteria and formulas reference.
type Entity struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Nested attribute tree, e.g. {"age": 65, "portfolio": {"total_value": 500000}}
	Attributes map[string]interface{} `json:"attributes"`

	// Temporal
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EntityRequest is the API request payload for entity ingestion.
type EntityRequest struct {
	ID         string                 `json:"id,omitempty"`
	Attributes map[string]interface{} `json:"attributes" validate:"required"`
}

// ToEntity converts a request to an Entity domain object.
func (r *EntityRequest) ToEntity(tenantID string) *Entity {
	now := time.Now().UTC()
	return &Entity{
		ID:         r.ID,
		TenantID:   tenantID,
		Attributes: r.Attributes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
