package domain

import "time"

// Operator is a closed set of criterion comparison operators.
// Dispatch is an exhaustive switch in the match package; adding an operator
// is a compile-time exercise, not a string lookup.
type Operator string

const (
	OpGreaterThan  Operator = "gt"
	OpLessThan     Operator = "lt"
	OpGreaterEqual Operator = "gte"
	OpLessEqual    Operator = "lte"
	OpEqual        Operator = "eq"
	OpContains     Operator = "contains"
	OpIn           Operator = "in"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual, OpEqual, OpContains, OpIn:
		return true
	}
	return false
}

// Priority is the business urgency of a scenario, inherited by the
// opportunities it produces.
type Priority string

const (
	PriorityImmediate Priority = "immediate"
	PriorityHigh      Priority = "high"
	PriorityMedium    Priority = "medium"
	PriorityLow       Priority = "low"
)

// Rank maps a priority to a sortable value (higher = more urgent).
// Unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityImmediate:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Criterion is one field/operator/value/weight matching rule.
type Criterion struct {
	// Dotted path into the entity attribute tree, e.g. "portfolio.total_value"
	Field string `json:"field" validate:"required"`

	Operator Operator `json:"operator" validate:"required"`

	// Comparison operand; scalar for ordered operators, string for contains,
	// list for in.
	Value interface{} `json:"value"`

	// Relative importance within the scenario. Weights need not sum to 1;
	// the match engine normalizes at evaluation time.
	Weight float64 `json:"weight" validate:"gte=0,lte=1"`
}

// Scenario defines a named opportunity: a weighted rule set plus a revenue
// formula and an optional per-scenario match threshold override.
type Scenario struct {
	ID          string `json:"id" validate:"required"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Version     string `json:"version"`

	Priority Priority `json:"priority" validate:"required"`

	// Ordered list of matching criteria
	Criteria []Criterion `json:"criteria" validate:"required,min=1,dive"`

	// Revenue estimation formula, attached 1:1
	Formula RevenueFormula `json:"formula"`

	// Optional override of the global match threshold (0-100)
	MinMatchThreshold *float64 `json:"minMatchThreshold,omitempty" validate:"omitempty,gte=0,lte=100"`

	// Whether scenario is active
	Enabled bool `json:"enabled"`

	// Audit timestamps
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Threshold returns the scenario's own threshold override if present,
// else the caller-supplied global default.
func (s *Scenario) Threshold(globalDefault float64) float64 {
	if s.MinMatchThreshold != nil {
		return *s.MinMatchThreshold
	}
	return globalDefault
}
