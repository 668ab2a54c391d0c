package domain

import (
	"time"
)

// MatchDetail is the per-criterion evaluation outcome, produced for every
// criterion of a scenario whether it matched or not. The collection forms
// the audit trail for a match score.
type MatchDetail struct {
	Field       string      `json:"field"`
	Operator    Operator    `json:"operator"`
	Expected    interface{} `json:"expected"`
	Actual      interface{} `json:"actual,omitempty"`
	Weight      float64     `json:"weight"`
	Matched     bool        `json:"matched"`
	Explanation string      `json:"explanation"`
}

// BreakdownLine is one intermediate component of a revenue computation.
type BreakdownLine struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// RevenueBreakdown records how an estimated revenue figure was produced,
// line by line, so the result is auditable.
type RevenueBreakdown struct {
	FormulaType     FormulaType     `json:"formulaType"`
	MultiplierField string          `json:"multiplierField,omitempty"`
	MultiplierValue float64         `json:"multiplierValue,omitempty"`
	Lines           []BreakdownLine `json:"lines,omitempty"`

	// RawAmount is the pre-clamp figure; FinalAmount is after min/max clamps.
	RawAmount   float64 `json:"rawAmount"`
	FinalAmount float64 `json:"finalAmount"`
	Clamped     bool    `json:"clamped"`

	// Evaluation-time anomalies (absent multiplier, unparseable tier keys)
	// surface here instead of aborting the batch.
	Notes []string `json:"notes,omitempty"`
}

// Opportunity is the immutable result of an entity/scenario pair that
// passed its match threshold. Ranking only annotates Rank; it never
// mutates score or revenue.
type Opportunity struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	ScanID   string `json:"scanId,omitempty"`

	EntityID     string `json:"entityId"`
	ScenarioID   string `json:"scenarioId"`
	ScenarioName string `json:"scenarioName"`
	Category     string `json:"category,omitempty"`

	// Inherited from the scenario
	Priority Priority `json:"priority"`

	// Weighted percentage of criteria satisfied (0-100)
	MatchScore   float64       `json:"matchScore"`
	MatchDetails []MatchDetail `json:"matchDetails"`

	EstimatedRevenue float64          `json:"estimatedRevenue"`
	RevenueBreakdown RevenueBreakdown `json:"revenueBreakdown"`

	// Assigned 1..N by the ranking engine; zero until ranked.
	Rank int `json:"rank,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ScanResult is the complete outcome of one batch scan: the ranked
// opportunity collection plus summary statistics and processing metadata.
type ScanResult struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Timestamp time.Time `json:"timestamp"`

	Opportunities []*Opportunity `json:"opportunities"`

	Summary  ScanSummary  `json:"summary"`
	Metadata ScanMetadata `json:"metadata"`
}

// ScanSummary holds batch-level statistics over the detected opportunities.
type ScanSummary struct {
	OpportunityCount int     `json:"opportunityCount"`
	TotalRevenue     float64 `json:"totalRevenue"`
	MeanRevenue      float64 `json:"meanRevenue"`
	MedianRevenue    float64 `json:"medianRevenue"`
	StdDevRevenue    float64 `json:"stdDevRevenue"`
	P90Revenue       float64 `json:"p90Revenue"`
	MeanMatchScore   float64 `json:"meanMatchScore"`

	ByPriority map[Priority]int `json:"byPriority,omitempty"`
}

// ScanMetadata contains processing information for a scan.
type ScanMetadata struct {
	TraceID            string `json:"traceId,omitempty"`
	EntitiesScanned    int    `json:"entitiesScanned"`
	ScenariosEvaluated int    `json:"scenariosEvaluated"`
	PairsEvaluated     int    `json:"pairsEvaluated"`
	MatchMs            int64  `json:"matchMs"`
	RankMs             int64  `json:"rankMs"`
	TotalMs            int64  `json:"totalMs"`
	EngineVersion      string `json:"engineVersion"`
}
