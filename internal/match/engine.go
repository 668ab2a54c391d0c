package match

import (
	"fmt"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine holds the loaded scenario set and the global match threshold.
// Scenarios are read-only configuration for the duration of a run; the
// engine supports hot-reloading the whole set from the database.
type Engine struct {
	mu               sync.RWMutex
	scenarios        map[string]*domain.Scenario
	defaultThreshold float64
}

// NewEngine creates a matching engine. The default threshold is the global
// minimum match score (0-100); scenarios may override it individually.
func NewEngine(defaultThreshold float64) *Engine {
	if defaultThreshold < 0 {
		defaultThreshold = 0
	}
	if defaultThreshold > 100 {
		defaultThreshold = 100
	}
	return &Engine{
		scenarios:        make(map[string]*domain.Scenario),
		defaultThreshold: defaultThreshold,
	}
}

// DefaultThreshold returns the configured global threshold.
func (e *Engine) DefaultThreshold() float64 {
	return e.defaultThreshold
}

// ValidateScenario checks a scenario for structural problems without
// loading it. Configuration errors are fatal at load time; the engine
// never evaluates an invalid scenario.
func (e *Engine) ValidateScenario(s *domain.Scenario) error {
	if s == nil {
		return fmt.Errorf("scenario is required")
	}
	if s.ID == "" {
		return fmt.Errorf("scenario id is required")
	}
	if len(s.Criteria) == 0 {
		return fmt.Errorf("scenario %s: at least one criterion is required", s.ID)
	}
	for i, c := range s.Criteria {
		if c.Field == "" {
			return fmt.Errorf("scenario %s: criterion %d: field is required", s.ID, i)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("scenario %s: criterion %d: unknown operator %q", s.ID, i, c.Operator)
		}
		if c.Weight < 0 || c.Weight > 1 {
			return fmt.Errorf("scenario %s: criterion %d: weight must be in [0,1]", s.ID, i)
		}
	}
	if !s.Priority.Valid() {
		return fmt.Errorf("scenario %s: unknown priority %q", s.ID, s.Priority)
	}
	if !s.Formula.Type.Valid() {
		return fmt.Errorf("scenario %s: unknown formula type %q", s.ID, s.Formula.Type)
	}
	if s.MinMatchThreshold != nil && (*s.MinMatchThreshold < 0 || *s.MinMatchThreshold > 100) {
		return fmt.Errorf("scenario %s: min match threshold must be in [0,100]", s.ID)
	}
	return nil
}

// LoadScenario validates and loads a single scenario.
func (e *Engine) LoadScenario(s *domain.Scenario) error {
	if err := e.ValidateScenario(s); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenarios[s.ID] = s
	return nil
}

// LoadScenarios validates and loads multiple scenarios. Only enabled
// scenarios are loaded.
func (e *Engine) LoadScenarios(scenarios []*domain.Scenario) error {
	for _, s := range scenarios {
		if s.Enabled {
			if err := e.LoadScenario(s); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadScenarios replaces the loaded set atomically (hot reload from the
// database). The whole batch is validated before any swap happens.
func (e *Engine) ReloadScenarios(scenarios []*domain.Scenario) error {
	next := make(map[string]*domain.Scenario)
	for _, s := range scenarios {
		if !s.Enabled {
			continue
		}
		if err := e.ValidateScenario(s); err != nil {
			return err
		}
		next[s.ID] = s
	}

	e.mu.Lock()
	e.scenarios = next
	e.mu.Unlock()
	return nil
}

// GetLoadedScenarios returns a snapshot of the currently loaded scenarios.
func (e *Engine) GetLoadedScenarios() []*domain.Scenario {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.Scenario, 0, len(e.scenarios))
	for _, s := range e.scenarios {
		out = append(out, s)
	}
	return out
}

// ScenarioCount returns the number of loaded scenarios.
func (e *Engine) ScenarioCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.scenarios)
}

// Match evaluates every criterion of a scenario against one entity and
// aggregates into a weighted match score (0-100) plus a per-criterion
// audit trail. A detail is recorded for every criterion, matched or not.
func (e *Engine) Match(entity *domain.Entity, s *domain.Scenario) (float64, []domain.MatchDetail) {
	return Score(entity, s)
}

// Passes reports whether a score clears the scenario's threshold
// (scenario override if present, else the engine's global default).
func (e *Engine) Passes(s *domain.Scenario, score float64) bool {
	return score >= s.Threshold(e.defaultThreshold)
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenarios = make(map[string]*domain.Scenario)
	return nil
}

// Score is the pure matching function underlying Engine.Match.
//
// Algorithm:
//  1. For each criterion, resolve the field, evaluate it, and record a
//     MatchDetail regardless of outcome.
//  2. earned = sum of weights for matched criteria;
//     possible = sum of weights over all criteria.
//  3. score = 0 when possible == 0, else 100 * earned / possible.
//
// Weighted-fraction scoring tolerates partial matches while letting the
// scenario author emphasize essential criteria through weights.
func Score(entity *domain.Entity, s *domain.Scenario) (float64, []domain.MatchDetail) {
	details := make([]domain.MatchDetail, 0, len(s.Criteria))

	var earned, possible float64
	for _, c := range s.Criteria {
		actual, present := Resolve(entity.Attributes, c.Field)
		matched, explanation := Evaluate(actual, present, c.Operator, c.Value)

		weight := c.Weight
		if weight < 0 {
			weight = 0
		}
		possible += weight
		if matched {
			earned += weight
		}

		details = append(details, domain.MatchDetail{
			Field:       c.Field,
			Operator:    c.Operator,
			Expected:    c.Value,
			Actual:      actual,
			Weight:      weight,
			Matched:     matched,
			Explanation: explanation,
		})
	}

	if possible == 0 {
		return 0, details
	}
	return 100 * earned / possible, details
}
