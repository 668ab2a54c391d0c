package rank

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Quick-win defaults: a quick win is a high match score on a scenario with
// few criteria (criteria count is the effort proxy).
const (
	DefaultQuickWinMinScore    = 80.0
	DefaultQuickWinMaxCriteria = 3
)

// Filters is a set of AND-combined predicates over already-assembled
// opportunity fields. Filtering never re-triggers matching or revenue
// computation.
type Filters struct {
	// MinMatchScore keeps opportunities with score >= the bound.
	MinMatchScore *float64

	// Revenue window
	MinRevenue *float64
	MaxRevenue *float64

	// Priorities restricts to the given set when non-empty.
	Priorities []domain.Priority

	// QuickWin keeps high-score, low-effort opportunities. Zero values for
	// the knobs fall back to the package defaults.
	QuickWin            bool
	QuickWinMinScore    float64
	QuickWinMaxCriteria int

	// HighValueMin keeps opportunities with revenue above the threshold.
	HighValueMin *float64

	// Expression is an optional CEL predicate over opportunity fields,
	// compiled once via Compile.
	Expression string

	program cel.Program
}

// Compile prepares the CEL expression filter, if one is configured.
// An invalid expression is a configuration error surfaced to the caller
// before any ranking happens.
func (f *Filters) Compile() error {
	if f == nil || f.Expression == "" {
		return nil
	}

	env, err := cel.NewEnv(
		cel.Variable("entity_id", cel.StringType),
		cel.Variable("scenario_id", cel.StringType),
		cel.Variable("scenario_name", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("priority", cel.StringType),
		cel.Variable("match_score", cel.DoubleType),
		cel.Variable("estimated_revenue", cel.DoubleType),
	)
	if err != nil {
		return fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(f.Expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("failed to compile filter expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return fmt.Errorf("failed to create filter program: %w", err)
	}

	f.program = program
	return nil
}

// Matches reports whether an opportunity passes every configured predicate.
func (f *Filters) Matches(o *domain.Opportunity) bool {
	if f == nil {
		return true
	}

	if f.MinMatchScore != nil && o.MatchScore < *f.MinMatchScore {
		return false
	}
	if f.MinRevenue != nil && o.EstimatedRevenue < *f.MinRevenue {
		return false
	}
	if f.MaxRevenue != nil && o.EstimatedRevenue > *f.MaxRevenue {
		return false
	}

	if len(f.Priorities) > 0 {
		allowed := false
		for _, p := range f.Priorities {
			if o.Priority == p {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if f.QuickWin && !f.isQuickWin(o) {
		return false
	}

	if f.HighValueMin != nil && o.EstimatedRevenue <= *f.HighValueMin {
		return false
	}

	if f.program != nil && !f.matchesExpression(o) {
		return false
	}

	return true
}

func (f *Filters) isQuickWin(o *domain.Opportunity) bool {
	minScore := f.QuickWinMinScore
	if minScore == 0 {
		minScore = DefaultQuickWinMinScore
	}
	maxCriteria := f.QuickWinMaxCriteria
	if maxCriteria == 0 {
		maxCriteria = DefaultQuickWinMaxCriteria
	}
	return o.MatchScore >= minScore && len(o.MatchDetails) <= maxCriteria
}

func (f *Filters) matchesExpression(o *domain.Opportunity) bool {
	out, _, err := f.program.Eval(map[string]interface{}{
		"entity_id":         o.EntityID,
		"scenario_id":       o.ScenarioID,
		"scenario_name":     o.ScenarioName,
		"category":          o.Category,
		"priority":          string(o.Priority),
		"match_score":       o.MatchScore,
		"estimated_revenue": o.EstimatedRevenue,
	})
	if err != nil {
		// Evaluation failure excludes rather than aborts.
		return false
	}

	b, ok := out.(types.Bool)
	return ok && bool(b)
}
