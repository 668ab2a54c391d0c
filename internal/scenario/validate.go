package scenario

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/revenue"
)

var validate = validator.New()

// Validate performs full structural and semantic validation of a scenario
// definition. Used by the loader, the API handlers and the engine reload
// path; an error here means the definition must be rejected as a whole.
func Validate(s *domain.Scenario) error {
	if s == nil {
		return fmt.Errorf("scenario is required")
	}

	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("scenario %s: %w", s.ID, err)
	}

	if !s.Priority.Valid() {
		return fmt.Errorf("scenario %s: unknown priority %q", s.ID, s.Priority)
	}

	for i, c := range s.Criteria {
		if err := validateCriterion(c); err != nil {
			return fmt.Errorf("scenario %s: criterion %d: %w", s.ID, i, err)
		}
	}

	if err := validateFormula(&s.Formula); err != nil {
		return fmt.Errorf("scenario %s: %w", s.ID, err)
	}

	return nil
}

func validateCriterion(c domain.Criterion) error {
	if !c.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}

	// Operand shape must be compatible with the operator.
	switch c.Operator {
	case domain.OpIn:
		switch c.Value.(type) {
		case []interface{}, []string, []float64, []int:
		default:
			return fmt.Errorf("operator %q expects a list operand", c.Operator)
		}
	case domain.OpContains:
		if _, ok := c.Value.(string); !ok {
			return fmt.Errorf("operator %q expects a string operand", c.Operator)
		}
	}

	return nil
}

func validateFormula(f *domain.RevenueFormula) error {
	if !f.Type.Valid() {
		return fmt.Errorf("unknown formula type %q", f.Type)
	}

	if f.RequiresMultiplier() && f.MultiplierField == "" {
		return fmt.Errorf("formula type %q requires a multiplier field", f.Type)
	}

	if f.Type == domain.FormulaTiered {
		if err := revenue.ValidateTiers(f.Tiers); err != nil {
			return err
		}
	}

	if f.MinRevenue != nil && f.MaxRevenue != nil && *f.MinRevenue > *f.MaxRevenue {
		return fmt.Errorf("min revenue exceeds max revenue")
	}

	return nil
}
