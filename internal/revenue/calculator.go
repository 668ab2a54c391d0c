// Package revenue estimates the monetary value of a matched
// entity/scenario pair under one of the closed formula families.
package revenue

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/match"
)

// Calculate computes the estimated revenue for an entity under a formula
// and returns a line-by-line breakdown for auditability.
//
// Evaluation-time anomalies (absent or non-numeric multiplier field,
// unparseable tier keys) resolve to a zero or fallback contribution with a
// note in the breakdown; the function never errors.
func Calculate(entity *domain.Entity, f *domain.RevenueFormula) (float64, domain.RevenueBreakdown) {
	breakdown := domain.RevenueBreakdown{
		FormulaType:     f.Type,
		MultiplierField: f.MultiplierField,
	}

	var raw float64
	switch f.Type {
	case domain.FormulaFlatFee:
		raw = f.BaseRate
		breakdown.Lines = append(breakdown.Lines, domain.BreakdownLine{
			Label:  "flat fee",
			Amount: raw,
		})

	case domain.FormulaPercentage, domain.FormulaAUMBased:
		raw = calculateRate(entity, f, &breakdown)

	case domain.FormulaTiered:
		raw = calculateTiered(entity, f, &breakdown)

	default:
		// Unknown types are rejected at load time; a zero estimate here
		// keeps a misconfigured scenario from aborting the batch.
		breakdown.Notes = append(breakdown.Notes, fmt.Sprintf("unknown formula type %q", f.Type))
	}

	breakdown.RawAmount = raw

	final := clamp(raw, f.MinRevenue, f.MaxRevenue)
	breakdown.FinalAmount = final
	breakdown.Clamped = final != raw

	return final, breakdown
}

// calculateRate handles the percentage and aum_based families:
// base_rate * entity[multiplier_field].
func calculateRate(entity *domain.Entity, f *domain.RevenueFormula, breakdown *domain.RevenueBreakdown) float64 {
	value, ok := multiplierValue(entity, f, breakdown)
	if !ok {
		return 0
	}

	amount := f.BaseRate * value
	breakdown.Lines = append(breakdown.Lines, domain.BreakdownLine{
		Label:  fmt.Sprintf("%.4f x %.2f", f.BaseRate, value),
		Amount: amount,
	})
	return amount
}

// calculateTiered applies the marginal rate of each bracket to the portion
// of the multiplier value inside that bracket and sums the contributions
// (true bracket calculation, not a single-bracket lookup). When no bracket
// covers any portion of the value, it falls back to base_rate * value.
func calculateTiered(entity *domain.Entity, f *domain.RevenueFormula, breakdown *domain.RevenueBreakdown) float64 {
	value, ok := multiplierValue(entity, f, breakdown)
	if !ok {
		return 0
	}

	tiers, notes := parseTiers(f.Tiers)
	breakdown.Notes = append(breakdown.Notes, notes...)

	var amount, covered float64
	for _, t := range tiers {
		portion := t.portion(value)
		if portion <= 0 {
			continue
		}
		covered += portion
		contribution := t.rate * portion
		amount += contribution
		breakdown.Lines = append(breakdown.Lines, domain.BreakdownLine{
			Label:  fmt.Sprintf("tier %s @ %.4f on %.2f", t.key, t.rate, portion),
			Amount: contribution,
		})
	}

	if covered == 0 {
		// Empty, malformed, or non-covering tiers: fall back to the
		// formula's base rate.
		amount = f.BaseRate * value
		breakdown.Notes = append(breakdown.Notes, "no tier covers the value; applied base rate")
		breakdown.Lines = append(breakdown.Lines, domain.BreakdownLine{
			Label:  fmt.Sprintf("base rate %.4f x %.2f", f.BaseRate, value),
			Amount: amount,
		})
	}

	return amount
}

// multiplierValue resolves the formula's multiplier field on the entity.
// Absence or a non-numeric value yields (0, false) with a breakdown note.
func multiplierValue(entity *domain.Entity, f *domain.RevenueFormula, breakdown *domain.RevenueBreakdown) (float64, bool) {
	if f.MultiplierField == "" {
		breakdown.Notes = append(breakdown.Notes, "multiplier field not configured")
		return 0, false
	}

	raw, present := match.Resolve(entity.Attributes, f.MultiplierField)
	if !present {
		breakdown.Notes = append(breakdown.Notes, fmt.Sprintf("field %q not present on entity", f.MultiplierField))
		return 0, false
	}

	value, ok := match.Numeric(raw)
	if !ok {
		breakdown.Notes = append(breakdown.Notes, fmt.Sprintf("field %q is not numeric", f.MultiplierField))
		return 0, false
	}

	breakdown.MultiplierValue = value
	return value, true
}

// clamp applies min/max revenue bounds. Absent bounds impose no clamp;
// applying the clamp twice yields the same result as once.
func clamp(amount float64, min, max *float64) float64 {
	if max != nil && amount > *max {
		amount = *max
	}
	if min != nil && amount < *min {
		amount = *min
	}
	return amount
}
