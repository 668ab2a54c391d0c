package domain

// FormulaType is a closed set of revenue formula families.
type FormulaType string

const (
	// FormulaPercentage computes base_rate * entity[multiplier_field].
	FormulaPercentage FormulaType = "percentage"

	// FormulaFlatFee computes base_rate, independent of the entity.
	FormulaFlatFee FormulaType = "flat_fee"

	// FormulaTiered applies marginal bracket rates to portions of the
	// multiplier value, summing contributions across tiers.
	FormulaTiered FormulaType = "tiered"

	// FormulaAUMBased is computationally identical to percentage; the
	// distinct label is kept for domain readability in reports.
	FormulaAUMBased FormulaType = "aum_based"
)

// Valid reports whether t is a known formula type.
func (t FormulaType) Valid() bool {
	switch t {
	case FormulaPercentage, FormulaFlatFee, FormulaTiered, FormulaAUMBased:
		return true
	}
	return false
}

// RevenueFormula defines how estimated revenue is computed for a matched
// entity/scenario pair.
type RevenueFormula struct {
	Type FormulaType `json:"formulaType" validate:"required"`

	// Meaning depends on Type: fractional rate for percentage/aum_based,
	// absolute amount for flat_fee, default/fallback rate for tiered.
	BaseRate float64 `json:"baseRate"`

	// Dotted path to the entity value the rate applies to.
	// Required for percentage, aum_based and tiered; unused for flat_fee.
	MultiplierField string `json:"multiplierField,omitempty"`

	// Tier range strings to marginal rates, only for tiered.
	// Keys are "lower-upper" (lower inclusive, upper exclusive) or
	// "lower+" for an open-ended top bracket.
	Tiers map[string]float64 `json:"tiers,omitempty"`

	// Clamps applied after computation; absent bounds impose no clamp.
	MinRevenue *float64 `json:"minRevenue,omitempty"`
	MaxRevenue *float64 `json:"maxRevenue,omitempty"`
}

// RequiresMultiplier reports whether the formula type reads a multiplier
// field from the entity.
func (f *RevenueFormula) RequiresMultiplier() bool {
	return f.Type == FormulaPercentage || f.Type == FormulaAUMBased || f.Type == FormulaTiered
}
