// Package scenario loads and validates scenario definitions.
//
// Malformed definitions (missing required fields, unknown operator or
// formula enums, non-numeric tier boundaries) are fatal here, before any
// matching begins; the engines never see an invalid scenario.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// file formats mirror the domain types with snake_case keys.
type scenarioFile struct {
	Scenarios []scenarioDef `yaml:"scenarios" json:"scenarios"`
}

type scenarioDef struct {
	ID                string         `yaml:"id" json:"id"`
	Name              string         `yaml:"name" json:"name"`
	Description       string         `yaml:"description" json:"description"`
	Category          string         `yaml:"category" json:"category"`
	Version           string         `yaml:"version" json:"version"`
	Priority          string         `yaml:"priority" json:"priority"`
	Criteria          []criterionDef `yaml:"criteria" json:"criteria"`
	Formula           formulaDef     `yaml:"formula" json:"formula"`
	MinMatchThreshold *float64       `yaml:"min_match_threshold" json:"min_match_threshold"`
	Enabled           *bool          `yaml:"enabled" json:"enabled"`
}

type criterionDef struct {
	Field    string      `yaml:"field" json:"field"`
	Operator string      `yaml:"operator" json:"operator"`
	Value    interface{} `yaml:"value" json:"value"`
	Weight   float64     `yaml:"weight" json:"weight"`
}

type formulaDef struct {
	Type            string             `yaml:"type" json:"type"`
	BaseRate        float64            `yaml:"base_rate" json:"base_rate"`
	MultiplierField string             `yaml:"multiplier_field" json:"multiplier_field"`
	Tiers           map[string]float64 `yaml:"tiers" json:"tiers"`
	MinRevenue      *float64           `yaml:"min_revenue" json:"min_revenue"`
	MaxRevenue      *float64           `yaml:"max_revenue" json:"max_revenue"`
}

// Load reads scenario definitions from a YAML or JSON file and validates
// every one of them. Any invalid definition fails the whole load.
func Load(path string) ([]*domain.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var file scenarioFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse scenario JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported scenario file extension %q", filepath.Ext(path))
	}

	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("scenario file %s defines no scenarios", path)
	}

	now := time.Now().UTC()
	scenarios := make([]*domain.Scenario, 0, len(file.Scenarios))
	for _, def := range file.Scenarios {
		s := def.toDomain(now)
		if err := Validate(s); err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}

	return scenarios, nil
}

func (d scenarioDef) toDomain(now time.Time) *domain.Scenario {
	criteria := make([]domain.Criterion, 0, len(d.Criteria))
	for _, c := range d.Criteria {
		criteria = append(criteria, domain.Criterion{
			Field:    c.Field,
			Operator: domain.Operator(c.Operator),
			Value:    c.Value,
			Weight:   c.Weight,
		})
	}

	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}

	return &domain.Scenario{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Version:     d.Version,
		Priority:    domain.Priority(d.Priority),
		Criteria:    criteria,
		Formula: domain.RevenueFormula{
			Type:            domain.FormulaType(d.Formula.Type),
			BaseRate:        d.Formula.BaseRate,
			MultiplierField: d.Formula.MultiplierField,
			Tiers:           d.Formula.Tiers,
			MinRevenue:      d.Formula.MinRevenue,
			MaxRevenue:      d.Formula.MaxRevenue,
		},
		MinMatchThreshold: d.MinMatchThreshold,
		Enabled:           enabled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
