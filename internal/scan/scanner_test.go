package scan

import (
	"context"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/match"
	"github.com/opensource-finance/kestrel/internal/rank"
)

func floatPtr(f float64) *float64 { return &f }

func testEngine(t *testing.T, scenarios ...*domain.Scenario) *match.Engine {
	t.Helper()
	engine := match.NewEngine(60)
	for _, s := range scenarios {
		if err := engine.LoadScenario(s); err != nil {
			t.Fatalf("Failed to load scenario %s: %v", s.ID, err)
		}
	}
	return engine
}

func retirementScenario() *domain.Scenario {
	return &domain.Scenario{
		ID:       "scn-retirement",
		Name:     "Retirement Planning",
		Category: "advisory",
		Priority: domain.PriorityHigh,
		Criteria: []domain.Criterion{
			{Field: "age", Operator: domain.OpGreaterEqual, Value: 65.0, Weight: 1.0},
			{Field: "portfolio_value", Operator: domain.OpGreaterThan, Value: 250000.0, Weight: 1.0},
		},
		Formula: domain.RevenueFormula{
			Type:            domain.FormulaPercentage,
			BaseRate:        0.01,
			MultiplierField: "portfolio_value",
		},
		Enabled: true,
	}
}

func taxScenario() *domain.Scenario {
	return &domain.Scenario{
		ID:       "scn-tax",
		Name:     "Tax Review",
		Category: "tax",
		Priority: domain.PriorityMedium,
		Criteria: []domain.Criterion{
			{Field: "account_type", Operator: domain.OpEqual, Value: "ira", Weight: 1.0},
		},
		Formula: domain.RevenueFormula{
			Type:     domain.FormulaFlatFee,
			BaseRate: 1500,
		},
		Enabled: true,
	}
}

func entity(id string, attrs map[string]interface{}) *domain.Entity {
	return &domain.Entity{ID: id, TenantID: "tenant-a", Attributes: attrs}
}

func TestProcessorScan(t *testing.T) {
	t.Run("DetectsPassingPairs", func(t *testing.T) {
		processor := NewProcessor(testEngine(t, retirementScenario(), taxScenario()), 4)

		result := processor.Scan(context.Background(), &Input{
			TenantID: "tenant-a",
			Entities: []*domain.Entity{
				entity("client-001", map[string]interface{}{
					"age":             67.0,
					"portfolio_value": 500000.0,
					"account_type":    "ira",
				}),
				entity("client-002", map[string]interface{}{
					"age":             30.0,
					"portfolio_value": 10000.0,
					"account_type":    "brokerage",
				}),
			},
		})

		// client-001 passes both scenarios; client-002 passes neither.
		if len(result.Opportunities) != 2 {
			t.Fatalf("Expected 2 opportunities, got %d", len(result.Opportunities))
		}
		for _, o := range result.Opportunities {
			if o.EntityID != "client-001" {
				t.Errorf("Unexpected opportunity for %s", o.EntityID)
			}
			if o.ScanID != result.ID {
				t.Errorf("Opportunity scan id %s does not match result %s", o.ScanID, result.ID)
			}
			if o.TenantID != "tenant-a" {
				t.Errorf("Expected tenant carried onto opportunity, got %s", o.TenantID)
			}
		}

		if result.Metadata.EntitiesScanned != 2 {
			t.Errorf("Expected 2 entities scanned, got %d", result.Metadata.EntitiesScanned)
		}
		if result.Metadata.ScenariosEvaluated != 2 {
			t.Errorf("Expected 2 scenarios evaluated, got %d", result.Metadata.ScenariosEvaluated)
		}
		if result.Metadata.PairsEvaluated != 4 {
			t.Errorf("Expected 4 pairs evaluated, got %d", result.Metadata.PairsEvaluated)
		}
		if result.Summary.OpportunityCount != 2 {
			t.Errorf("Expected summary count 2, got %d", result.Summary.OpportunityCount)
		}
	})

	t.Run("RevenueAndScore", func(t *testing.T) {
		processor := NewProcessor(testEngine(t, retirementScenario()), 4)

		result := processor.Scan(context.Background(), &Input{
			TenantID: "tenant-a",
			Entities: []*domain.Entity{
				entity("client-001", map[string]interface{}{
					"age":             67.0,
					"portfolio_value": 500000.0,
				}),
			},
		})

		if len(result.Opportunities) != 1 {
			t.Fatalf("Expected 1 opportunity, got %d", len(result.Opportunities))
		}
		o := result.Opportunities[0]
		if o.MatchScore != 100 {
			t.Errorf("Expected score 100, got %v", o.MatchScore)
		}
		if o.EstimatedRevenue != 5000 {
			t.Errorf("Expected revenue 5000, got %v", o.EstimatedRevenue)
		}
		if o.Rank != 1 {
			t.Errorf("Expected rank 1, got %d", o.Rank)
		}
		if len(o.MatchDetails) != 2 {
			t.Errorf("Expected 2 match details, got %d", len(o.MatchDetails))
		}
	})

	t.Run("ThresholdOverrideAdmitsPartialMatch", func(t *testing.T) {
		// 50% match fails the global 60 threshold but passes an override of 50.
		s := retirementScenario()
		s.MinMatchThreshold = floatPtr(50)
		processor := NewProcessor(testEngine(t, s), 4)

		result := processor.Scan(context.Background(), &Input{
			TenantID: "tenant-a",
			Entities: []*domain.Entity{
				entity("client-003", map[string]interface{}{
					"age":             67.0,
					"portfolio_value": 100000.0,
				}),
			},
		})

		if len(result.Opportunities) != 1 {
			t.Fatalf("Expected 1 opportunity under override, got %d", len(result.Opportunities))
		}
		if result.Opportunities[0].MatchScore != 50 {
			t.Errorf("Expected score 50, got %v", result.Opportunities[0].MatchScore)
		}
	})

	t.Run("RankingOptionsApplied", func(t *testing.T) {
		processor := NewProcessor(testEngine(t, retirementScenario(), taxScenario()), 4)

		minRevenue := 2000.0
		result := processor.Scan(context.Background(), &Input{
			TenantID: "tenant-a",
			Entities: []*domain.Entity{
				entity("client-001", map[string]interface{}{
					"age":             67.0,
					"portfolio_value": 500000.0,
					"account_type":    "ira",
				}),
			},
			Options: rank.Options{
				Strategy: rank.StrategyRevenue,
				Filters:  &rank.Filters{MinRevenue: &minRevenue},
			},
		})

		// The 1500 flat-fee tax opportunity is filtered out.
		if len(result.Opportunities) != 1 {
			t.Fatalf("Expected 1 opportunity after filtering, got %d", len(result.Opportunities))
		}
		if result.Opportunities[0].ScenarioID != "scn-retirement" {
			t.Errorf("Expected scn-retirement, got %s", result.Opportunities[0].ScenarioID)
		}
	})

	t.Run("DeterministicAcrossRuns", func(t *testing.T) {
		processor := NewProcessor(testEngine(t, retirementScenario(), taxScenario()), 8)

		entities := []*domain.Entity{}
		for _, id := range []string{"client-005", "client-002", "client-009", "client-001"} {
			entities = append(entities, entity(id, map[string]interface{}{
				"age":             70.0,
				"portfolio_value": 400000.0,
				"account_type":    "ira",
			}))
		}

		input := func() *Input {
			return &Input{TenantID: "tenant-a", Entities: entities}
		}

		first := processor.Scan(context.Background(), input())
		for run := 0; run < 5; run++ {
			again := processor.Scan(context.Background(), input())
			if len(again.Opportunities) != len(first.Opportunities) {
				t.Fatalf("Run %d: count diverged", run)
			}
			for i := range first.Opportunities {
				a, b := first.Opportunities[i], again.Opportunities[i]
				if a.EntityID != b.EntityID || a.ScenarioID != b.ScenarioID {
					t.Fatalf("Run %d: order diverged at %d: %s/%s vs %s/%s",
						run, i, a.EntityID, a.ScenarioID, b.EntityID, b.ScenarioID)
				}
			}
		}
	})

	t.Run("EmptyEntityList", func(t *testing.T) {
		processor := NewProcessor(testEngine(t, retirementScenario()), 4)
		result := processor.Scan(context.Background(), &Input{TenantID: "tenant-a"})
		if len(result.Opportunities) != 0 {
			t.Errorf("Expected no opportunities, got %d", len(result.Opportunities))
		}
		if result.ID == "" {
			t.Error("Expected a scan id even for an empty batch")
		}
	})
}
