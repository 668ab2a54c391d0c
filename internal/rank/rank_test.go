package rank

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func opp(entityID, scenarioID string, score, rev float64, priority domain.Priority) *domain.Opportunity {
	return &domain.Opportunity{
		EntityID:         entityID,
		ScenarioID:       scenarioID,
		Priority:         priority,
		MatchScore:       score,
		EstimatedRevenue: rev,
	}
}

func ids(opps []*domain.Opportunity) []string {
	out := make([]string, len(opps))
	for i, o := range opps {
		out[i] = o.EntityID + "/" + o.ScenarioID
	}
	return out
}

func assertOrder(t *testing.T, got []*domain.Opportunity, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %d opportunities, got %d: %v", len(want), len(got), ids(got))
	}
	for i, key := range want {
		if got[i].EntityID+"/"+got[i].ScenarioID != key {
			t.Fatalf("Position %d: expected %s, got %v", i, key, ids(got))
		}
	}
}

func TestRankStrategies(t *testing.T) {
	t.Run("Revenue", func(t *testing.T) {
		opps := []*domain.Opportunity{
			opp("e1", "s1", 90, 1000, domain.PriorityLow),
			opp("e2", "s1", 60, 5000, domain.PriorityLow),
			opp("e3", "s1", 80, 3000, domain.PriorityHigh),
		}
		ranked := Rank(opps, Options{Strategy: StrategyRevenue})
		assertOrder(t, ranked, []string{"e2/s1", "e3/s1", "e1/s1"})
	})

	t.Run("MatchScore", func(t *testing.T) {
		opps := []*domain.Opportunity{
			opp("e1", "s1", 60, 5000, domain.PriorityLow),
			opp("e2", "s1", 90, 1000, domain.PriorityLow),
		}
		ranked := Rank(opps, Options{Strategy: StrategyMatchScore})
		assertOrder(t, ranked, []string{"e2/s1", "e1/s1"})
	})

	t.Run("Priority", func(t *testing.T) {
		opps := []*domain.Opportunity{
			opp("e1", "s1", 90, 9000, domain.PriorityLow),
			opp("e2", "s1", 60, 1000, domain.PriorityImmediate),
			opp("e3", "s1", 70, 2000, domain.PriorityHigh),
		}
		ranked := Rank(opps, Options{Strategy: StrategyPriority})
		assertOrder(t, ranked, []string{"e2/s1", "e3/s1", "e1/s1"})
	})

	t.Run("PriorityTieBreaksOnRevenue", func(t *testing.T) {
		opps := []*domain.Opportunity{
			opp("e1", "s1", 90, 1000, domain.PriorityHigh),
			opp("e2", "s1", 60, 5000, domain.PriorityHigh),
		}
		ranked := Rank(opps, Options{Strategy: StrategyPriority})
		assertOrder(t, ranked, []string{"e2/s1", "e1/s1"})
	})

	t.Run("Composite", func(t *testing.T) {
		// e1: 100*0.4 + 0*0.6 = 40; e2: 50*0.4 + 100*0.6 = 80.
		opps := []*domain.Opportunity{
			opp("e1", "s1", 100, 1000, domain.PriorityLow),
			opp("e2", "s1", 50, 9000, domain.PriorityLow),
		}
		ranked := Rank(opps, Options{Strategy: StrategyComposite, MatchWeight: 0.4, RevenueWeight: 0.6})
		assertOrder(t, ranked, []string{"e2/s1", "e1/s1"})
	})

	t.Run("CompositeOrdersLargerSets", func(t *testing.T) {
		// e1: 100*0.4 + 0*0.6 = 40; e2: 40*0.4 + 80*0.6 = 64;
		// e3: 0*0.4 + 100*0.6 = 60. The composite order (e2, e3, e1)
		// matches neither the input order nor any single sort key, so the
		// comparison has to track each opportunity's own score while
		// elements move during the sort.
		opps := []*domain.Opportunity{
			opp("e1", "s1", 100, 0, domain.PriorityLow),
			opp("e2", "s1", 40, 80, domain.PriorityLow),
			opp("e3", "s1", 0, 100, domain.PriorityLow),
		}
		ranked := Rank(opps, Options{Strategy: StrategyComposite, MatchWeight: 0.4, RevenueWeight: 0.6})
		assertOrder(t, ranked, []string{"e2/s1", "e3/s1", "e1/s1"})
	})

	t.Run("CompositeWeightsFlipOrder", func(t *testing.T) {
		// Match-heavy weights favor e1 instead.
		opps := []*domain.Opportunity{
			opp("e1", "s1", 100, 1000, domain.PriorityLow),
			opp("e2", "s1", 50, 9000, domain.PriorityLow),
		}
		ranked := Rank(opps, Options{Strategy: StrategyComposite, MatchWeight: 0.9, RevenueWeight: 0.1})
		assertOrder(t, ranked, []string{"e1/s1", "e2/s1"})
	})

	t.Run("CompositeSingleRevenueValueNormalizesToZero", func(t *testing.T) {
		// Identical revenue across the set: composite reduces to the match
		// score component only.
		opps := []*domain.Opportunity{
			opp("e1", "s1", 70, 5000, domain.PriorityLow),
			opp("e2", "s1", 95, 5000, domain.PriorityLow),
		}
		ranked := Rank(opps, DefaultOptions())
		assertOrder(t, ranked, []string{"e2/s1", "e1/s1"})
	})

	t.Run("UnknownStrategyFallsBackToComposite", func(t *testing.T) {
		opps := []*domain.Opportunity{
			opp("e1", "s1", 100, 1000, domain.PriorityLow),
			opp("e2", "s1", 50, 9000, domain.PriorityLow),
		}
		ranked := Rank(opps, Options{Strategy: "alphabetical"})
		assertOrder(t, ranked, []string{"e2/s1", "e1/s1"})
	})
}

func TestRankDeterminism(t *testing.T) {
	t.Run("StableTieBreakOnIdentity", func(t *testing.T) {
		// Fully tied on every sort key; order falls to (entity, scenario).
		opps := []*domain.Opportunity{
			opp("e2", "s2", 80, 3000, domain.PriorityHigh),
			opp("e2", "s1", 80, 3000, domain.PriorityHigh),
			opp("e1", "s9", 80, 3000, domain.PriorityHigh),
		}
		for _, strategy := range []Strategy{StrategyRevenue, StrategyMatchScore, StrategyPriority, StrategyComposite} {
			ranked := Rank(opps, Options{Strategy: strategy})
			assertOrder(t, ranked, []string{"e1/s9", "e2/s1", "e2/s2"})
		}
	})

	t.Run("RepeatedRunsAgree", func(t *testing.T) {
		opps := []*domain.Opportunity{
			opp("e3", "s1", 75, 2500, domain.PriorityMedium),
			opp("e1", "s2", 90, 1200, domain.PriorityHigh),
			opp("e2", "s1", 75, 2500, domain.PriorityMedium),
			opp("e1", "s1", 60, 8000, domain.PriorityLow),
		}

		first := ids(Rank(opps, DefaultOptions()))
		for i := 0; i < 10; i++ {
			again := ids(Rank(opps, DefaultOptions()))
			for j := range first {
				if first[j] != again[j] {
					t.Fatalf("Run %d diverged: %v vs %v", i, first, again)
				}
			}
		}
	})
}

func TestRankAssignsIndices(t *testing.T) {
	opps := []*domain.Opportunity{
		opp("e1", "s1", 90, 1000, domain.PriorityLow),
		opp("e2", "s1", 60, 5000, domain.PriorityLow),
		opp("e3", "s1", 80, 3000, domain.PriorityLow),
	}
	ranked := Rank(opps, Options{Strategy: StrategyRevenue})
	for i, o := range ranked {
		if o.Rank != i+1 {
			t.Errorf("Position %d has rank %d", i, o.Rank)
		}
	}
}

func TestRankFiltersBeforeRanking(t *testing.T) {
	min := 70.0
	opps := []*domain.Opportunity{
		opp("e1", "s1", 90, 1000, domain.PriorityLow),
		opp("e2", "s1", 60, 5000, domain.PriorityLow),
		opp("e3", "s1", 80, 3000, domain.PriorityLow),
	}
	ranked := Rank(opps, Options{
		Strategy: StrategyRevenue,
		Filters:  &Filters{MinMatchScore: &min},
	})

	assertOrder(t, ranked, []string{"e3/s1", "e1/s1"})
	// Rank indices cover the filtered set only.
	if ranked[0].Rank != 1 || ranked[1].Rank != 2 {
		t.Errorf("Expected ranks 1,2 over filtered set, got %d,%d", ranked[0].Rank, ranked[1].Rank)
	}
}

func TestRankEmptyInput(t *testing.T) {
	ranked := Rank(nil, DefaultOptions())
	if len(ranked) != 0 {
		t.Errorf("Expected empty result, got %d", len(ranked))
	}
}
