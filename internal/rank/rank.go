// Package rank orders and filters assembled opportunity collections.
// Every strategy is deterministic: tie-break chains always end in the
// stable (entity id, scenario id) key.
package rank

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Strategy selects the ordering applied to an opportunity collection.
type Strategy string

const (
	StrategyRevenue    Strategy = "revenue"
	StrategyMatchScore Strategy = "match_score"
	StrategyPriority   Strategy = "priority"
	StrategyComposite  Strategy = "composite"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRevenue, StrategyMatchScore, StrategyPriority, StrategyComposite:
		return true
	}
	return false
}

// Options configures one ranking pass. Weights apply to the composite
// strategy only and are expected to sum to 1.0; when both are zero the
// defaults (0.4 match / 0.6 revenue) are used. There is no mutable
// module-level default: callers pass Options explicitly.
type Options struct {
	Strategy      Strategy
	MatchWeight   float64
	RevenueWeight float64
	Filters       *Filters
}

// DefaultOptions returns the composite strategy with default weights.
func DefaultOptions() Options {
	return Options{
		Strategy:      StrategyComposite,
		MatchWeight:   0.4,
		RevenueWeight: 0.6,
	}
}

func (o Options) normalized() Options {
	if !o.Strategy.Valid() {
		o.Strategy = StrategyComposite
	}
	if o.MatchWeight == 0 && o.RevenueWeight == 0 {
		o.MatchWeight = 0.4
		o.RevenueWeight = 0.6
	}
	return o
}

// Rank filters, sorts and annotates an opportunity collection. Filters run
// as a pre-pass; rank indices 1..N are assigned over the filtered set.
// The input slice is not reordered; score and revenue are never mutated.
func Rank(opps []*domain.Opportunity, opts Options) []*domain.Opportunity {
	opts = opts.normalized()

	ranked := make([]*domain.Opportunity, 0, len(opps))
	for _, o := range opps {
		if opts.Filters == nil || opts.Filters.Matches(o) {
			ranked = append(ranked, o)
		}
	}

	less := lessFunc(ranked, opts)
	sort.SliceStable(ranked, less)

	for i, o := range ranked {
		o.Rank = i + 1
	}
	return ranked
}

// lessFunc builds the comparison for the selected strategy.
func lessFunc(opps []*domain.Opportunity, opts Options) func(i, j int) bool {
	switch opts.Strategy {
	case StrategyRevenue:
		return func(i, j int) bool {
			a, b := opps[i], opps[j]
			if a.EstimatedRevenue != b.EstimatedRevenue {
				return a.EstimatedRevenue > b.EstimatedRevenue
			}
			if a.MatchScore != b.MatchScore {
				return a.MatchScore > b.MatchScore
			}
			return stableLess(a, b)
		}

	case StrategyMatchScore:
		return func(i, j int) bool {
			a, b := opps[i], opps[j]
			if a.MatchScore != b.MatchScore {
				return a.MatchScore > b.MatchScore
			}
			if a.EstimatedRevenue != b.EstimatedRevenue {
				return a.EstimatedRevenue > b.EstimatedRevenue
			}
			return stableLess(a, b)
		}

	case StrategyPriority:
		return func(i, j int) bool {
			a, b := opps[i], opps[j]
			if a.Priority.Rank() != b.Priority.Rank() {
				return a.Priority.Rank() > b.Priority.Rank()
			}
			if a.EstimatedRevenue != b.EstimatedRevenue {
				return a.EstimatedRevenue > b.EstimatedRevenue
			}
			return stableLess(a, b)
		}

	default: // StrategyComposite
		composite := compositeScores(opps, opts)
		return func(i, j int) bool {
			a, b := opps[i], opps[j]
			if composite[a] != composite[b] {
				return composite[a] > composite[b]
			}
			if a.MatchScore != b.MatchScore {
				return a.MatchScore > b.MatchScore
			}
			if a.EstimatedRevenue != b.EstimatedRevenue {
				return a.EstimatedRevenue > b.EstimatedRevenue
			}
			return stableLess(a, b)
		}
	}
}

// compositeScores blends match score with revenue normalized across the
// current set via min-max scaling to 0-100. A set with a single distinct
// revenue value normalizes to 0 for all, avoiding division by zero.
// Scores are keyed by opportunity so the sort can consult them after
// elements move.
func compositeScores(opps []*domain.Opportunity, opts Options) map[*domain.Opportunity]float64 {
	scores := make(map[*domain.Opportunity]float64, len(opps))
	if len(opps) == 0 {
		return scores
	}

	minRev, maxRev := opps[0].EstimatedRevenue, opps[0].EstimatedRevenue
	for _, o := range opps[1:] {
		if o.EstimatedRevenue < minRev {
			minRev = o.EstimatedRevenue
		}
		if o.EstimatedRevenue > maxRev {
			maxRev = o.EstimatedRevenue
		}
	}

	span := maxRev - minRev
	for _, o := range opps {
		var normalized float64
		if span > 0 {
			normalized = 100 * (o.EstimatedRevenue - minRev) / span
		}
		scores[o] = o.MatchScore*opts.MatchWeight + normalized*opts.RevenueWeight
	}
	return scores
}

// stableLess is the final deterministic tie-break: ascending entity id,
// then scenario id. The pair is unique within a scan, so the resulting
// order is total.
func stableLess(a, b *domain.Opportunity) bool {
	if a.EntityID != b.EntityID {
		return a.EntityID < b.EntityID
	}
	return a.ScenarioID < b.ScenarioID
}
