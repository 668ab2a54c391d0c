package rank

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Summarize computes batch-level statistics over a ranked opportunity set
// for scan reports.
func Summarize(opps []*domain.Opportunity) domain.ScanSummary {
	summary := domain.ScanSummary{
		OpportunityCount: len(opps),
		ByPriority:       make(map[domain.Priority]int),
	}
	if len(opps) == 0 {
		return summary
	}

	revenues := make([]float64, len(opps))
	scores := make([]float64, len(opps))
	for i, o := range opps {
		revenues[i] = o.EstimatedRevenue
		scores[i] = o.MatchScore
		summary.TotalRevenue += o.EstimatedRevenue
		summary.ByPriority[o.Priority]++
	}

	summary.MeanRevenue = stat.Mean(revenues, nil)
	summary.MeanMatchScore = stat.Mean(scores, nil)
	if len(revenues) > 1 {
		summary.StdDevRevenue = stat.StdDev(revenues, nil)
	}

	sorted := append([]float64(nil), revenues...)
	sort.Float64s(sorted)
	summary.MedianRevenue = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	summary.P90Revenue = stat.Quantile(0.9, stat.Empirical, sorted, nil)

	return summary
}
