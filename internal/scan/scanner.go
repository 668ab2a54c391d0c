package scan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/match"
	"github.com/opensource-finance/kestrel/internal/rank"
	"github.com/opensource-finance/kestrel/internal/revenue"
)

// EngineVersion is stamped into scan metadata.
const EngineVersion = "kestrel-1.0"

// Processor drives batch scans. Matching and revenue estimation are pure
// functions over immutable inputs, so every entity/scenario pair runs on
// an independent worker; ranking is the single serialization point because
// composite normalization needs the complete collection.
type Processor struct {
	engine     *match.Engine
	maxWorkers int
}

// NewProcessor creates a scan processor. maxWorkers bounds the concurrent
// pair evaluations.
func NewProcessor(engine *match.Engine, maxWorkers int) *Processor {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Processor{
		engine:     engine,
		maxWorkers: maxWorkers,
	}
}

// Input holds one batch scan request.
type Input struct {
	TenantID string
	TraceID  string
	Entities []*domain.Entity

	// Ranking configuration; zero value means composite with defaults.
	Options rank.Options

	// StartTime, when set, anchors the TotalMs metadata to the moment the
	// request entered the system rather than the start of matching.
	StartTime time.Time
}

// Scan evaluates every entity against every loaded scenario, assembles
// opportunities for passing pairs, and returns the ranked result set with
// summary statistics and timing metadata.
func (p *Processor) Scan(ctx context.Context, input *Input) *domain.ScanResult {
	start := time.Now()
	if input.StartTime.IsZero() {
		input.StartTime = start
	}

	scenarios := p.engine.GetLoadedScenarios()

	type pair struct {
		entity   *domain.Entity
		scenario *domain.Scenario
	}
	pairs := make([]pair, 0, len(input.Entities)*len(scenarios))
	for _, e := range input.Entities {
		for _, s := range scenarios {
			pairs = append(pairs, pair{entity: e, scenario: s})
		}
	}

	// Fan out pair evaluation; results stay index-addressed so no
	// synchronization is needed beyond the semaphore.
	results := make([]*domain.Opportunity, len(pairs))
	sem := make(chan struct{}, p.maxWorkers)
	var wg sync.WaitGroup

	for i, pr := range pairs {
		wg.Add(1)
		go func(idx int, pr pair) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			score, details := match.Score(pr.entity, pr.scenario)
			if !p.engine.Passes(pr.scenario, score) {
				return
			}

			amount, breakdown := revenue.Calculate(pr.entity, &pr.scenario.Formula)
			results[idx] = Assemble(pr.entity, pr.scenario, score, details, amount, breakdown)
		}(i, pr)
	}

	wg.Wait()
	matchMs := time.Since(start).Milliseconds()

	opps := make([]*domain.Opportunity, 0, len(results))
	for _, o := range results {
		if o != nil {
			opps = append(opps, o)
		}
	}

	rankStart := time.Now()
	ranked := rank.Rank(opps, input.Options)
	rankMs := time.Since(rankStart).Milliseconds()

	scanID := uuid.New().String()
	for _, o := range ranked {
		o.ScanID = scanID
	}

	return &domain.ScanResult{
		ID:            scanID,
		TenantID:      input.TenantID,
		Timestamp:     time.Now().UTC(),
		Opportunities: ranked,
		Summary:       rank.Summarize(ranked),
		Metadata: domain.ScanMetadata{
			TraceID:            input.TraceID,
			EntitiesScanned:    len(input.Entities),
			ScenariosEvaluated: len(scenarios),
			PairsEvaluated:     len(pairs),
			MatchMs:            matchMs,
			RankMs:             rankMs,
			TotalMs:            time.Since(input.StartTime).Milliseconds(),
			EngineVersion:      EngineVersion,
		},
	}
}
