package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/match"
	"github.com/opensource-finance/kestrel/internal/scan"
)

func testScenario() *domain.Scenario {
	return &domain.Scenario{
		ID:       "scn-retirement",
		Name:     "Retirement Planning",
		Category: "advisory",
		Priority: domain.PriorityHigh,
		Criteria: []domain.Criterion{
			{Field: "age", Operator: domain.OpGreaterEqual, Value: 65.0, Weight: 1.0},
		},
		Formula: domain.RevenueFormula{
			Type:            domain.FormulaPercentage,
			BaseRate:        0.01,
			MultiplierField: "portfolio_value",
		},
		Enabled: true,
	}
}

func TestWorker(t *testing.T) {
	// Create channel bus
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	// Create match engine with a test scenario
	engine := match.NewEngine(60)
	if err := engine.LoadScenario(testScenario()); err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}

	processor := scan.NewProcessor(engine, 5)

	entityCache := cache.NewLRUCache(100)
	defer entityCache.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		worker := NewWorker(eventBus, nil, entityCache, processor, nil)

		cfg := Config{
			TenantIDs:   []string{"tenant-001"},
			WorkerCount: 1,
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessScanRequest", func(t *testing.T) {
		ctx := context.Background()
		tenantID := "tenant-test"

		// Seed the cache so the worker can resolve the entity without a repository
		entity := &domain.Entity{
			ID: "client-001",
			Attributes: map[string]interface{}{
				"age":             67.0,
				"portfolio_value": 500000.0,
			},
		}
		if err := entityCache.SetEntity(ctx, tenantID, entity, time.Minute); err != nil {
			t.Fatalf("SetEntity failed: %v", err)
		}

		w := NewWorker(eventBus, nil, entityCache, processor, nil)
		if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		// Track scan results
		var completed atomic.Bool
		var resultPayload []byte

		eventBus.Subscribe(ctx, tenantID, domain.TopicScanCompleted, func(ctx context.Context, msg *domain.Message) error {
			resultPayload = msg.Payload
			completed.Store(true)
			return nil
		})

		var oppCount atomic.Int32
		eventBus.Subscribe(ctx, tenantID, domain.TopicOpportunityDetected, func(ctx context.Context, msg *domain.Message) error {
			oppCount.Add(1)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		// Publish a scan request
		req := ScanRequestMessage{
			TenantID:  tenantID,
			TraceID:   "trace-001",
			EntityIDs: []string{"client-001"},
		}

		payload, _ := json.Marshal(req)
		if err := eventBus.Publish(ctx, tenantID, domain.TopicScanRequested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		deadline := time.After(2 * time.Second)
		for !completed.Load() {
			select {
			case <-deadline:
				t.Fatal("timeout waiting for scan result")
			case <-time.After(10 * time.Millisecond):
			}
		}

		var result domain.ScanResult
		if err := json.Unmarshal(resultPayload, &result); err != nil {
			t.Fatalf("failed to parse scan result: %v", err)
		}

		if len(result.Opportunities) != 1 {
			t.Fatalf("expected 1 opportunity, got %d", len(result.Opportunities))
		}

		opp := result.Opportunities[0]
		if opp.MatchScore != 100 {
			t.Errorf("expected match score 100, got %.2f", opp.MatchScore)
		}
		if opp.EstimatedRevenue != 5000 {
			t.Errorf("expected revenue 5000, got %.2f", opp.EstimatedRevenue)
		}

		// High priority opportunity should be published individually
		time.Sleep(50 * time.Millisecond)
		if oppCount.Load() != 1 {
			t.Errorf("expected 1 opportunity event, got %d", oppCount.Load())
		}
	})

	t.Run("CachesIngestedEntities", func(t *testing.T) {
		ctx := context.Background()
		tenantID := "tenant-ingest"

		w := NewWorker(eventBus, nil, entityCache, processor, nil)
		if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		entity := &domain.Entity{
			ID:         "client-ingested",
			Attributes: map[string]interface{}{"age": 40.0},
		}
		payload, _ := json.Marshal(entity)
		if err := eventBus.Publish(ctx, tenantID, domain.TopicEntityIngested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for the entity to land in the cache
		deadline := time.After(2 * time.Second)
		for {
			cached, _ := entityCache.GetEntity(ctx, tenantID, "client-ingested")
			if cached != nil {
				break
			}
			select {
			case <-deadline:
				t.Fatal("timeout waiting for cached entity")
			case <-time.After(10 * time.Millisecond):
			}
		}
	})
}
