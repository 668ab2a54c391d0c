// Package worker provides async scan processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/rank"
	"github.com/opensource-finance/kestrel/internal/scan"
)

// Worker processes scan requests asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	processor *scan.Processor
	history   *history.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker. The history service is optional;
// without it every high-urgency opportunity is announced.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, processor *scan.Processor, hist *history.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		cache:     cache,
		processor: processor,
		history:   hist,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicScanRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	// Subscribe to scan request topic
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicScanRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processScan(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	// Entity ingestion keeps the scan cache warm
	entitySub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicEntityIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.cacheEntity(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, entitySub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicScanRequested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processScan(ctx, msg.TenantID, msg)
}

// ScanRequestMessage is the message payload for async scan processing.
type ScanRequestMessage struct {
	TenantID  string   `json:"tenantId"`
	TraceID   string   `json:"traceId"`
	EntityIDs []string `json:"entityIds,omitempty"`
	Strategy  string   `json:"strategy,omitempty"`
}

// cacheEntity stores an ingested entity in the cache for later scans.
func (w *Worker) cacheEntity(ctx context.Context, tenantID string, msg *domain.Message) error {
	if w.cache == nil {
		return nil
	}

	var entity domain.Entity
	if err := json.Unmarshal(msg.Payload, &entity); err != nil {
		slog.Error("failed to parse entity message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	return w.cache.SetEntity(ctx, tenantID, &entity, 15*time.Minute)
}

// processScan runs a full scan for a scan request message.
func (w *Worker) processScan(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	// Parse message
	var req ScanRequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse scan request message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID != "" {
		tenantID = req.TenantID
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing scan request",
		"tenant_id", tenantID,
		"trace_id", traceID,
		"entity_count", len(req.EntityIDs),
	)

	// 1. Resolve entities (cache first, then repository)
	entities, err := w.resolveEntities(ctx, tenantID, req.EntityIDs)
	if err != nil {
		slog.Error("failed to resolve entities",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	// 2. Build ranking options
	opts := rank.DefaultOptions()
	if req.Strategy != "" {
		opts.Strategy = rank.Strategy(req.Strategy)
	}

	// 3. Run the scan
	result := w.processor.Scan(ctx, &scan.Input{
		TenantID:  tenantID,
		TraceID:   traceID,
		Entities:  entities,
		Options:   opts,
		StartTime: start,
	})

	// 4. Decide which opportunities to announce. The history check must run
	// before the scan is saved, or this scan's own rows would count.
	announce := w.selectAnnouncements(ctx, tenantID, result.Opportunities)

	// 5. Save scan result
	if w.repo != nil {
		if err := w.repo.SaveScan(ctx, tenantID, result); err != nil {
			slog.Error("failed to save scan result",
				"scan_id", result.ID,
				"error", err,
			)
		}
	}

	// 6. Publish scan completed
	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicScanCompleted, resultPayload); err != nil {
		slog.Error("failed to publish scan result",
			"scan_id", result.ID,
			"error", err,
		)
	}

	// 7. Publish fresh high-urgency opportunities individually
	for _, opp := range announce {
		oppPayload, _ := json.Marshal(opp)
		if err := w.bus.Publish(ctx, tenantID, domain.TopicOpportunityDetected, oppPayload); err != nil {
			slog.Error("failed to publish opportunity",
				"opportunity_id", opp.ID,
				"error", err,
			)
		}
	}

	slog.Info("scan processed",
		"scan_id", result.ID,
		"tenant_id", tenantID,
		"entities_scanned", result.Metadata.EntitiesScanned,
		"opportunities", len(result.Opportunities),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// selectAnnouncements picks the high-urgency opportunities worth a
// dedicated event, skipping pairs already surfaced within the history
// window.
func (w *Worker) selectAnnouncements(ctx context.Context, tenantID string, opps []*domain.Opportunity) []*domain.Opportunity {
	var announce []*domain.Opportunity
	for _, opp := range opps {
		if opp.Priority != domain.PriorityImmediate && opp.Priority != domain.PriorityHigh {
			continue
		}
		if w.history != nil && w.history.RecentlyDetected(ctx, tenantID, opp.EntityID, opp.ScenarioID) {
			slog.Debug("suppressing repeat detection",
				"tenant_id", tenantID,
				"entity_id", opp.EntityID,
				"scenario_id", opp.ScenarioID,
			)
			continue
		}
		announce = append(announce, opp)
	}
	return announce
}

// resolveEntities loads the requested entities, or all tenant entities
// when no IDs are given.
func (w *Worker) resolveEntities(ctx context.Context, tenantID string, entityIDs []string) ([]*domain.Entity, error) {
	if len(entityIDs) == 0 {
		if w.repo == nil {
			return nil, nil
		}
		return w.repo.ListEntities(ctx, tenantID)
	}

	entities := make([]*domain.Entity, 0, len(entityIDs))
	for _, id := range entityIDs {
		if w.cache != nil {
			if entity, err := w.cache.GetEntity(ctx, tenantID, id); err == nil && entity != nil {
				entities = append(entities, entity)
				continue
			}
		}

		if w.repo == nil {
			continue
		}

		entity, err := w.repo.GetEntity(ctx, tenantID, id)
		if err != nil {
			slog.Warn("entity not found, skipping",
				"tenant_id", tenantID,
				"entity_id", id,
				"error", err,
			)
			continue
		}
		entities = append(entities, entity)
	}

	return entities, nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
