package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/match"
	"github.com/opensource-finance/kestrel/internal/rank"
	"github.com/opensource-finance/kestrel/internal/scan"
	"github.com/opensource-finance/kestrel/internal/scenario"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *match.Engine
	processor *scan.Processor
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *match.Engine, processor *scan.Processor, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		processor: processor,
		version:   version,
	}
}

// ScanRequest is the request body for POST /scan.
// Entities may be passed inline or referenced by ID; when both are empty
// the scan runs over every stored entity for the tenant.
type ScanRequest struct {
	Entities  []domain.EntityRequest `json:"entities,omitempty"`
	EntityIDs []string               `json:"entityIds,omitempty"`

	Strategy      string       `json:"strategy,omitempty"`
	MatchWeight   float64      `json:"matchWeight,omitempty"`
	RevenueWeight float64      `json:"revenueWeight,omitempty"`
	Filters       *ScanFilters `json:"filters,omitempty"`
}

// ScanFilters mirrors rank.Filters for the wire.
type ScanFilters struct {
	MinMatchScore *float64 `json:"minMatchScore,omitempty"`
	MinRevenue    *float64 `json:"minRevenue,omitempty"`
	MaxRevenue    *float64 `json:"maxRevenue,omitempty"`
	Priorities    []string `json:"priorities,omitempty"`
	QuickWin      bool     `json:"quickWin,omitempty"`
	HighValueMin  *float64 `json:"highValueMin,omitempty"`
	Expression    string   `json:"expression,omitempty"`
}

func (f *ScanFilters) toRankFilters() *rank.Filters {
	if f == nil {
		return nil
	}

	filters := &rank.Filters{
		MinMatchScore: f.MinMatchScore,
		MinRevenue:    f.MinRevenue,
		MaxRevenue:    f.MaxRevenue,
		QuickWin:      f.QuickWin,
		HighValueMin:  f.HighValueMin,
		Expression:    f.Expression,
	}
	for _, p := range f.Priorities {
		filters.Priorities = append(filters.Priorities, domain.Priority(p))
	}
	return filters
}

// ScanResponse is the response for POST /scan.
type ScanResponse struct {
	ScanID        string                `json:"scanId"`
	Opportunities []*domain.Opportunity `json:"opportunities"`
	Summary       domain.ScanSummary    `json:"summary"`
	Metadata      domain.ScanMetadata   `json:"metadata"`
}

// Scan handles POST /scan requests: match every entity against every
// loaded scenario, estimate revenue, rank, and respond with the ordered
// opportunity list.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	// Parse request
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Strategy != "" && !rank.Strategy(req.Strategy).Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown ranking strategy: " + req.Strategy,
		})
		return
	}

	filters := req.Filters.toRankFilters()
	if filters != nil {
		if err := filters.Compile(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
	}

	// Resolve entities
	entities, errMsg := h.resolveEntities(r, &req, tenantID)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": errMsg,
		})
		return
	}

	// Scan-rate accounting
	if h.cache != nil {
		if _, err := h.cache.IncrementCounter(ctx, tenantID, "scans", time.Hour); err != nil {
			slog.Warn("failed to increment scan counter", "error", err)
		}
	}

	opts := rank.DefaultOptions()
	if req.Strategy != "" {
		opts.Strategy = rank.Strategy(req.Strategy)
	}
	opts.MatchWeight = req.MatchWeight
	opts.RevenueWeight = req.RevenueWeight
	opts.Filters = filters

	result := h.processor.Scan(ctx, &scan.Input{
		TenantID:  tenantID,
		TraceID:   traceID,
		Entities:  entities,
		Options:   opts,
		StartTime: start,
	})

	// Persist scan result
	if h.repo != nil {
		if err := h.repo.SaveScan(ctx, tenantID, result); err != nil {
			slog.Error("failed to save scan result", "scan_id", result.ID, "error", err)
		}
	}

	// Publish completion event
	if h.bus != nil {
		payload, _ := json.Marshal(result)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicScanCompleted, payload); err != nil {
			slog.Error("failed to publish scan result", "scan_id", result.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, ScanResponse{
		ScanID:        result.ID,
		Opportunities: result.Opportunities,
		Summary:       result.Summary,
		Metadata:      result.Metadata,
	})
}

// resolveEntities materializes the scan population from the request.
func (h *Handler) resolveEntities(r *http.Request, req *ScanRequest, tenantID string) ([]*domain.Entity, string) {
	ctx := r.Context()

	if len(req.Entities) > 0 {
		entities := make([]*domain.Entity, 0, len(req.Entities))
		for i := range req.Entities {
			er := req.Entities[i]
			if len(er.Attributes) == 0 {
				return nil, "entity attributes are required"
			}
			if er.ID == "" {
				er.ID = uuid.New().String()
			}
			entities = append(entities, er.ToEntity(tenantID))
		}
		return entities, ""
	}

	if len(req.EntityIDs) > 0 {
		entities := make([]*domain.Entity, 0, len(req.EntityIDs))
		for _, id := range req.EntityIDs {
			if h.cache != nil {
				if entity, err := h.cache.GetEntity(ctx, tenantID, id); err == nil && entity != nil {
					entities = append(entities, entity)
					continue
				}
			}
			if h.repo == nil {
				return nil, "entity " + id + " not found"
			}
			entity, err := h.repo.GetEntity(ctx, tenantID, id)
			if err != nil {
				return nil, "entity " + id + " not found"
			}
			entities = append(entities, entity)
		}
		return entities, ""
	}

	if h.repo == nil {
		return nil, "entities or entityIds are required"
	}

	entities, err := h.repo.ListEntities(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list entities", "tenant_id", tenantID, "error", err)
		return nil, "failed to load entities"
	}
	return entities, ""
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetScan retrieves a scan result by ID.
func (h *Handler) GetScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	scanID := chi.URLParam(r, "id")

	if scanID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "scan id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetScan(ctx, tenantID, scanID)
	if err != nil {
		slog.Error("failed to get scan", "id", scanID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "scan not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetOpportunity retrieves an opportunity by ID.
func (h *Handler) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	oppID := chi.URLParam(r, "id")

	if oppID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "opportunity id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	opp, err := h.repo.GetOpportunity(ctx, tenantID, oppID)
	if err != nil {
		slog.Error("failed to get opportunity", "id", oppID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "opportunity not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, opp)
}

// IngestEntity stores an entity and publishes an ingestion event.
func (h *Handler) IngestEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.EntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Attributes) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "attributes are required",
		})
		return
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	entity := req.ToEntity(tenantID)

	if h.repo != nil {
		if err := h.repo.SaveEntity(ctx, tenantID, entity); err != nil {
			slog.Error("failed to save entity", "id", entity.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save entity",
			})
			return
		}
	}

	if h.cache != nil {
		if err := h.cache.SetEntity(ctx, tenantID, entity, 15*time.Minute); err != nil {
			slog.Warn("failed to cache entity", "id", entity.ID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(entity)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicEntityIngested, payload); err != nil {
			slog.Error("failed to publish entity event", "id", entity.ID, "error", err)
		}
	}

	slog.Info("entity ingested", "id", entity.ID, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, entity)
}

// GetEntity retrieves an entity by ID.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	entityID := chi.URLParam(r, "id")

	if entityID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entity id is required",
		})
		return
	}

	// Cache first
	if h.cache != nil {
		if entity, err := h.cache.GetEntity(ctx, tenantID, entityID); err == nil && entity != nil {
			writeJSON(w, http.StatusOK, entity)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	entity, err := h.repo.GetEntity(ctx, tenantID, entityID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "entity not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, entity)
}

// ListEntities returns all stored entities for the tenant.
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	entities, err := h.repo.ListEntities(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list entities", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list entities",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entities": entities,
		"count":    len(entities),
	})
}

// ListScenarios returns all loaded scenarios from the engine.
// Scenarios are loaded at startup and can be reloaded via POST /scenarios/reload.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.GetLoadedScenarios()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scenarios": loaded,
		"count":     len(loaded),
	})
}

// GetScenario retrieves a scenario by ID from the loaded engine scenarios.
func (h *Handler) GetScenario(w http.ResponseWriter, r *http.Request) {
	scenarioID := chi.URLParam(r, "id")

	if scenarioID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "scenario id is required",
		})
		return
	}

	for _, s := range h.engine.GetLoadedScenarios() {
		if s.ID == scenarioID {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "scenario not found",
	})
}

// CreateScenarioRequest is the request body for creating a scenario.
type CreateScenarioRequest struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	Description       string                `json:"description,omitempty"`
	Category          string                `json:"category,omitempty"`
	Priority          string                `json:"priority"`
	Criteria          []domain.Criterion    `json:"criteria"`
	Formula           domain.RevenueFormula `json:"formula"`
	MinMatchThreshold *float64              `json:"minMatchThreshold,omitempty"`
	Enabled           bool                  `json:"enabled"`
}

func (r *CreateScenarioRequest) toDomain(id string) *domain.Scenario {
	now := time.Now().UTC()
	return &domain.Scenario{
		ID:                id,
		TenantID:          GlobalTenantID,
		Name:              r.Name,
		Description:       r.Description,
		Category:          r.Category,
		Version:           "1.0.0",
		Priority:          domain.Priority(r.Priority),
		Criteria:          r.Criteria,
		Formula:           r.Formula,
		MinMatchThreshold: r.MinMatchThreshold,
		Enabled:           r.Enabled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// GlobalTenantID is used for scenarios that apply to all tenants.
const GlobalTenantID = "*"

// CreateScenario creates a new scenario and saves it to the database.
// Scenarios are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /scenarios/reload to hot-reload into the engine.
func (h *Handler) CreateScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and name are required",
		})
		return
	}

	s := req.toDomain(req.ID)

	// Full structural validation (criteria, operators, formula, tiers)
	if err := scenario.Validate(s); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	// Load into the engine immediately so the next scan can use it
	if err := h.engine.LoadScenario(s); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	// Persist to repository (global tenant ID)
	if h.repo != nil {
		if err := h.repo.SaveScenario(ctx, GlobalTenantID, s); err != nil {
			slog.Error("failed to save scenario", "id", s.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save scenario",
			})
			return
		}
	}

	slog.Info("scenario created", "id", s.ID, "name", s.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"scenario": s,
		"message":  "Scenario created and loaded into the engine.",
	})
}

// UpdateScenario updates an existing scenario.
func (h *Handler) UpdateScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scenarioID := chi.URLParam(r, "id")

	if scenarioID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "scenario id is required",
		})
		return
	}

	var req CreateScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	s := req.toDomain(scenarioID)

	if err := scenario.Validate(s); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.engine.LoadScenario(s); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveScenario(ctx, GlobalTenantID, s); err != nil {
			slog.Error("failed to update scenario", "id", scenarioID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to update scenario",
			})
			return
		}
	}

	slog.Info("scenario updated", "id", scenarioID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scenario": s,
		"message":  "Scenario updated and loaded into the engine.",
	})
}

// DeleteScenario soft-deletes a scenario and reloads the engine.
func (h *Handler) DeleteScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scenarioID := chi.URLParam(r, "id")

	if scenarioID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "scenario id is required",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.DeleteScenario(ctx, GlobalTenantID, scenarioID); err != nil {
			slog.Error("failed to delete scenario", "id", scenarioID, "error", err)
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "scenario not found",
			})
			return
		}

		// Auto-reload engine after delete
		remaining, err := h.repo.ListScenarios(ctx, GlobalTenantID)
		if err != nil {
			slog.Error("failed to reload scenarios after delete", "error", err)
		} else if err := h.engine.ReloadScenarios(remaining); err != nil {
			slog.Error("failed to reload engine after delete", "error", err)
		}
	}

	slog.Info("scenario deleted", "id", scenarioID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Scenario deleted and engine reloaded.",
	})
}

// ReloadScenarios reloads all scenarios from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadScenarios(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbScenarios, err := h.repo.ListScenarios(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list scenarios from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load scenarios from database",
		})
		return
	}

	if err := h.engine.ReloadScenarios(dbScenarios); err != nil {
		slog.Error("failed to reload scenarios into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload scenarios: " + err.Error(),
		})
		return
	}

	slog.Info("scenarios reloaded from database", "count", len(dbScenarios))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "scenarios reloaded successfully",
		"count":   len(dbScenarios),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
