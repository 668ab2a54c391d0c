package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/match"
	"github.com/opensource-finance/kestrel/internal/scan"
)

// createTestServer creates a server with a loaded engine for testing.
func createTestServer() *Server {
	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	engine := match.NewEngine(60)

	threshold := 50.0
	testScenario := &domain.Scenario{
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
		MinMatchThreshold: &threshold,
		Enabled:           true,
	}
	_ = engine.LoadScenario(testScenario)

	processor := scan.NewProcessor(engine, 5)

	return NewServer(cfg, nil, nil, nil, engine, processor, "test-v1")
}

func TestScanEndpoint(t *testing.T) {
	server := createTestServer()

	t.Run("SuccessfulScan", func(t *testing.T) {
		reqBody := ScanRequest{
			Entities: []domain.EntityRequest{
				{
					ID: "client-001",
					Attributes: map[string]interface{}{
						"age":             67.0,
						"portfolio_value": 500000.0,
					},
				},
				{
					ID: "client-002",
					Attributes: map[string]interface{}{
						"age":             30.0,
						"portfolio_value": 10000.0,
					},
				},
			},
		}

		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp ScanResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.ScanID == "" {
			t.Error("expected scanId in response")
		}
		if len(resp.Opportunities) != 1 {
			t.Fatalf("expected 1 opportunity, got %d", len(resp.Opportunities))
		}

		opp := resp.Opportunities[0]
		if opp.EntityID != "client-001" {
			t.Errorf("expected entity client-001, got %s", opp.EntityID)
		}
		if opp.MatchScore != 100 {
			t.Errorf("expected match score 100, got %.2f", opp.MatchScore)
		}
		if opp.EstimatedRevenue != 5000 {
			t.Errorf("expected revenue 5000, got %.2f", opp.EstimatedRevenue)
		}
		if opp.Rank != 1 {
			t.Errorf("expected rank 1, got %d", opp.Rank)
		}

		if resp.Summary.OpportunityCount != 1 {
			t.Errorf("expected summary count 1, got %d", resp.Summary.OpportunityCount)
		}
		if resp.Metadata.EntitiesScanned != 2 {
			t.Errorf("expected 2 entities scanned, got %d", resp.Metadata.EntitiesScanned)
		}
	})

	t.Run("RequiresTenantHeader", func(t *testing.T) {
		body, _ := json.Marshal(ScanRequest{})
		req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewBuffer(body))

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsBlankTenantHeader", func(t *testing.T) {
		body, _ := json.Marshal(ScanRequest{})
		req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewBuffer(body))
		req.Header.Set("X-Tenant-ID", "   ")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsInvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewBufferString("{not json"))
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsUnknownStrategy", func(t *testing.T) {
		reqBody := ScanRequest{
			Entities: []domain.EntityRequest{
				{Attributes: map[string]interface{}{"age": 70.0}},
			},
			Strategy: "alphabetical",
		}

		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewBuffer(body))
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsInvalidFilterExpression", func(t *testing.T) {
		reqBody := ScanRequest{
			Entities: []domain.EntityRequest{
				{Attributes: map[string]interface{}{"age": 70.0}},
			},
			Filters: &ScanFilters{Expression: "match_score +"},
		}

		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewBuffer(body))
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("FilterExpression", func(t *testing.T) {
		reqBody := ScanRequest{
			Entities: []domain.EntityRequest{
				{
					ID: "client-001",
					Attributes: map[string]interface{}{
						"age":             67.0,
						"portfolio_value": 500000.0,
					},
				},
			},
			Filters: &ScanFilters{Expression: "estimated_revenue > 100000.0"},
		}

		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewBuffer(body))
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp ScanResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)

		// Revenue 5000 does not clear the 100000 filter
		if len(resp.Opportunities) != 0 {
			t.Errorf("expected 0 opportunities after filter, got %d", len(resp.Opportunities))
		}
	})
}

func TestScenarioEndpoints(t *testing.T) {
	server := createTestServer()

	t.Run("ListScenarios", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/scenarios", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]interface{}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["count"].(float64) != 1 {
			t.Errorf("expected 1 scenario, got %v", resp["count"])
		}
	})

	t.Run("GetScenario", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/scenarios/scn-retirement", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var s domain.Scenario
		json.Unmarshal(rr.Body.Bytes(), &s)
		if s.Name != "Retirement Planning" {
			t.Errorf("expected scenario name, got %s", s.Name)
		}
	})

	t.Run("GetScenarioNotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/scenarios/no-such", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("CreateScenario", func(t *testing.T) {
		reqBody := CreateScenarioRequest{
			ID:       "scn-tax",
			Name:     "Tax Loss Harvesting",
			Category: "tax",
			Priority: "medium",
			Criteria: []domain.Criterion{
				{Field: "taxable_gains", Operator: domain.OpGreaterThan, Value: 10000.0, Weight: 1.0},
			},
			Formula: domain.RevenueFormula{
				Type:     domain.FormulaFlatFee,
				BaseRate: 1500,
			},
			Enabled: true,
		}

		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/scenarios", bytes.NewBuffer(body))
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		// The new scenario should be live in the engine
		if server.Handler().engine.ScenarioCount() != 2 {
			t.Errorf("expected 2 scenarios loaded, got %d", server.Handler().engine.ScenarioCount())
		}
	})

	t.Run("CreateScenarioRejectsInvalid", func(t *testing.T) {
		reqBody := CreateScenarioRequest{
			ID:       "scn-bad",
			Name:     "Bad Scenario",
			Priority: "urgent-ish",
			Criteria: []domain.Criterion{
				{Field: "age", Operator: "between", Value: 50.0, Weight: 1.0},
			},
			Formula: domain.RevenueFormula{Type: domain.FormulaFlatFee, BaseRate: 100},
			Enabled: true,
		}

		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/scenarios", bytes.NewBuffer(body))
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer()

	t.Run("Health", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected healthy, got %s", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestTracingHeaders(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
	if rr.Header().Get(TraceIDHeader) == "" {
		t.Error("expected X-Trace-ID response header")
	}
}
