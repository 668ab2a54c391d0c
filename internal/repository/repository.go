// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveEntity stores an entity record with tenant isolation.
func (r *SQLRepository) SaveEntity(ctx context.Context, tenantID string, entity *domain.Entity) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	attributes, err := json.Marshal(entity.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode entity attributes: %w", err)
	}

	query := `
		INSERT INTO entities (id, tenant_id, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			attributes = excluded.attributes,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		entity.ID, tenantID, string(attributes),
		entity.CreatedAt, entity.UpdatedAt,
	)
	return err
}

// GetEntity retrieves an entity by ID with tenant isolation.
func (r *SQLRepository) GetEntity(ctx context.Context, tenantID string, entityID string) (*domain.Entity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, attributes, created_at, updated_at
		FROM entities
		WHERE tenant_id = ? AND id = ?
	`

	var entity domain.Entity
	var attributes string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, entityID).Scan(
		&entity.ID, &entity.TenantID, &attributes,
		&entity.CreatedAt, &entity.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(attributes), &entity.Attributes); err != nil {
		return nil, fmt.Errorf("failed to parse entity attributes: %w", err)
	}

	return &entity, nil
}

// ListEntities retrieves all entities for a tenant.
func (r *SQLRepository) ListEntities(ctx context.Context, tenantID string) ([]*domain.Entity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, attributes, created_at, updated_at
		FROM entities
		WHERE tenant_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*domain.Entity
	for rows.Next() {
		var entity domain.Entity
		var attributes string

		if err := rows.Scan(
			&entity.ID, &entity.TenantID, &attributes,
			&entity.CreatedAt, &entity.UpdatedAt,
		); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(attributes), &entity.Attributes); err != nil {
			return nil, fmt.Errorf("failed to parse attributes for entity %s: %w", entity.ID, err)
		}
		entities = append(entities, &entity)
	}

	return entities, rows.Err()
}

// SaveScenario stores a scenario configuration with tenant isolation.
func (r *SQLRepository) SaveScenario(ctx context.Context, tenantID string, scenario *domain.Scenario) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	criteria, _ := json.Marshal(scenario.Criteria)
	formula, _ := json.Marshal(scenario.Formula)

	enabled := 0
	if scenario.Enabled {
		enabled = 1
	}

	var threshold interface{}
	if scenario.MinMatchThreshold != nil {
		threshold = *scenario.MinMatchThreshold
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO scenarios (
			id, tenant_id, name, description, category, version, priority,
			criteria, formula, min_match_threshold, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			version = excluded.version,
			priority = excluded.priority,
			criteria = excluded.criteria,
			formula = excluded.formula,
			min_match_threshold = excluded.min_match_threshold,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		scenario.ID, tenantID, scenario.Name, scenario.Description,
		scenario.Category, scenario.Version, string(scenario.Priority),
		string(criteria), string(formula), threshold, enabled,
		now, now,
	)
	return err
}

// GetScenario retrieves a scenario configuration with tenant isolation.
func (r *SQLRepository) GetScenario(ctx context.Context, tenantID string, scenarioID string) (*domain.Scenario, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, category, version, priority,
			   criteria, formula, min_match_threshold, enabled, created_at, updated_at
		FROM scenarios
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, scenarioID)
	scenario, err := scanScenario(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return scenario, err
}

// ListScenarios retrieves all enabled scenario configurations for a tenant.
func (r *SQLRepository) ListScenarios(ctx context.Context, tenantID string) ([]*domain.Scenario, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, category, version, priority,
			   criteria, formula, min_match_threshold, enabled, created_at, updated_at
		FROM scenarios
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenarios []*domain.Scenario
	for rows.Next() {
		scenario, err := scanScenario(rows.Scan)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, scenario)
	}

	return scenarios, rows.Err()
}

// scanScenario decodes one scenario row.
func scanScenario(scanRow func(dest ...interface{}) error) (*domain.Scenario, error) {
	var s domain.Scenario
	var priority, criteria, formula string
	var threshold sql.NullFloat64
	var enabled int

	if err := scanRow(
		&s.ID, &s.TenantID, &s.Name, &s.Description,
		&s.Category, &s.Version, &priority,
		&criteria, &formula, &threshold, &enabled,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	s.Priority = domain.Priority(priority)
	s.Enabled = enabled == 1
	if threshold.Valid {
		v := threshold.Float64
		s.MinMatchThreshold = &v
	}
	if err := json.Unmarshal([]byte(criteria), &s.Criteria); err != nil {
		return nil, fmt.Errorf("failed to parse scenario criteria: %w", err)
	}
	if err := json.Unmarshal([]byte(formula), &s.Formula); err != nil {
		return nil, fmt.Errorf("failed to parse scenario formula: %w", err)
	}

	return &s, nil
}

// DeleteScenario soft-deletes a scenario by setting enabled = 0.
func (r *SQLRepository) DeleteScenario(ctx context.Context, tenantID string, scenarioID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE scenarios
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, scenarioID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveScan stores a scan result (header row plus its opportunities).
func (r *SQLRepository) SaveScan(ctx context.Context, tenantID string, scan *domain.ScanResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	summary, _ := json.Marshal(scan.Summary)
	metadata, _ := json.Marshal(scan.Metadata)

	query := `
		INSERT INTO scans (id, tenant_id, timestamp, summary, metadata)
		VALUES (?, ?, ?, ?, ?)
	`

	if _, err := r.db.ExecContext(ctx, r.rebind(query),
		scan.ID, tenantID, scan.Timestamp,
		string(summary), string(metadata),
	); err != nil {
		return err
	}

	return r.SaveOpportunities(ctx, tenantID, scan.Opportunities)
}

// GetScan retrieves a scan result by ID, opportunities included.
func (r *SQLRepository) GetScan(ctx context.Context, tenantID string, scanID string) (*domain.ScanResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, timestamp, summary, metadata
		FROM scans
		WHERE tenant_id = ? AND id = ?
	`

	var scan domain.ScanResult
	var summary, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, scanID).Scan(
		&scan.ID, &scan.TenantID, &scan.Timestamp, &summary, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(summary), &scan.Summary)
	json.Unmarshal([]byte(metadata), &scan.Metadata)

	scan.Opportunities, err = r.ListOpportunitiesByScan(ctx, tenantID, scanID)
	if err != nil {
		return nil, err
	}

	return &scan, nil
}

// SaveOpportunities stores a batch of opportunities.
func (r *SQLRepository) SaveOpportunities(ctx context.Context, tenantID string, opps []*domain.Opportunity) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO opportunities (
			id, tenant_id, scan_id, entity_id, scenario_id, scenario_name,
			category, priority, match_score, match_details,
			estimated_revenue, revenue_breakdown, rank, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, o := range opps {
		details, _ := json.Marshal(o.MatchDetails)
		breakdown, _ := json.Marshal(o.RevenueBreakdown)

		if _, err := r.db.ExecContext(ctx, r.rebind(query),
			o.ID, tenantID, o.ScanID, o.EntityID, o.ScenarioID, o.ScenarioName,
			o.Category, string(o.Priority), o.MatchScore, string(details),
			o.EstimatedRevenue, string(breakdown), o.Rank, o.CreatedAt,
		); err != nil {
			return err
		}
	}

	return nil
}

// GetOpportunity retrieves an opportunity by ID with tenant isolation.
func (r *SQLRepository) GetOpportunity(ctx context.Context, tenantID string, oppID string) (*domain.Opportunity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, scan_id, entity_id, scenario_id, scenario_name,
			   category, priority, match_score, match_details,
			   estimated_revenue, revenue_breakdown, rank, created_at
		FROM opportunities
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, oppID)
	opp, err := scanOpportunity(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return opp, err
}

// ListOpportunitiesByScan retrieves a scan's opportunities in rank order.
func (r *SQLRepository) ListOpportunitiesByScan(ctx context.Context, tenantID string, scanID string) ([]*domain.Opportunity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, scan_id, entity_id, scenario_id, scenario_name,
			   category, priority, match_score, match_details,
			   estimated_revenue, revenue_breakdown, rank, created_at
		FROM opportunities
		WHERE tenant_id = ? AND scan_id = ?
		ORDER BY rank
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var opps []*domain.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, err
		}
		opps = append(opps, opp)
	}

	return opps, rows.Err()
}

// CountOpportunities counts detections for an entity/scenario pair since a
// point in time. Used by the detection history service to keep repeated
// scans from re-announcing the same opportunity.
func (r *SQLRepository) CountOpportunities(ctx context.Context, tenantID string, entityID string, scenarioID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*)
		FROM opportunities
		WHERE tenant_id = ? AND entity_id = ? AND scenario_id = ? AND created_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, entityID, scenarioID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count opportunities: %w", err)
	}

	return count, nil
}

// scanOpportunity decodes one opportunity row.
func scanOpportunity(scanRow func(dest ...interface{}) error) (*domain.Opportunity, error) {
	var o domain.Opportunity
	var priority, details, breakdown string
	var scanID sql.NullString
	var rank sql.NullInt64

	if err := scanRow(
		&o.ID, &o.TenantID, &scanID, &o.EntityID, &o.ScenarioID, &o.ScenarioName,
		&o.Category, &priority, &o.MatchScore, &details,
		&o.EstimatedRevenue, &breakdown, &rank, &o.CreatedAt,
	); err != nil {
		return nil, err
	}

	o.ScanID = scanID.String
	o.Priority = domain.Priority(priority)
	o.Rank = int(rank.Int64)
	if err := json.Unmarshal([]byte(details), &o.MatchDetails); err != nil {
		return nil, fmt.Errorf("failed to parse match details: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdown), &o.RevenueBreakdown); err != nil {
		return nil, fmt.Errorf("failed to parse revenue breakdown: %w", err)
	}

	return &o, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
