// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Entity operations
	SaveEntity(ctx context.Context, tenantID string, entity *Entity) error
	GetEntity(ctx context.Context, tenantID string, entityID string) (*Entity, error)
	ListEntities(ctx context.Context, tenantID string) ([]*Entity, error)

	// Scenario configuration operations
	SaveScenario(ctx context.Context, tenantID string, scenario *Scenario) error
	GetScenario(ctx context.Context, tenantID string, scenarioID string) (*Scenario, error)
	ListScenarios(ctx context.Context, tenantID string) ([]*Scenario, error)
	DeleteScenario(ctx context.Context, tenantID string, scenarioID string) error

	// Scan results
	SaveScan(ctx context.Context, tenantID string, scan *ScanResult) error
	GetScan(ctx context.Context, tenantID string, scanID string) (*ScanResult, error)

	// Opportunities
	SaveOpportunities(ctx context.Context, tenantID string, opps []*Opportunity) error
	GetOpportunity(ctx context.Context, tenantID string, oppID string) (*Opportunity, error)
	ListOpportunitiesByScan(ctx context.Context, tenantID string, scanID string) ([]*Opportunity, error)
	CountOpportunities(ctx context.Context, tenantID string, entityID string, scenarioID string, since time.Time) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
