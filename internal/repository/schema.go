package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaEntities = `
CREATE TABLE IF NOT EXISTS entities (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    attributes TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_entities_tenant ON entities(tenant_id);
`

const schemaScenarios = `
CREATE TABLE IF NOT EXISTS scenarios (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    category TEXT,
    version TEXT,
    priority TEXT NOT NULL,
    criteria TEXT NOT NULL,
    formula TEXT NOT NULL,
    min_match_threshold REAL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_scenarios_tenant ON scenarios(tenant_id);
CREATE INDEX IF NOT EXISTS idx_scenarios_enabled ON scenarios(tenant_id, enabled);
CREATE INDEX IF NOT EXISTS idx_scenarios_category ON scenarios(tenant_id, category);
`

const schemaScans = `
CREATE TABLE IF NOT EXISTS scans (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    summary TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scans_tenant ON scans(tenant_id);
CREATE INDEX IF NOT EXISTS idx_scans_timestamp ON scans(tenant_id, timestamp);
`

const schemaOpportunities = `
CREATE TABLE IF NOT EXISTS opportunities (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    scan_id TEXT,
    entity_id TEXT NOT NULL,
    scenario_id TEXT NOT NULL,
    scenario_name TEXT,
    category TEXT,
    priority TEXT NOT NULL,
    match_score REAL NOT NULL,
    match_details TEXT NOT NULL,
    estimated_revenue REAL NOT NULL,
    revenue_breakdown TEXT NOT NULL,
    rank INTEGER,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_opportunities_tenant ON opportunities(tenant_id);
CREATE INDEX IF NOT EXISTS idx_opportunities_scan ON opportunities(tenant_id, scan_id);
CREATE INDEX IF NOT EXISTS idx_opportunities_entity ON opportunities(tenant_id, entity_id);
CREATE INDEX IF NOT EXISTS idx_opportunities_scenario ON opportunities(tenant_id, scenario_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaEntities,
		schemaScenarios,
		schemaScans,
		schemaOpportunities,
	}
}
