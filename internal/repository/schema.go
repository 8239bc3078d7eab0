package repository

// Schema definitions for Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaBlacklist = `
CREATE TABLE IF NOT EXISTS blacklist (
    type TEXT NOT NULL,
    value TEXT NOT NULL,
    trust_score REAL DEFAULT 0.8,
    source TEXT,
    added_at TIMESTAMP NOT NULL,
    PRIMARY KEY (type, value)
);

CREATE INDEX IF NOT EXISTS idx_blacklist_type ON blacklist(type);
`

const schemaTrainingData = `
CREATE TABLE IF NOT EXISTS training_data (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    input_raw TEXT NOT NULL,
    label TEXT NOT NULL,
    features TEXT,
    is_synthetic INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_training_data_type ON training_data(type, created_at);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    input_raw TEXT NOT NULL,
    mode TEXT NOT NULL,
    label TEXT NOT NULL,
    confidence REAL NOT NULL,
    explain TEXT NOT NULL,
    used_methods TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    value TEXT NOT NULL,
    label TEXT NOT NULL,
    description TEXT,
    reporter TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_value ON reports(type, value);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    type TEXT,
    expression TEXT NOT NULL,
    increment REAL NOT NULL DEFAULT 0,
    reason TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema definitions in order.
func AllSchemas() []string {
	return []string{
		schemaBlacklist,
		schemaTrainingData,
		schemaAnalyses,
		schemaReports,
		schemaRuleConfigs,
	}
}
