// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Blacklist operations
	LookupBlacklist(ctx context.Context, kind InputKind, value string) (*BlacklistEntry, error)
	SaveBlacklistEntry(ctx context.Context, entry *BlacklistEntry) error
	ListBlacklist(ctx context.Context, kind InputKind) ([]*BlacklistEntry, error)
	DeleteBlacklistEntry(ctx context.Context, kind InputKind, value string) error

	// Training data operations
	SaveTrainingExample(ctx context.Context, ex *TrainingExample) error
	ListTrainingExamples(ctx context.Context, kind InputKind, limit int) ([]*TrainingExample, error)
	CountTrainingExamples(ctx context.Context) (int, error)

	// Analysis history
	SaveAnalysis(ctx context.Context, a *Analysis) error
	GetAnalysis(ctx context.Context, id string) (*Analysis, error)

	// User reports
	SaveReport(ctx context.Context, r *Report) error
	ListReports(ctx context.Context, kind InputKind, value string) ([]*Report, error)

	// Scoring rule configuration
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlite_path"`

	// PostgreSQL specific. PostgresURL (a DATABASE_URL style DSN) wins
	// over the individual fields when set.
	PostgresURL      string `mapstructure:"postgres_url"`
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}
