package domain

import (
	"time"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Tier selects the infrastructure profile
	Tier Tier `mapstructure:"tier"`

	// Mode is the fusion mode used when a request does not name one
	Mode FusionMode `mapstructure:"mode"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventbus"`

	// Scoring
	Model     ModelConfig     `mapstructure:"model"`
	Blacklist BlacklistConfig `mapstructure:"blacklist"`
	Reports   ReportsConfig   `mapstructure:"reports"`

	// Observability
	Logging LoggingConfig `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds

	// History persists every analysis and publishes completion events
	History bool `mapstructure:"history"`
}

// ModelConfig holds classifier settings.
type ModelConfig struct {
	// Path of the JSON model file
	Path string `mapstructure:"path"`

	// AutoTrain fits a model at startup when Path does not exist
	AutoTrain bool `mapstructure:"auto_train"`
}

// BlacklistConfig holds blacklist lookup settings.
type BlacklistConfig struct {
	// CacheTTL is how long lookups (hits and misses) stay cached
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// Seed inserts the built-in seed entries at startup
	Seed bool `mapstructure:"seed"`
}

// ReportsConfig holds settings for the report worker.
type ReportsConfig struct {
	// Enabled starts the report worker with the server
	Enabled bool `mapstructure:"enabled"`

	// Window is the period over which reports for a value are counted
	Window time.Duration `mapstructure:"window"`

	// PromoteThreshold is the report count that blacklists a value
	PromoteThreshold int64 `mapstructure:"promote_threshold"`

	// PromoteTrust is the trust assigned to promoted entries
	PromoteTrust float64 `mapstructure:"promote_trust"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Tier represents the infrastructure profile.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			History:      true,
		},
		Tier: TierCommunity,
		Mode: DefaultMode,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Model: ModelConfig{
			Path:      "./kestrel-model.json",
			AutoTrain: true,
		},
		Blacklist: BlacklistConfig{
			CacheTTL: time.Minute,
			Seed:     true,
		},
		Reports: ReportsConfig{
			Enabled:          true,
			Window:           24 * time.Hour,
			PromoteThreshold: 3,
			PromoteTrust:     0.7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
