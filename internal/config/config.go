// Package config loads the Kestrel configuration from defaults, an optional
// YAML file, KESTREL_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EnvPrefix is prepended to every environment variable, so server.port is
// read from KESTREL_SERVER_PORT.
const EnvPrefix = "KESTREL"

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"host":       "server.host",
	"port":       "server.port",
	"tier":       "tier",
	"mode":       "mode",
	"db":         "repository.sqlite_path",
	"model":      "model.path",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// Options controls where configuration is read from.
type Options struct {
	// File is an explicit config file. When empty, kestrel.yaml is searched
	// for in the working directory and /etc/kestrel, and may be absent.
	File string

	// Flags are bound according to FlagKeys. Only flags that were set on
	// the command line override other sources.
	Flags *pflag.FlagSet
}

// Load builds the configuration. The tier is resolved first so that its
// profile supplies the defaults for everything else.
func Load(opts Options) (*domain.Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("kestrel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/kestrel/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	base := domain.DefaultConfig()
	if domain.Tier(v.GetString("tier")) == domain.TierPro {
		base = domain.ProConfig()
	}
	setDefaults(v, base)

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error

	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		errs = append(errs, fmt.Errorf("tier must be community or pro, got %q", cfg.Tier))
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", cfg.Server.Port))
	}

	switch cfg.Mode {
	case domain.ModeHeuristic, domain.ModeML, domain.ModeBalanced, domain.ModeHybrid:
	default:
		errs = append(errs, fmt.Errorf("unknown default mode %q", cfg.Mode))
	}

	if cfg.Reports.PromoteThreshold < 1 {
		errs = append(errs, fmt.Errorf("reports.promote_threshold must be at least 1"))
	}
	if cfg.Reports.PromoteTrust < 0 || cfg.Reports.PromoteTrust > 1 {
		errs = append(errs, fmt.Errorf("reports.promote_trust must be within [0, 1]"))
	}
	if cfg.Reports.Window <= 0 {
		errs = append(errs, fmt.Errorf("reports.window must be positive"))
	}

	return errors.Join(errs...)
}

// setDefaults registers every key so that environment variables are seen
// by Unmarshal.
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("tier", string(c.Tier))
	v.SetDefault("mode", string(c.Mode))

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.history", c.Server.History)

	v.SetDefault("repository.driver", c.Repository.Driver)
	v.SetDefault("repository.sqlite_path", c.Repository.SQLitePath)
	v.SetDefault("repository.postgres_url", c.Repository.PostgresURL)
	v.SetDefault("repository.postgres_host", c.Repository.PostgresHost)
	v.SetDefault("repository.postgres_port", c.Repository.PostgresPort)
	v.SetDefault("repository.postgres_user", c.Repository.PostgresUser)
	v.SetDefault("repository.postgres_password", c.Repository.PostgresPassword)
	v.SetDefault("repository.postgres_db", c.Repository.PostgresDB)
	v.SetDefault("repository.postgres_sslmode", c.Repository.PostgresSSLMode)
	v.SetDefault("repository.max_open_conns", c.Repository.MaxOpenConns)
	v.SetDefault("repository.max_idle_conns", c.Repository.MaxIdleConns)
	v.SetDefault("repository.conn_max_lifetime", c.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", c.Cache.Type)
	v.SetDefault("cache.local_max_size", c.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", c.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", c.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", c.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", c.Cache.RedisDB)
	v.SetDefault("cache.two_phase", c.Cache.EnableTwoPhase)

	v.SetDefault("eventbus.type", c.EventBus.Type)
	v.SetDefault("eventbus.channel_buffer_size", c.EventBus.ChannelBufferSize)
	v.SetDefault("eventbus.nats_url", c.EventBus.NATSUrl)
	v.SetDefault("eventbus.nats_token", c.EventBus.NATSToken)
	v.SetDefault("eventbus.nats_max_reconnects", c.EventBus.NATSMaxReconnects)
	v.SetDefault("eventbus.nats_reconnect_wait", c.EventBus.NATSReconnectWait)
	v.SetDefault("eventbus.nats_queue_group", c.EventBus.NATSQueueGroup)

	v.SetDefault("model.path", c.Model.Path)
	v.SetDefault("model.auto_train", c.Model.AutoTrain)

	v.SetDefault("blacklist.cache_ttl", c.Blacklist.CacheTTL)
	v.SetDefault("blacklist.seed", c.Blacklist.Seed)

	v.SetDefault("reports.enabled", c.Reports.Enabled)
	v.SetDefault("reports.window", c.Reports.Window)
	v.SetDefault("reports.promote_threshold", c.Reports.PromoteThreshold)
	v.SetDefault("reports.promote_trust", c.Reports.PromoteTrust)

	v.SetDefault("log.level", c.Logging.Level)
	v.SetDefault("log.format", c.Logging.Format)

	v.SetDefault("tracing.enabled", c.Tracing.Enabled)
	v.SetDefault("tracing.service_name", c.Tracing.ServiceName)
}
