package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(config.Options{})
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultConfig(), cfg)
}

func TestLoadProTier(t *testing.T) {
	t.Setenv("KESTREL_TIER", "pro")

	cfg, err := config.Load(config.Options{})
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.True(t, cfg.Cache.EnableTwoPhase)
	assert.Equal(t, "nats", cfg.EventBus.Type)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("KESTREL_SERVER_PORT", "9090")
	t.Setenv("KESTREL_REPORTS_WINDOW", "1h")
	t.Setenv("KESTREL_MODE", "hybrid")
	t.Setenv("KESTREL_SERVER_HISTORY", "false")

	cfg, err := config.Load(config.Options{})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Reports.Window)
	assert.Equal(t, domain.ModeHybrid, cfg.Mode)
	assert.False(t, cfg.Server.History)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kestrel.yaml")
	yaml := `
mode: heuristic
server:
  port: 8181
reports:
  promote_threshold: 5
  promote_trust: 0.9
blacklist:
  cache_ttl: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := config.Load(config.Options{File: path})
	require.NoError(t, err)

	assert.Equal(t, domain.ModeHeuristic, cfg.Mode)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, int64(5), cfg.Reports.PromoteThreshold)
	assert.Equal(t, 0.9, cfg.Reports.PromoteTrust)
	assert.Equal(t, 30*time.Second, cfg.Blacklist.CacheTTL)
	assert.Equal(t, "sqlite", cfg.Repository.Driver, "unset keys keep defaults")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kestrel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8181\n"), 0644))
	t.Setenv("KESTREL_SERVER_PORT", "9191")

	cfg, err := config.Load(config.Options{File: path})
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoadFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 8080, "")
	fs.String("mode", "heuristic", "")
	fs.String("unrelated", "", "")
	require.NoError(t, fs.Parse([]string{"--port", "7070"}))

	cfg, err := config.Load(config.Options{Flags: fs})
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, domain.DefaultMode, cfg.Mode, "unset flags do not override defaults")
}

func TestLoadErrors(t *testing.T) {
	t.Run("MissingExplicitFile", func(t *testing.T) {
		_, err := config.Load(config.Options{File: filepath.Join(t.TempDir(), "nope.yaml")})
		assert.Error(t, err)
	})

	t.Run("InvalidTrust", func(t *testing.T) {
		t.Setenv("KESTREL_REPORTS_PROMOTE_TRUST", "2")
		_, err := config.Load(config.Options{})
		assert.ErrorContains(t, err, "promote_trust")
	})

	t.Run("InvalidTier", func(t *testing.T) {
		t.Setenv("KESTREL_TIER", "enterprise")
		_, err := config.Load(config.Options{})
		assert.ErrorContains(t, err, "tier")
	})
}

func TestValidate(t *testing.T) {
	assert.NoError(t, config.Validate(domain.DefaultConfig()))
	assert.NoError(t, config.Validate(domain.ProConfig()))

	cfg := domain.DefaultConfig()
	cfg.Server.Port = 0
	cfg.Mode = "fastest"
	cfg.Reports.PromoteThreshold = 0

	err := config.Validate(cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "server.port")
	assert.ErrorContains(t, err, "fastest")
	assert.ErrorContains(t, err, "promote_threshold")
}
