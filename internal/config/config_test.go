package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "dashboard.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Server.RequestTimeoutSecs)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "query_1.csv", cfg.Sources.ActivityFile)
	assert.Equal(t, "join_result.csv", cfg.Sources.MergedCSV)
	assert.Equal(t, "0 5 * * *", cfg.Schedule.Cron)
	assert.True(t, cfg.Schedule.Enabled)
	assert.Equal(t, 5, cfg.Redash.MaxAttempts)
	assert.InDelta(t, 2.0, cfg.Redash.RateLimit, 0.001)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 10, cfg.Dashboard.PageSize)
	assert.Equal(t, "users_export", cfg.Dashboard.ExportFilename)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/dash
  pool:
    max_conns: 20
log:
  level: debug
  format: console
server:
  port: 9090
  cors_origins: ["https://dash.internal"]
redash:
  base_url: https://redash.internal
  activity_query_id: 11
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(20), cfg.Store.Pool.MaxConns)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://dash.internal"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 11, cfg.Redash.ActivityQueryID)
	// Defaults still apply for unset values
	assert.Equal(t, 120, cfg.Redash.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DASHBOARD_STORE_DRIVER", "postgres")
	t.Setenv("DASHBOARD_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DASHBOARD_SERVER_PORT", "3000")
	t.Setenv("DASHBOARD_REDASH_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Redash.APIKey)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "dashboard.db"
	cfg.Server.Port = 8080
	cfg.Dashboard.PageSize = 10
	cfg.Cache.Driver = "memory"
	return cfg
}

func withRedash(cfg *Config) *Config {
	cfg.Redash.BaseURL = "https://redash.internal"
	cfg.Redash.APIKey = "key"
	cfg.Redash.ActivityQueryID = 1
	cfg.Redash.ProfileQueryID = 2
	cfg.Redash.QualityQueryID = 3
	return cfg
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	cfg.Dashboard.PageSize = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "dashboard.page_size must be between 1 and 500")
}

func TestValidateServe_ScheduleNeedsRedash(t *testing.T) {
	cfg := validDefaults()
	cfg.Schedule.Enabled = true

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redash.base_url is required")

	assert.NoError(t, withRedash(cfg).Validate("serve"))
}

func TestValidateServe_RedisCache(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.Driver = "redis"
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.redis_addr")

	cfg.Cache.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Cache.Driver = "memcached"
	assert.Error(t, cfg.Validate("serve"))
}

func TestValidateSync(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redash.api_key is required")
	assert.Contains(t, err.Error(), "redash query ids must be > 0")

	assert.NoError(t, withRedash(cfg).Validate("sync"))
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("merge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 90*time.Second, Seconds(90))
}
