package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/user-dashboard/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Redash    RedashConfig    `yaml:"redash" mapstructure:"redash"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Mappings  MappingsConfig  `yaml:"mappings" mapstructure:"mappings"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SourcesConfig locates the three weekly extracts.
type SourcesConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	ActivityFile string `yaml:"activity_file" mapstructure:"activity_file"`
	ProfileFile  string `yaml:"profile_file" mapstructure:"profile_file"`
	QualityFile  string `yaml:"quality_file" mapstructure:"quality_file"`
	MergedCSV    string `yaml:"merged_csv" mapstructure:"merged_csv"`
}

// RedashConfig configures extract downloads.
type RedashConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey          string  `yaml:"api_key" mapstructure:"api_key"`
	ActivityQueryID int     `yaml:"activity_query_id" mapstructure:"activity_query_id"`
	ProfileQueryID  int     `yaml:"profile_query_id" mapstructure:"profile_query_id"`
	QualityQueryID  int     `yaml:"quality_query_id" mapstructure:"quality_query_id"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts     int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffSecs     int     `yaml:"backoff_secs" mapstructure:"backoff_secs"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// StoreConfig configures the materialized store.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// MappingsConfig locates the country and region documents.
type MappingsConfig struct {
	CountryNames string `yaml:"country_names" mapstructure:"country_names"`
	Regions      string `yaml:"regions" mapstructure:"regions"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	SessionTTLMins     int      `yaml:"session_ttl_mins" mapstructure:"session_ttl_mins"`
}

// ScheduleConfig configures the daily extract sync.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Cron    string `yaml:"cron" mapstructure:"cron"`
}

// CacheConfig configures the snapshot freshness checks and the filter
// result cache.
type CacheConfig struct {
	Driver            string `yaml:"driver" mapstructure:"driver"`
	RedisAddr         string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB           int    `yaml:"redis_db" mapstructure:"redis_db"`
	TTLSecs           int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
	MaxEntries        int    `yaml:"max_entries" mapstructure:"max_entries"`
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	WatchIntervalSecs int    `yaml:"watch_interval_secs" mapstructure:"watch_interval_secs"`
}

// DashboardConfig holds presentation defaults.
type DashboardConfig struct {
	PageSize       int    `yaml:"page_size" mapstructure:"page_size"`
	ExportFilename string `yaml:"export_filename" mapstructure:"export_filename"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DASHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("sources.dir", "data")
	v.SetDefault("sources.activity_file", "query_1.csv")
	v.SetDefault("sources.profile_file", "query_2.csv")
	v.SetDefault("sources.quality_file", "query_3.csv")
	v.SetDefault("sources.merged_csv", "join_result.csv")
	v.SetDefault("redash.base_url", "")
	v.SetDefault("redash.api_key", "")
	v.SetDefault("redash.activity_query_id", 0)
	v.SetDefault("redash.profile_query_id", 0)
	v.SetDefault("redash.quality_query_id", 0)
	v.SetDefault("redash.timeout_secs", 120)
	v.SetDefault("redash.max_attempts", 5)
	v.SetDefault("redash.backoff_secs", 5)
	v.SetDefault("redash.rate_limit", 2.0)
	v.SetDefault("store.driver", store.DriverSQLite)
	v.SetDefault("store.database_url", "dashboard.db")
	v.SetDefault("mappings.country_names", "mappings/country_names.yaml")
	v.SetDefault("mappings.regions", "mappings/regions.yaml")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.session_ttl_mins", 240)
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.cron", "0 5 * * *")
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl_secs", 300)
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("cache.check_interval_secs", 30)
	v.SetDefault("cache.watch_interval_secs", 60)
	v.SetDefault("dashboard.page_size", 10)
	v.SetDefault("dashboard.export_filename", "users_export")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: serve,
// sync, merge, migrate, export.
func (c *Config) Validate(mode string) error {
	var errs []string

	storeChecks := func() {
		switch c.Store.Driver {
		case store.DriverSQLite, store.DriverPostgres:
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "serve":
		storeChecks()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Dashboard.PageSize < 1 || c.Dashboard.PageSize > 500 {
			errs = append(errs, "dashboard.page_size must be between 1 and 500")
		}
		switch c.Cache.Driver {
		case "memory", "none", "":
		case "redis":
			if c.Cache.RedisAddr == "" {
				errs = append(errs, "cache.redis_addr is required for the redis cache")
			}
		default:
			errs = append(errs, fmt.Sprintf("cache.driver %q must be memory, redis or none", c.Cache.Driver))
		}
		if c.Schedule.Enabled {
			errs = append(errs, c.redashErrors()...)
		}
	case "sync":
		storeChecks()
		errs = append(errs, c.redashErrors()...)
	case "merge", "migrate", "export":
		storeChecks()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) redashErrors() []string {
	var errs []string
	if c.Redash.BaseURL == "" {
		errs = append(errs, "redash.base_url is required")
	}
	if c.Redash.APIKey == "" {
		errs = append(errs, "redash.api_key is required")
	}
	if c.Redash.ActivityQueryID <= 0 || c.Redash.ProfileQueryID <= 0 || c.Redash.QualityQueryID <= 0 {
		errs = append(errs, "redash query ids must be > 0")
	}
	return errs
}

// Seconds converts a seconds setting to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
