// Package config loads lmi-check configuration from config.yaml and LMI_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Census     CensusConfig     `yaml:"census" mapstructure:"census"`
	Esri       EsriConfig       `yaml:"esri" mapstructure:"esri"`
	Income     IncomeConfig     `yaml:"income" mapstructure:"income"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	LMI        LMIConfig        `yaml:"lmi" mapstructure:"lmi"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Tiger      TigerConfig      `yaml:"tiger" mapstructure:"tiger"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the tract cache backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CensusConfig configures the Census geocoder and ACS API.
type CensusConfig struct {
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	Benchmark  string  `yaml:"benchmark" mapstructure:"benchmark"`
	Vintage    string  `yaml:"vintage" mapstructure:"vintage"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	APIKey     string  `yaml:"api_key" mapstructure:"api_key"`
	ACSBaseURL string  `yaml:"acs_base_url" mapstructure:"acs_base_url"`
	ACSYear    int     `yaml:"acs_year" mapstructure:"acs_year"`
}

// EsriConfig configures the Esri World Geocoding fallback.
type EsriConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Token   string `yaml:"token" mapstructure:"token"`
}

// IncomeConfig configures tract income lookups.
type IncomeConfig struct {
	Source       string `yaml:"source" mapstructure:"source"`
	FunctionURL  string `yaml:"function_url" mapstructure:"function_url"`
	FunctionKey  string `yaml:"function_key" mapstructure:"function_key"`
	MaxAttempts  int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMs    int    `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	CacheTTLDays int    `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
	DefaultAMI   int    `yaml:"default_ami" mapstructure:"default_ami"`
}

// CacheConfig sizes the in-process HTTP response cache.
type CacheConfig struct {
	Capacity int `yaml:"capacity" mapstructure:"capacity"`
	TTLHours int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// LMIConfig configures top-level resolution.
type LMIConfig struct {
	TimeoutSecs  int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MockFallback bool `yaml:"mock_fallback" mapstructure:"mock_fallback"`
}

// ResilienceConfig configures per-provider circuit breakers.
type ResilienceConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// TigerConfig points at an optional TIGER/Line tract shapefile.
type TigerConfig struct {
	TractShapefile string `yaml:"tract_shapefile" mapstructure:"tract_shapefile"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// BatchConfig configures file-driven batch checks.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// MonitoringConfig configures background data-source health alerts. Alerts
// are only posted when WebhookURL is set.
type MonitoringConfig struct {
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	MockRateThreshold   float64 `yaml:"mock_rate_threshold" mapstructure:"mock_rate_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LoadEnvFile loads KEY=value pairs from a dotenv file into the process
// environment. Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return eris.Wrapf(err, "config: load %s", path)
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LMI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

// setDefaults registers every key, empty ones included, so AutomaticEnv can
// override keys that appear in neither the defaults nor config.yaml.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lmi-check.db")
	v.SetDefault("census.base_url", "https://geocoding.geo.census.gov")
	v.SetDefault("census.benchmark", "Public_AR_Census2020")
	v.SetDefault("census.vintage", "Census2020_Census2020")
	v.SetDefault("census.rate_limit", 10.0)
	v.SetDefault("census.acs_base_url", "https://api.census.gov/data")
	v.SetDefault("census.acs_year", 2022)
	v.SetDefault("census.api_key", "")
	v.SetDefault("esri.token", "")
	v.SetDefault("income.function_url", "")
	v.SetDefault("income.function_key", "")
	v.SetDefault("tiger.tract_shapefile", "")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("esri.base_url", "https://geocode-api.arcgis.com/arcgis/rest/services/World/GeocodeServer")
	v.SetDefault("income.source", "acs")
	v.SetDefault("income.max_attempts", 3)
	v.SetDefault("income.backoff_ms", 1000)
	v.SetDefault("income.cache_ttl_days", 30)
	v.SetDefault("income.default_ami", 100000)
	v.SetDefault("cache.capacity", 100)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("lmi.timeout_secs", 10)
	v.SetDefault("lmi.mock_fallback", true)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.mock_rate_threshold", 0.25)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the settings a command mode depends on. Every problem is
// reported, not just the first.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		add("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		add("store.database_url is required")
	}

	switch c.Income.Source {
	case "acs", "mock":
	case "function":
		if c.Income.FunctionURL == "" {
			add("income.function_url is required when income.source is function")
		}
	default:
		add("income.source must be acs, function, or mock, got %q", c.Income.Source)
	}
	if c.Income.MaxAttempts < 1 {
		add("income.max_attempts must be >= 1")
	}
	if c.Income.CacheTTLDays < 1 {
		add("income.cache_ttl_days must be >= 1")
	}
	if c.Income.DefaultAMI <= 0 {
		add("income.default_ami must be > 0")
	}
	if c.Cache.Capacity < 1 {
		add("cache.capacity must be >= 1")
	}
	if c.LMI.TimeoutSecs < 1 {
		add("lmi.timeout_secs must be >= 1")
	}

	switch mode {
	case "check", "cache", "tract":
	case "batch":
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 32 {
			add("batch.concurrency must be between 1 and 32")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
		if c.Monitoring.MockRateThreshold < 0 || c.Monitoring.MockRateThreshold > 1 {
			add("monitoring.mock_rate_threshold must be between 0 and 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
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
