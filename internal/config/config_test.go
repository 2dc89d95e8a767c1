package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "lmi-check.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "https://geocoding.geo.census.gov", cfg.Census.BaseURL)
	assert.Equal(t, "Public_AR_Census2020", cfg.Census.Benchmark)
	assert.Equal(t, "Census2020_Census2020", cfg.Census.Vintage)
	assert.InDelta(t, 10.0, cfg.Census.RateLimit, 0.001)
	assert.Equal(t, 2022, cfg.Census.ACSYear)
	assert.Equal(t, "acs", cfg.Income.Source)
	assert.Equal(t, 3, cfg.Income.MaxAttempts)
	assert.Equal(t, 1000, cfg.Income.BackoffMs)
	assert.Equal(t, 30, cfg.Income.CacheTTLDays)
	assert.Equal(t, 100000, cfg.Income.DefaultAMI)
	assert.Equal(t, 100, cfg.Cache.Capacity)
	assert.Equal(t, 24, cfg.Cache.TTLHours)
	assert.Equal(t, 10, cfg.LMI.TimeoutSecs)
	assert.True(t, cfg.LMI.MockFallback)
	assert.Equal(t, 5, cfg.Resilience.FailureThreshold)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.25, cfg.Monitoring.MockRateThreshold, 0.001)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.NoError(t, cfg.Validate("check"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/lmi
income:
  source: function
  function_url: https://example.functions.dev/lmi
lmi:
  mock_fallback: false
server:
  port: 9090
  cors_origins: ["https://app.example.com"]
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "function", cfg.Income.Source)
	assert.Equal(t, "https://example.functions.dev/lmi", cfg.Income.FunctionURL)
	assert.False(t, cfg.LMI.MockFallback)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 100, cfg.Cache.Capacity)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("esri:\n  token: from-file\n"), 0o644))
	t.Setenv("LMI_ESRI_TOKEN", "from-env")
	t.Setenv("LMI_LMI_TIMEOUT_SECS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Esri.Token)
	assert.Equal(t, 3, cfg.LMI.TimeoutSecs)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadEnvFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LMI_ESRI_TOKEN=dotenv-token\n"), 0o644))

	t.Setenv("LMI_ESRI_TOKEN", "")
	os.Unsetenv("LMI_ESRI_TOKEN") //nolint:errcheck

	require.NoError(t, LoadEnvFile(path))
	t.Cleanup(func() { os.Unsetenv("LMI_ESRI_TOKEN") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dotenv-token", cfg.Esri.Token)
}

func TestLoadEnvFile_Missing(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")))
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "loud", Format: "json"}))
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "lmi.db"
	cfg.Income.Source = "acs"
	cfg.Income.MaxAttempts = 3
	cfg.Income.CacheTTLDays = 30
	cfg.Income.DefaultAMI = 100000
	cfg.Cache.Capacity = 100
	cfg.LMI.TimeoutSecs = 10
	cfg.Server.Port = 8080
	cfg.Batch.Concurrency = 4
	return cfg
}

func TestValidate_Modes(t *testing.T) {
	cfg := validConfig()
	for _, mode := range []string{"check", "batch", "serve", "cache", "tract"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}

	err := cfg.Validate("migrate-everything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "mysql"
	cfg.Income.Source = "function"
	cfg.Income.MaxAttempts = 0

	err := cfg.Validate("check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "income.function_url is required")
	assert.Contains(t, err.Error(), "income.max_attempts must be >= 1")
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")

	// Port is irrelevant outside serve mode.
	assert.NoError(t, cfg.Validate("check"))
}

func TestValidate_BatchConcurrency(t *testing.T) {
	cfg := validConfig()
	for _, n := range []int{0, 33} {
		cfg.Batch.Concurrency = n
		err := cfg.Validate("batch")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 32")
	}
	cfg.Batch.Concurrency = 32
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidate_MockRateThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.Monitoring.MockRateThreshold = 1.5
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.mock_rate_threshold")
}
