package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigHasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "raffel", cfg.ServiceName)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.True(t, cfg.HTTP.Streaming)
	assert.Equal(t, int64(30_000), cfg.HTTP.HeartbeatIntervalMs)
	assert.Equal(t, 3, cfg.Resilience.Retry.MaxAttempts)
	assert.Equal(t, "exponential", cfg.Resilience.Retry.Strategy)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, "memory", cfg.RateLimit.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestDetectEnvironmentSwitchesToTextLoggingInDevelopment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Environment = "development"
	cfg.detectEnvironment()

	assert.True(t, cfg.Development.Enabled)
	assert.True(t, cfg.Development.PrettyLogs)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("RAFFEL_PORT", "9090")
	t.Setenv("RAFFEL_CACHE_DRIVER", "redis")
	t.Setenv("RAFFEL_CACHE_REDIS_URL", "redis://cache:6379")
	t.Setenv("RAFFEL_RETRY_STRATEGY", "decorrelated")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "redis://cache:6379", cfg.Cache.RedisURL)
	assert.Equal(t, "decorrelated", cfg.Resilience.Retry.Strategy)
}

func TestLoadFromEnvFallsBackToStandardRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://standard:6379")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "redis://standard:6379", cfg.Cache.RedisURL)
	assert.Equal(t, "redis://standard:6379", cfg.RateLimit.RedisURL)
}

func TestValidateRejectsInvalidPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTP.Port = 70000

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
}

func TestValidateRequiresRedisURLForRedisCacheDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Driver = "redis"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis url")
}

func TestValidateRequiresBothTLSFiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTP.TLS.Enabled = true
	cfg.HTTP.TLS.CertFile = "cert.pem"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls")
}

func TestNewAppliesOptionsAfterEnv(t *testing.T) {
	t.Setenv("RAFFEL_PORT", "9090")

	cfg, err := New(WithPort(7000), WithServiceName("orders"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.HTTP.Port)
	assert.Equal(t, "orders", cfg.ServiceName)
}

func TestNewReturnsErrorOnValidationFailure(t *testing.T) {
	_, err := New(WithPort(-1))
	assert.Error(t, err)
}

func TestLoadFileParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raffel.yaml")
	contents := "service_name: orders-service\nhttp:\n  port: 9091\ncache:\n  driver: redis\n  redis_url: redis://cache:6379\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "orders-service", cfg.ServiceName)
	assert.Equal(t, 9091, cfg.HTTP.Port)
	assert.Equal(t, "redis", cfg.Cache.Driver)
}

func TestLoadFileParsesJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raffel.json")
	contents := `{"service_name":"orders-service","http":{"port":9092}}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "orders-service", cfg.ServiceName)
	assert.Equal(t, 9092, cfg.HTTP.Port)
}

func TestLoadFileRejectsUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raffel.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = 1"), 0o600))

	cfg := DefaultConfig()
	err := cfg.LoadFile(path)
	assert.Error(t, err)
}

func TestWithConfigFileLoadsBeforeLaterOptionsOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raffel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 9093\n"), 0o600))

	cfg, err := New(WithConfigFile(path), WithPort(9999))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.HTTP.Port)
}
