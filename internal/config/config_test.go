package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeffnawroth/source-taster/internal/matching"
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
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Verify.EarlyTermination.Enabled)
	assert.Equal(t, 85, cfg.Verify.EarlyTermination.Threshold)
	assert.Equal(t, "isolate", cfg.Verify.FailurePolicy)
	assert.InDelta(t, 5.0, cfg.Sources.RatePerSec, 0.001)
	assert.Equal(t, 3, cfg.Sources.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Sources.Circuit.FailureThreshold)
	assert.Equal(t, 24, cfg.Cache.TTLHours)
	assert.Empty(t, cfg.Cache.Path)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, matching.DefaultSettings().Fields, cfg.Matching.Fields)
	assert.Equal(t, matching.DefaultSettings().Rules, cfg.Matching.Rules)

	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9090
matching:
  fields:
    title: {enabled: true, weight: 60}
    DOI: {enabled: true, weight: 40}
  rules: [lowercase, punctuation]
  locale: tr
verify:
  sources: [openalex, crossref]
  failure_policy: abort
  early_termination:
    enabled: false
sources:
  fixtures:
    crossref: testdata/crossref.json
cache:
  path: cache.db
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, matching.FieldConfiguration{
		"title": {Enabled: true, Weight: 60},
		"DOI":   {Enabled: true, Weight: 40},
	}, cfg.Matching.Fields)
	assert.Equal(t, []string{"lowercase", "punctuation"}, cfg.Matching.Rules)
	assert.Equal(t, "tr", cfg.Matching.Locale)
	assert.Equal(t, []string{"openalex", "crossref"}, cfg.Verify.Sources)
	assert.Equal(t, "abort", cfg.Verify.FailurePolicy)
	assert.False(t, cfg.Verify.EarlyTermination.Enabled)
	assert.Equal(t, map[string]string{"crossref": "testdata/crossref.json"}, cfg.Sources.Fixtures)
	assert.Equal(t, "cache.db", cfg.Cache.Path)
	// Defaults still apply for unset values
	assert.Equal(t, 85, cfg.Verify.EarlyTermination.Threshold)

	assert.NoError(t, cfg.Validate("verify"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
verify:
  failure_policy: abort
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("SOURCETASTER_LOG_LEVEL", "warn")
	t.Setenv("SOURCETASTER_VERIFY_FAILURE_POLICY", "isolate")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "isolate", cfg.Verify.FailurePolicy)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SOURCETASTER_SERVER_PORT", "3000")
	t.Setenv("SOURCETASTER_BATCH_CONCURRENCY", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Batch.Concurrency)
}

func TestLoadBadFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0o644))

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
	cfg := &Config{Matching: matching.DefaultSettings()}
	cfg.Verify.EarlyTermination = EarlyTerminationConfig{Enabled: true, Threshold: 85}
	cfg.Verify.FailurePolicy = "isolate"
	cfg.Batch.Concurrency = 8
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Modes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"match", "verify", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}

	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be between 1 and 65535")
	assert.NoError(t, cfg.Validate("verify"))
}

func TestValidateVerify(t *testing.T) {
	cfg := validDefaults()
	cfg.Verify.EarlyTermination.Threshold = 101
	cfg.Verify.FailurePolicy = "retry"
	cfg.Cache.Path = "cache.db"
	cfg.Cache.TTLHours = 0

	err := cfg.Validate("verify")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 3)
	assert.Contains(t, err.Error(), "threshold must be between 0 and 100")
	assert.Contains(t, err.Error(), "failure_policy must be isolate or abort")
	assert.Contains(t, err.Error(), "cache.ttl_hours")

	// match mode ignores verification settings
	assert.NoError(t, cfg.Validate("match"))
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate("match")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 64")

	cfg.Batch.Concurrency = 65
	assert.Error(t, cfg.Validate("match"))

	cfg.Batch.Concurrency = 64
	assert.NoError(t, cfg.Validate("match"))
}

func TestValidateSettings(t *testing.T) {
	assert.NoError(t, ValidateSettings(matching.DefaultSettings()))

	err := ValidateSettings(matching.Settings{
		Fields: matching.FieldConfiguration{
			"title":  {Enabled: true, Weight: 70},
			"author": {Enabled: true, Weight: 20},
		},
		Rules: []string{"lowercase", "soundex"},
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 2)
	assert.Contains(t, err.Error(), "sum to 100")
	assert.Contains(t, err.Error(), "soundex")

	err = ValidateSettings(matching.Settings{Fields: matching.FieldConfiguration{"title": {Enabled: false, Weight: 100}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one field must be enabled")
}

func TestLoadSettingsFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("top level yaml", func(t *testing.T) {
		path := filepath.Join(dir, "settings.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
fields:
  title: {enabled: true, weight: 50}
  DOI: {enabled: true, weight: 50}
rules: [identifiers, lowercase]
`), 0o644))

		s, err := LoadSettingsFile(path)
		require.NoError(t, err)
		assert.Equal(t, 50.0, s.Fields["DOI"].Weight)
		assert.Equal(t, []string{"identifiers", "lowercase"}, s.Rules)
	})

	t.Run("wrapped json", func(t *testing.T) {
		path := filepath.Join(dir, "settings.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"matching": {"fields": {"title": {"enabled": true, "weight": 100}}}}`), 0o644))

		s, err := LoadSettingsFile(path)
		require.NoError(t, err)
		assert.Len(t, s.Fields, 1)
		assert.Equal(t, matching.DefaultSettings().Rules, s.Rules)
	})

	t.Run("empty rules kept", func(t *testing.T) {
		path := filepath.Join(dir, "norules.yaml")
		require.NoError(t, os.WriteFile(path, []byte("rules: []\n"), 0o644))

		s, err := LoadSettingsFile(path)
		require.NoError(t, err)
		assert.Empty(t, s.Rules)
		assert.Equal(t, matching.DefaultSettings().Fields, s.Fields)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadSettingsFile(filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("fields: [1, 2"), 0o644))
		_, err := LoadSettingsFile(path)
		assert.Error(t, err)
	})
}

func TestPolicies(t *testing.T) {
	cfg := validDefaults()
	cfg.Sources.Retry = RetryConfig{MaxAttempts: 5, InitialBackoffMS: 100}
	cfg.Cache.TTLHours = 2

	retry := cfg.RetryPolicy()
	assert.Equal(t, 5, retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, retry.InitialBackoff)
	assert.Equal(t, 2*time.Hour, cfg.CacheTTL())

	_, ok := cfg.CircuitPolicy()
	assert.False(t, ok)

	cfg.Sources.Circuit = CircuitConfig{FailureThreshold: 2, ResetTimeoutSecs: 10}
	cb, ok := cfg.CircuitPolicy()
	require.True(t, ok)
	assert.Equal(t, 2, cb.FailureThreshold)
	assert.Equal(t, 10*time.Second, cb.ResetTimeout)
}
