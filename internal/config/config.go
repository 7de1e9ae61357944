package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeffnawroth/source-taster/internal/matching"
	"github.com/jeffnawroth/source-taster/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig         `yaml:"log" mapstructure:"log"`
	Server   ServerConfig      `yaml:"server" mapstructure:"server"`
	Matching matching.Settings `yaml:"matching" mapstructure:"matching"`
	Verify   VerifyConfig      `yaml:"verify" mapstructure:"verify"`
	Sources  SourcesConfig     `yaml:"sources" mapstructure:"sources"`
	Cache    CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Batch    BatchConfig       `yaml:"batch" mapstructure:"batch"`
}

// VerifyConfig configures the verification run.
type VerifyConfig struct {
	EarlyTermination EarlyTerminationConfig `yaml:"early_termination" mapstructure:"early_termination"`
	Sources          []string               `yaml:"sources" mapstructure:"sources"` // priority order; empty = all registered
	FailurePolicy    string                 `yaml:"failure_policy" mapstructure:"failure_policy"`
}

// EarlyTerminationConfig stops searching a reference once it scores at least
// Threshold.
type EarlyTerminationConfig struct {
	Enabled   bool `yaml:"enabled" mapstructure:"enabled"`
	Threshold int  `yaml:"threshold" mapstructure:"threshold"`
}

// SourcesConfig configures search providers and the decorators around them.
type SourcesConfig struct {
	Fixtures   map[string]string `yaml:"fixtures" mapstructure:"fixtures"` // source name -> candidates JSON
	RatePerSec float64           `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Retry      RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig     `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig configures retries of transient search failures. MaxAttempts
// of 1 disables retrying.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// CircuitConfig configures the per-source circuit breaker. A zero
// FailureThreshold disables it.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// CacheConfig configures the search-result cache. An empty Path disables it.
type CacheConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// BatchConfig configures batch scoring.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("SOURCETASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Field weights are filled in after unmarshalling: viper merges
	// nested defaults key by key, which would re-enable fields a config file
	// left out.
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("verify.early_termination.enabled", true)
	v.SetDefault("verify.early_termination.threshold", 85)
	v.SetDefault("verify.failure_policy", "isolate")
	v.SetDefault("sources.rate_per_sec", 5.0)
	v.SetDefault("sources.retry.max_attempts", 3)
	v.SetDefault("sources.retry.initial_backoff_ms", 250)
	v.SetDefault("sources.retry.max_backoff_ms", 5000)
	v.SetDefault("sources.retry.multiplier", 2.0)
	v.SetDefault("sources.circuit.failure_threshold", 5)
	v.SetDefault("sources.circuit.reset_timeout_secs", 30)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("batch.concurrency", 8)

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

	defaults := matching.DefaultSettings()
	if len(cfg.Matching.Fields) == 0 {
		cfg.Matching.Fields = defaults.Fields
	} else {
		cfg.Matching.Fields = canonicalFields(cfg.Matching.Fields)
	}
	if !v.IsSet("matching.rules") {
		cfg.Matching.Rules = defaults.Rules
	}

	return &cfg, nil
}

// upperFields are the CSL variables spelled in capitals. Viper lowercases
// every key it reads, so they are restored here.
var upperFields = map[string]string{
	"doi":   "DOI",
	"isbn":  "ISBN",
	"issn":  "ISSN",
	"pmid":  "PMID",
	"pmcid": "PMCID",
	"url":   "URL",
}

func canonicalFields(fields matching.FieldConfiguration) matching.FieldConfiguration {
	out := make(matching.FieldConfiguration, len(fields))
	for name, fs := range fields {
		if upper, ok := upperFields[strings.ToLower(name)]; ok {
			name = upper
		}
		out[name] = fs
	}
	return out
}

// RetryPolicy converts the retry settings.
func (c *Config) RetryPolicy() resilience.RetryConfig {
	r := c.Sources.Retry
	return resilience.FromRetryConfig(
		r.MaxAttempts,
		time.Duration(r.InitialBackoffMS)*time.Millisecond,
		time.Duration(r.MaxBackoffMS)*time.Millisecond,
		r.Multiplier,
	)
}

// CircuitPolicy converts the circuit breaker settings. ok is false when the
// breaker is disabled.
func (c *Config) CircuitPolicy() (cfg resilience.CircuitBreakerConfig, ok bool) {
	cc := c.Sources.Circuit
	if cc.FailureThreshold <= 0 {
		return resilience.CircuitBreakerConfig{}, false
	}
	return resilience.FromCircuitConfig(cc.FailureThreshold, time.Duration(cc.ResetTimeoutSecs)*time.Second), true
}

// CacheTTL returns how long cached search results stay valid.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
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
