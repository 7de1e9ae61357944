package main

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jeffnawroth/source-taster/internal/config"
	"github.com/jeffnawroth/source-taster/internal/resilience"
	"github.com/jeffnawroth/source-taster/internal/source"
	"github.com/jeffnawroth/source-taster/internal/store"
	"github.com/jeffnawroth/source-taster/internal/verify"
)

// sourceEnv holds the decorated search providers and what they share.
type sourceEnv struct {
	Registry *source.Registry
	Breakers *resilience.Breakers
	Cache    *store.SQLiteCache
}

// Close releases the search-result cache.
func (e *sourceEnv) Close() {
	if e.Cache != nil {
		if err := e.Cache.Close(); err != nil {
			zap.L().Warn("close cache", zap.Error(err))
		}
	}
}

// Providers returns the registered providers in priority order.
func (e *sourceEnv) Providers(priority []string) []source.Provider {
	return e.Registry.Ordered(priority)
}

// initSources builds fixture-backed providers from config plus name=path
// overrides, each wrapped in the configured rate limit, retry, breaker and
// cache layers.
func initSources(ctx context.Context, c *config.Config, overrides []string) (*sourceEnv, error) {
	fixtures := make(map[string]string, len(c.Sources.Fixtures)+len(overrides))
	for name, path := range c.Sources.Fixtures {
		fixtures[name] = path
	}
	for _, o := range overrides {
		name, path, ok := strings.Cut(o, "=")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(path) == "" {
			return nil, eris.Errorf("source: %q is not name=path", o)
		}
		fixtures[strings.TrimSpace(name)] = strings.TrimSpace(path)
	}

	env := &sourceEnv{Registry: source.NewRegistry()}

	if c.Cache.Path != "" {
		cache, err := store.NewSQLite(ctx, c.Cache.Path)
		if err != nil {
			return nil, err
		}
		env.Cache = cache
		if n, err := cache.DeleteExpired(ctx); err != nil {
			zap.L().Warn("cache cleanup failed", zap.Error(err))
		} else if n > 0 {
			zap.L().Debug("expired cache entries removed", zap.Int("count", n))
		}
	}

	opts := source.Options{RatePerSec: c.Sources.RatePerSec, CacheTTL: c.CacheTTL()}
	if retry := c.RetryPolicy(); retry.MaxAttempts > 1 {
		opts.Retry = &retry
	}
	if cbCfg, ok := c.CircuitPolicy(); ok {
		cbCfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Info("circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
		env.Breakers = resilience.NewBreakers(cbCfg)
	}
	if env.Cache != nil {
		opts.Cache = env.Cache
	}

	names := make([]string, 0, len(fixtures))
	for name := range fixtures {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fp, err := source.LoadFixture(name, fixtures[name])
		if err != nil {
			env.Close()
			return nil, err
		}
		po := opts
		if env.Breakers != nil {
			po.Breaker = env.Breakers.For(name)
		}
		env.Registry.Register(source.Decorate(fp, po))
	}

	zap.L().Debug("sources ready", zap.Strings("sources", env.Registry.Names()))
	return env, nil
}

// verifyOptions converts the verification config into orchestrator options.
func verifyOptions(c *config.Config) ([]verify.Option, error) {
	policy, err := verify.ParseFailurePolicy(c.Verify.FailurePolicy)
	if err != nil {
		return nil, err
	}
	return []verify.Option{
		verify.WithSettings(c.Matching),
		verify.WithEarlyTermination(c.Verify.EarlyTermination.Enabled, c.Verify.EarlyTermination.Threshold),
		verify.WithFailurePolicy(policy),
	}, nil
}
