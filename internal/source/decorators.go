package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeffnawroth/source-taster/internal/model"
	"github.com/jeffnawroth/source-taster/internal/resilience"
	"github.com/jeffnawroth/source-taster/internal/store"
)

type rateLimited struct {
	Provider
	limiter *rate.Limiter
}

// WithRateLimit waits on limiter before every search.
func WithRateLimit(p Provider, limiter *rate.Limiter) Provider {
	return &rateLimited{Provider: p, limiter: limiter}
}

func (r *rateLimited) Search(ctx context.Context, ref model.Reference) ([]model.Candidate, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "source: %s rate limit", r.Name())
	}
	return r.Provider.Search(ctx, ref)
}

type retrying struct {
	Provider
	cfg resilience.RetryConfig
}

// WithRetry retries transient search failures with backoff. OnRetry defaults
// to a logger tagged with the source name.
func WithRetry(p Provider, cfg resilience.RetryConfig) Provider {
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(p.Name())
	}
	return &retrying{Provider: p, cfg: cfg}
}

func (r *retrying) Search(ctx context.Context, ref model.Reference) ([]model.Candidate, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) ([]model.Candidate, error) {
		return r.Provider.Search(ctx, ref)
	})
}

type breaker struct {
	Provider
	cb *resilience.CircuitBreaker
}

// WithBreaker fails fast with resilience.ErrCircuitOpen while the source keeps
// failing.
func WithBreaker(p Provider, cb *resilience.CircuitBreaker) Provider {
	return &breaker{Provider: p, cb: cb}
}

func (b *breaker) Search(ctx context.Context, ref model.Reference) ([]model.Candidate, error) {
	return resilience.ExecuteVal(ctx, b.cb, func(ctx context.Context) ([]model.Candidate, error) {
		return b.Provider.Search(ctx, ref)
	})
}

type cached struct {
	Provider
	cache store.Cache
	ttl   time.Duration
}

// WithCache serves repeated searches for identical reference metadata from
// cache. Cache failures are logged and never fail the search.
func WithCache(p Provider, cache store.Cache, ttl time.Duration) Provider {
	return &cached{Provider: p, cache: cache, ttl: ttl}
}

// CacheKey identifies a search by source and reference metadata. The
// reference id is left out so the same publication cited twice shares a key.
func CacheKey(source string, ref model.Reference) (string, error) {
	data, err := json.Marshal(ref.Metadata)
	if err != nil {
		return "", eris.Wrap(err, "source: marshal metadata for cache key")
	}
	sum := sha256.Sum256(data)
	return source + ":" + hex.EncodeToString(sum[:]), nil
}

func (c *cached) Search(ctx context.Context, ref model.Reference) ([]model.Candidate, error) {
	log := zap.L().With(zap.String("source", c.Name()), zap.String("reference", ref.ID))

	key, err := CacheKey(c.Name(), ref)
	if err != nil {
		log.Warn("source: cache key failed", zap.Error(err))
		return c.Provider.Search(ctx, ref)
	}

	if data, err := c.cache.Get(ctx, key); err != nil {
		log.Warn("source: cache read failed", zap.Error(err))
	} else if data != nil {
		var cands []model.Candidate
		if err := json.Unmarshal(data, &cands); err == nil {
			log.Debug("source: cache hit", zap.Int("candidates", len(cands)))
			return cands, nil
		}
		log.Warn("source: cached entry unreadable", zap.String("key", key))
	}

	cands, err := c.Provider.Search(ctx, ref)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(cands); err != nil {
		log.Warn("source: cache encode failed", zap.Error(err))
	} else if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		log.Warn("source: cache write failed", zap.Error(err))
	}
	return cands, nil
}

// Options selects the decorators applied by Decorate. Zero values disable
// the corresponding layer.
type Options struct {
	RatePerSec float64
	Retry      *resilience.RetryConfig
	Breaker    *resilience.CircuitBreaker
	Cache      store.Cache
	CacheTTL   time.Duration
}

// Decorate wraps p so that a cache hit skips everything else, the breaker
// guards the retry loop and every individual attempt is rate limited.
func Decorate(p Provider, opts Options) Provider {
	if opts.RatePerSec > 0 {
		p = WithRateLimit(p, rate.NewLimiter(rate.Limit(opts.RatePerSec), 1))
	}
	if opts.Retry != nil {
		p = WithRetry(p, *opts.Retry)
	}
	if opts.Breaker != nil {
		p = WithBreaker(p, opts.Breaker)
	}
	if opts.Cache != nil && opts.CacheTTL > 0 {
		p = WithCache(p, opts.Cache, opts.CacheTTL)
	}
	return p
}
