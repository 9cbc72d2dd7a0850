// Package cache stores search results in Redis keyed by index version, mode,
// limit and normalized query, and collapses concurrent identical queries
// into one evaluation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/resilience"
)

const keyPrefix = "search:"

// Backend is the key-value store behind the cache. *redis.Client
// satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Option configures a QueryCache.
type Option func(*QueryCache)

// WithIndexVersion makes lookups use the version reported by fn, normally
// the executor's IndexVersion. Results are stored under the version they
// carry, so a result computed against a replaced index is never served for
// its successor.
func WithIndexVersion(fn func() string) Option {
	return func(c *QueryCache) { c.version = fn }
}

type QueryCache struct {
	backend Backend
	breaker *resilience.CircuitBreaker
	version func() string
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration, m *metrics.Metrics, opts ...Option) *QueryCache {
	c := &QueryCache{
		backend: backend,
		breaker: resilience.NewCircuitBreaker("query-cache", resilience.BreakerConfig{
			IsFailure: func(err error) bool { return err != nil && !pkgredis.IsNilError(err) },
		}),
		ttl:     ttl,
		metrics: m,
		version: func() string { return "" },
		logger:  slog.Default().With("component", "query-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get looks req up under the current index version.
func (c *QueryCache) Get(ctx context.Context, req executor.Request) (*executor.SearchResult, bool) {
	return c.get(ctx, req, buildKey(c.version(), req))
}

func (c *QueryCache) get(ctx context.Context, req executor.Request, key string) (*executor.SearchResult, bool) {
	var data string
	err := c.breaker.Execute(func() (err error) {
		data, err = c.backend.Get(ctx, key)
		return err
	})
	if err != nil {
		if !pkgredis.IsNilError(err) && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.ObserveCache(true)
	c.logger.Debug("cache hit", "query", req.Query, "key", key)
	return &result, true
}

// Set stores result under the index version it was computed against.
func (c *QueryCache) Set(ctx context.Context, req executor.Request, result *executor.SearchResult) {
	key := buildKey(result.IndexVersion, req)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for req or computes, stores and
// returns it. Concurrent callers with the same request share one
// computation. Requests carrying relevance feedback bypass the cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req executor.Request,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if len(req.Relevant) > 0 {
		result, err := computeFn()
		return result, false, err
	}
	key := buildKey(c.version(), req)
	if result, ok := c.get(ctx, req, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, req, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached result. It is called whenever the index is
// reloaded.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.ObserveCache(false)
}

func buildKey(version string, req executor.Request) string {
	raw := fmt.Sprintf("%s|%s|limit=%d|%s", version, req.Mode, req.Limit, strings.Join(strings.Fields(req.Query), " "))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
