// Package cache provides the short-lived read cache that sits in front of the book store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Cache stores encoded values under a key with an absolute expiry.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the value under key and whether it was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookstore_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"key"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookstore_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"key"},
	)
)

// GetOrCompute returns the cached value under key when it is present and
// unexpired. Otherwise it calls compute, caches the result for ttl and returns it.
//
// Concurrent misses on the same key may each call compute. Cache failures
// are logged and fall back to compute; only compute errors are returned.
func GetOrCompute[T any](
	ctx context.Context,
	c Cache,
	logger *zap.Logger,
	key string,
	ttl time.Duration,
	compute func(context.Context) (T, error),
) (T, error) {
	return getOrCompute(ctx, c, nil, logger, key, ttl, compute)
}

// GetOrComputeFenced is GetOrCompute, except that a value is only cached if
// fence has not advanced since compute started.
func GetOrComputeFenced[T any](
	ctx context.Context,
	c Cache,
	fence *Fence,
	logger *zap.Logger,
	key string,
	ttl time.Duration,
	compute func(context.Context) (T, error),
) (T, error) {
	return getOrCompute(ctx, c, fence, logger, key, ttl, compute)
}

func getOrCompute[T any](
	ctx context.Context,
	c Cache,
	fence *Fence,
	logger *zap.Logger,
	key string,
	ttl time.Duration,
	compute func(context.Context) (T, error),
) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	raw, ok, err := c.Get(ctx, key)
	if err != nil {
		logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	if ok {
		var cached T
		err := json.Unmarshal(raw, &cached)
		if err == nil {
			cacheHits.WithLabelValues(key).Inc()
			return cached, nil
		}
		logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
	}

	cacheMisses.WithLabelValues(key).Inc()

	token := fence.Token()

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return value, nil
	}

	stored := fence.storeIf(token, func() {
		if err := c.Set(ctx, key, encoded, ttl); err != nil {
			logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	})
	if !stored {
		logger.Debug("dropping value computed before a write", zap.String("key", key))
	}

	return value, nil
}

// Invalidate removes keys, wrapping any backend error.
func Invalidate(ctx context.Context, c Cache, keys ...string) error {
	if err := c.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("invalidating %v: %w", keys, err)
	}
	return nil
}
