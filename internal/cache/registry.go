// Package cache provides deterministic cache key derivation and guarded
// access to Redis. Cache failures are absorbed here: reads degrade to misses
// and writes to no-ops, so callers never see a cache error.
package cache

import (
	"context"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// scanBatchSize is the COUNT hint for SCAN during pattern invalidation.
const scanBatchSize = 100

// DefaultOpTimeout bounds a single cache operation when no override is configured.
const DefaultOpTimeout = 250 * time.Millisecond

// Registry wraps a Redis client with timeout-bounded, failure-absorbing
// operations.
type Registry struct {
	client    rueidis.Client
	opTimeout time.Duration
	logger    *zap.Logger
}

// NewRegistry creates a Registry. A non-positive opTimeout falls back to
// DefaultOpTimeout.
func NewRegistry(client rueidis.Client, opTimeout time.Duration, logger *zap.Logger) *Registry {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}

	return &Registry{
		client:    client,
		opTimeout: opTimeout,
		logger:    logger.Named("cache_registry"),
	}
}

// Get reads a key. Both a true miss and any Redis failure report a miss;
// failures are logged and never surfaced.
func (r *Registry) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	result := r.client.Do(ctx, r.client.B().Get().Key(key).Build())
	if err := result.Error(); err != nil {
		if !rueidis.IsRedisNil(err) {
			r.logger.Warn("Cache read failed, treating as miss",
				zap.String("key", key),
				zap.Error(err))
		}

		return nil, false
	}

	value, err := result.AsBytes()
	if err != nil {
		r.logger.Warn("Cache value decode failed, treating as miss",
			zap.String("key", key),
			zap.Error(err))

		return nil, false
	}

	return value, true
}

// Set writes a key with a TTL. Failures are logged and swallowed.
func (r *Registry) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	result := r.client.Do(ctx, r.client.B().
		Set().
		Key(key).
		Value(rueidis.BinaryString(value)).
		Ex(ttl).
		Build())
	if err := result.Error(); err != nil {
		r.logger.Warn("Cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

// Delete removes keys. Failures are logged and swallowed.
func (r *Registry) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	result := r.client.Do(ctx, r.client.B().Del().Key(keys...).Build())
	if err := result.Error(); err != nil {
		r.logger.Warn("Cache delete failed",
			zap.Strings("keys", keys),
			zap.Error(err))
	}
}

// DeletePattern removes every key matching the glob pattern using cursor SCAN
// so large keyspaces are walked in batches. Each round trip gets its own
// timeout. A failure ends the walk early; keys already deleted stay deleted.
// Returns the number of keys removed.
func (r *Registry) DeletePattern(ctx context.Context, pattern string) int {
	var (
		deleted int
		cursor  uint64
	)

	for {
		entry, ok := r.scanPage(ctx, pattern, cursor)
		if !ok {
			return deleted
		}

		if len(entry.Elements) > 0 {
			delCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
			result := r.client.Do(delCtx, r.client.B().Del().Key(entry.Elements...).Build())

			cancel()

			if err := result.Error(); err != nil {
				r.logger.Warn("Cache pattern delete failed mid-scan",
					zap.String("pattern", pattern),
					zap.Error(err))

				return deleted
			}

			deleted += len(entry.Elements)
		}

		cursor = entry.Cursor
		if cursor == 0 {
			return deleted
		}
	}
}

// scanPage runs one SCAN round trip.
func (r *Registry) scanPage(ctx context.Context, pattern string, cursor uint64) (rueidis.ScanEntry, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	result := r.client.Do(ctx, r.client.B().
		Scan().
		Cursor(cursor).
		Match(pattern).
		Count(scanBatchSize).
		Build())
	if err := result.Error(); err != nil {
		r.logger.Warn("Cache pattern scan failed",
			zap.String("pattern", pattern),
			zap.Error(err))

		return rueidis.ScanEntry{}, false
	}

	entry, err := result.AsScanEntry()
	if err != nil {
		r.logger.Warn("Cache scan decode failed",
			zap.String("pattern", pattern),
			zap.Error(err))

		return rueidis.ScanEntry{}, false
	}

	return entry, true
}
