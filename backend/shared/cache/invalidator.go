// Package cache deletes cached read models after the write that made them stale.
package cache

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/social-platform/backend/shared/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultScanCount = 100
	defaultBatchSize = 500
)

type Invalidator struct {
	rdb       redis.UniversalClient
	log       *zap.Logger
	scanCount int64
	batchSize int
}

func NewInvalidator(rdb redis.UniversalClient, log *zap.Logger) *Invalidator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Invalidator{rdb: rdb, log: log, scanCount: defaultScanCount, batchSize: defaultBatchSize}
}

// Invalidate deletes every exact key, then every key matching one of patterns.
// It returns the number of keys removed. A pattern with no matches is not an error.
func (i *Invalidator) Invalidate(ctx context.Context, keys []string, patterns ...string) (int64, error) {
	var removed int64
	n, err := i.del(ctx, keys)
	removed += n
	if err != nil {
		return i.done(removed, fmt.Errorf("delete keys %v: %w", keys, err))
	}
	for _, p := range patterns {
		n, err := i.deletePattern(ctx, p)
		removed += n
		if err != nil {
			return i.done(removed, fmt.Errorf("delete pattern %q: %w", p, err))
		}
	}
	return i.done(removed, nil)
}

// deletePattern walks the keyspace with SCAN (never KEYS) and deletes matches in batches.
func (i *Invalidator) deletePattern(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor  uint64
		removed int64
		batch   = make([]string, 0, i.batchSize)
	)
	for {
		keys, next, err := i.rdb.Scan(ctx, cursor, pattern, i.scanCount).Result()
		if err != nil {
			return removed, err
		}
		batch = append(batch, keys...)
		if len(batch) >= i.batchSize {
			n, err := i.del(ctx, batch)
			removed += n
			if err != nil {
				return removed, err
			}
			batch = batch[:0]
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	n, err := i.del(ctx, batch)
	return removed + n, err
}

func (i *Invalidator) del(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return i.rdb.Del(ctx, keys...).Result()
}

func (i *Invalidator) done(removed int64, err error) (int64, error) {
	metrics.CacheInvalidations.WithLabelValues(metrics.Result(err)).Inc()
	metrics.CacheKeysDeleted.Add(float64(removed))
	if err != nil {
		i.log.Error("cache invalidation failed", zap.Int64("removed", removed), zap.Error(err))
		return removed, err
	}
	i.log.Debug("cache invalidated", zap.Int64("removed", removed))
	return removed, nil
}
