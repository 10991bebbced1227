package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/models"
	sharedcache "github.com/fathima-sithara/social-platform/backend/shared/cache"
)

const (
	ResultTTL = time.Minute

	resultPattern = "search:*"
)

func Key(query string) string { return "search:" + query }

type SearchCache struct {
	rdb redis.UniversalClient
	inv *sharedcache.Invalidator
	log *zap.Logger
}

func NewSearchCache(rdb redis.UniversalClient, log *zap.Logger) *SearchCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &SearchCache{rdb: rdb, inv: sharedcache.NewInvalidator(rdb, log), log: log}
}

func (c *SearchCache) Get(ctx context.Context, query string) ([]models.SearchPost, bool) {
	var out []models.SearchPost
	found, err := sharedcache.GetJSON(ctx, c.rdb, Key(query), &out)
	if err != nil {
		c.log.Warn("search cache read failed", zap.String("query", query), zap.Error(err))
		return nil, false
	}
	return out, found
}

func (c *SearchCache) Set(ctx context.Context, query string, results []models.SearchPost) {
	if err := sharedcache.SetJSON(ctx, c.rdb, Key(query), results, ResultTTL); err != nil {
		c.log.Warn("search cache write failed", zap.String("query", query), zap.Error(err))
	}
}

// InvalidateAll drops every cached result; any query may match a changed post.
func (c *SearchCache) InvalidateAll(ctx context.Context) error {
	_, err := c.inv.Invalidate(ctx, nil, resultPattern)
	return err
}
