package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/services/post-service/internal/models"
	sharedcache "github.com/fathima-sithara/social-platform/backend/shared/cache"
)

const (
	PostTTL = time.Hour
	ListTTL = 5 * time.Minute

	listPattern = "posts:*"

	listVersionKey = "cache:version:posts"
)

func PostKey(id string) string { return "post:" + id }

func ListKey(page, limit int) string { return fmt.Sprintf("posts:%d:%d", page, limit) }

func postVersionKey(id string) string { return "cache:version:post:" + id }

// Version is read before loading from the store and handed back when populating. An
// invalidation in between bumps the stored version and the populate is dropped.
type Version string

// noVersion means the version could not be read; nothing gets cached with it.
const noVersion Version = ""

// setIfVersion writes KEYS[1] only while KEYS[2] still holds the version read earlier.
var setIfVersion = redis.NewScript(`
local v = redis.call('GET', KEYS[2])
if not v then v = '0' end
if v ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// PostCache holds single posts and listing pages. Reads degrade to misses when Redis
// misbehaves; invalidation does not.
type PostCache struct {
	rdb redis.UniversalClient
	inv *sharedcache.Invalidator
	log *zap.Logger
}

func NewPostCache(rdb redis.UniversalClient, log *zap.Logger) *PostCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostCache{rdb: rdb, inv: sharedcache.NewInvalidator(rdb, log), log: log}
}

func (c *PostCache) GetPost(ctx context.Context, id string) (*models.Post, bool) {
	var p models.Post
	found, err := sharedcache.GetJSON(ctx, c.rdb, PostKey(id), &p)
	if err != nil {
		c.log.Warn("post cache read failed", zap.String("post_id", id), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	return &p, true
}

func (c *PostCache) PostVersion(ctx context.Context, id string) Version {
	return c.version(ctx, postVersionKey(id))
}

func (c *PostCache) ListVersion(ctx context.Context) Version {
	return c.version(ctx, listVersionKey)
}

func (c *PostCache) version(ctx context.Context, key string) Version {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "0"
	}
	if err != nil {
		c.log.Warn("cache version read failed", zap.String("key", key), zap.Error(err))
		return noVersion
	}
	return Version(v)
}

// SetPost caches p unless the post was invalidated after seen was read.
func (c *PostCache) SetPost(ctx context.Context, p *models.Post, seen Version) {
	id := p.ID.Hex()
	if err := c.setIfCurrent(ctx, PostKey(id), postVersionKey(id), seen, p, PostTTL); err != nil {
		c.log.Warn("post cache write failed", zap.String("post_id", id), zap.Error(err))
	}
}

func (c *PostCache) GetList(ctx context.Context, page, limit int) ([]models.Post, bool) {
	var posts []models.Post
	found, err := sharedcache.GetJSON(ctx, c.rdb, ListKey(page, limit), &posts)
	if err != nil {
		c.log.Warn("list cache read failed", zap.Int("page", page), zap.Int("limit", limit), zap.Error(err))
		return nil, false
	}
	return posts, found
}

// SetList caches a page unless any post was invalidated after seen was read.
func (c *PostCache) SetList(ctx context.Context, page, limit int, posts []models.Post, seen Version) {
	if err := c.setIfCurrent(ctx, ListKey(page, limit), listVersionKey, seen, posts, ListTTL); err != nil {
		c.log.Warn("list cache write failed", zap.Int("page", page), zap.Int("limit", limit), zap.Error(err))
	}
}

func (c *PostCache) setIfCurrent(ctx context.Context, key, versionKey string, seen Version, v any, ttl time.Duration) error {
	if seen == noVersion {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return setIfVersion.Run(ctx, c.rdb, []string{key, versionKey}, string(seen), b, ttl.Milliseconds()).Err()
}

// Invalidate drops post:<id> and every listing page. Versions are bumped first so that
// a read already in flight cannot put the stale entries back. The caller must not
// answer the request before this returns.
func (c *PostCache) Invalidate(ctx context.Context, postID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, postVersionKey(postID))
	pipe.Expire(ctx, postVersionKey(postID), PostTTL)
	pipe.Incr(ctx, listVersionKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bump cache versions: %w", err)
	}
	_, err := c.inv.Invalidate(ctx, []string{PostKey(postID)}, listPattern)
	return err
}
