package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/fathima-sithara/social-platform/backend/services/search-service/internal/models"
)

func TestSearchCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	c := NewSearchCache(rdb, zaptest.NewLogger(t))
	ctx := context.Background()

	if _, found := c.Get(ctx, "hello"); found {
		t.Fatal("expected a miss on an empty cache")
	}
	c.Set(ctx, "hello", []models.SearchPost{{PostID: "p1", Content: "hello world"}})
	c.Set(ctx, "world", []models.SearchPost{})
	if ttl := mr.TTL(Key("hello")); ttl != ResultTTL {
		t.Errorf("expected ttl %s, got %s", ResultTTL, ttl)
	}

	got, found := c.Get(ctx, "hello")
	if !found || len(got) != 1 || got[0].PostID != "p1" {
		t.Fatalf("expected cached p1, got %v %v", got, found)
	}

	mr.Set("post:p1", "unrelated")
	if err := c.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists(Key("hello")) || mr.Exists(Key("world")) {
		t.Error("expected every search entry removed")
	}
	if !mr.Exists("post:p1") {
		t.Error("invalidation removed a key outside search:*")
	}
}

func TestSearchCache_ReadErrorIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	c := NewSearchCache(rdb, zaptest.NewLogger(t))

	mr.Set(Key("bad"), "not json")
	if _, found := c.Get(context.Background(), "bad"); found {
		t.Error("expected undecodable entry to read as a miss")
	}
}
