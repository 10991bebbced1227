package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestInvalidate_ExactAndPattern(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	for _, k := range []string{"post:p1", "post:p2", "posts:1:10", "posts:2:10", "other:1"} {
		if err := rdb.Set(ctx, k, "v", time.Minute).Err(); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	inv := NewInvalidator(rdb, zaptest.NewLogger(t))
	removed, err := inv.Invalidate(ctx, []string{"post:p1"}, "posts:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 keys removed, got %d", removed)
	}
	for _, k := range []string{"post:p1", "posts:1:10", "posts:2:10"} {
		if mr.Exists(k) {
			t.Errorf("expected %s to be gone", k)
		}
	}
	for _, k := range []string{"post:p2", "other:1"} {
		if !mr.Exists(k) {
			t.Errorf("expected %s to survive", k)
		}
	}
}

func TestInvalidate_NoMatchesIsNoop(t *testing.T) {
	_, rdb := newTestRedis(t)
	inv := NewInvalidator(rdb, nil)
	removed, err := inv.Invalidate(context.Background(), []string{"post:missing"}, "posts:*")
	if err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0 removed, got %d", removed)
	}
}

func TestInvalidate_ManyKeysAcrossBatches(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	for i := 0; i < 1200; i++ {
		mr.Set(fmt.Sprintf("posts:%d:10", i), "v")
	}
	inv := NewInvalidator(rdb, nil)
	inv.batchSize = 100
	inv.scanCount = 50

	removed, err := inv.Invalidate(ctx, nil, "posts:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1200 {
		t.Errorf("expected 1200 removed, got %d", removed)
	}
	if n := len(mr.Keys()); n != 0 {
		t.Errorf("expected empty keyspace, got %d keys", n)
	}
}

func TestInvalidate_FailsLoudlyWhenRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()
	inv := NewInvalidator(rdb, nil)
	if _, err := inv.Invalidate(context.Background(), []string{"post:p1"}, "posts:*"); err == nil {
		t.Fatal("expected error when redis is unreachable")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	var out struct{ Name string }
	found, err := GetJSON(ctx, rdb, "post:none", &out)
	if err != nil || found {
		t.Fatalf("expected clean miss, got found=%v err=%v", found, err)
	}

	if err := SetJSON(ctx, rdb, "post:p1", struct{ Name string }{"hello"}, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ttl := mr.TTL("post:p1"); ttl != time.Hour {
		t.Errorf("expected 1h ttl, got %v", ttl)
	}
	found, err = GetJSON(ctx, rdb, "post:p1", &out)
	if err != nil || !found || out.Name != "hello" {
		t.Errorf("expected hit with hello, got found=%v err=%v out=%+v", found, err, out)
	}

	mr.Set("post:bad", "{not json")
	if _, err := GetJSON(ctx, rdb, "post:bad", &out); err == nil {
		t.Error("expected decode error for corrupt entry")
	}
}
