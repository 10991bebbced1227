package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
	sharedcfg "github.com/fathima-sithara/social-platform/backend/shared/config"
)

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := ConnectRedis(context.Background(), sharedcfg.RedisCfg{Addr: mr.Addr()}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rdb.Close()

	mr.Close()
	_, err = ConnectRedis(context.Background(), sharedcfg.RedisCfg{Addr: mr.Addr()}, 200*time.Millisecond)
	if !errors.Is(err, apperr.ErrConnection) {
		t.Errorf("expected ErrConnection, got %v", err)
	}
}
