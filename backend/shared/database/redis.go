package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
	sharedcfg "github.com/fathima-sithara/social-platform/backend/shared/config"
)

func ConnectRedis(ctx context.Context, cfg sharedcfg.RedisCfg, timeout time.Duration) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, apperr.Connection("redis ping", err)
	}
	return rdb, nil
}
