package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
	sharedcfg "github.com/fathima-sithara/social-platform/backend/shared/config"
)

// ConnectMongo dials and pings the primary so that an unreachable store fails at startup.
func ConnectMongo(ctx context.Context, cfg sharedcfg.MongoCfg, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, apperr.Connection("mongo connect", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, apperr.Connection("mongo ping", err)
	}
	return client, nil
}
