package config

import (
	"github.com/joho/godotenv"

	sharedcfg "github.com/fathima-sithara/social-platform/backend/shared/config"
)

type Config struct {
	Server sharedcfg.ServerCfg `mapstructure:"server"`
	Mongo  MongoConf           `mapstructure:"mongodb"`
	Redis  sharedcfg.RedisCfg  `mapstructure:"redis"`
	Bus    sharedcfg.BusCfg    `mapstructure:"bus"`
	Outbox sharedcfg.OutboxCfg `mapstructure:"outbox"`
	Log    sharedcfg.LogCfg    `mapstructure:"log"`
}

type MongoConf struct {
	sharedcfg.MongoCfg `mapstructure:",squash"`
	Collection         string `mapstructure:"collection"`
	OutboxCollection   string `mapstructure:"outbox_collection"`
}

func defaults() map[string]any {
	return sharedcfg.Merge(sharedcfg.BusDefaults(), map[string]any{
		"server.port":               3002,
		"mongodb.uri":               "mongodb://localhost:27017/?replicaSet=rs0",
		"mongodb.database":          "post_service",
		"mongodb.collection":        "posts",
		"mongodb.outbox_collection": "outbox",
		"redis.addr":                "localhost:6379",
		"outbox.enabled":            true,
		"outbox.poll_interval_ms":   500,
		"outbox.batch_size":         100,
		"log.env":                   "production",
		"log.level":                 "info",
	})
}

// Load reads .env (if any), then path, then the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := sharedcfg.Read(path, defaults(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
