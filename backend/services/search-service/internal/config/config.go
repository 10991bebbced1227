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
	Log    sharedcfg.LogCfg    `mapstructure:"log"`
}

type MongoConf struct {
	sharedcfg.MongoCfg `mapstructure:",squash"`
	Collection         string `mapstructure:"collection"`
}

func defaults() map[string]any {
	return sharedcfg.Merge(sharedcfg.BusDefaults(), map[string]any{
		"server.port":        3004,
		"mongodb.uri":        "mongodb://localhost:27017",
		"mongodb.database":   "search_service",
		"mongodb.collection": "searches",
		"redis.addr":         "localhost:6379",
		"log.env":            "production",
		"log.level":          "info",
	})
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := sharedcfg.Read(path, defaults(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
