package config

import (
	"time"

	"github.com/joho/godotenv"

	sharedcfg "github.com/fathima-sithara/social-platform/backend/shared/config"
)

type MongoConf struct {
	sharedcfg.MongoCfg `mapstructure:",squash"`
	Collection         string `mapstructure:"collection"`
}

type AWSConf struct {
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`
	Endpoint string `mapstructure:"endpoint"`
}

type S3Conf struct {
	PublicRead bool `mapstructure:"public_read"`
	PresignTTL int  `mapstructure:"presign_ttl_seconds"`
}

type Config struct {
	Server sharedcfg.ServerCfg `mapstructure:"server"`
	Mongo  MongoConf           `mapstructure:"mongodb"`
	AWS    AWSConf             `mapstructure:"aws"`
	S3     S3Conf              `mapstructure:"s3"`
	Bus    sharedcfg.BusCfg    `mapstructure:"bus"`
	Log    sharedcfg.LogCfg    `mapstructure:"log"`
}

func (c *Config) PresignTTL() time.Duration {
	return time.Duration(c.S3.PresignTTL) * time.Second
}

func defaults() map[string]any {
	return sharedcfg.Merge(sharedcfg.BusDefaults(), map[string]any{
		"server.port":            3003,
		"mongodb.uri":            "mongodb://localhost:27017",
		"mongodb.database":       "media_service",
		"mongodb.collection":     "medias",
		"aws.region":             "us-east-1",
		"aws.bucket":             "social-media",
		"s3.presign_ttl_seconds": 600,
		"log.env":                "production",
		"log.level":              "info",
	})
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := sharedcfg.Read(path, defaults(), &cfg); err != nil {
		return nil, err
	}
	if cfg.S3.PresignTTL <= 0 {
		cfg.S3.PresignTTL = 600
	}
	return &cfg, nil
}
