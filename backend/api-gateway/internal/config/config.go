package config

import (
	"errors"
	"time"

	"github.com/joho/godotenv"

	sharedcfg "github.com/fathima-sithara/social-platform/backend/shared/config"
)

type JWTConfig struct {
	Secret        string `mapstructure:"secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type RateLimitConfig struct {
	Requests      int `mapstructure:"requests"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

func (r RateLimitConfig) Window() time.Duration { return time.Duration(r.WindowSeconds) * time.Second }

type CircuitBreakerConfig struct {
	MaxFailures uint32 `mapstructure:"max_failures"`
	IntervalSec int    `mapstructure:"interval_seconds"`
	TimeoutSec  int    `mapstructure:"timeout_seconds"`
}

type UpstreamConfig struct {
	TimeoutSeconds    int `mapstructure:"timeout_seconds"`
	RetryMaxElapsedMs int `mapstructure:"retry_max_elapsed_ms"`
}

func (u UpstreamConfig) Timeout() time.Duration { return time.Duration(u.TimeoutSeconds) * time.Second }
func (u UpstreamConfig) RetryMaxElapsed() time.Duration {
	return time.Duration(u.RetryMaxElapsedMs) * time.Millisecond
}

// DiscoveryConfig prefers Consul when ConsulAddr is set, otherwise the static Services map.
type DiscoveryConfig struct {
	ConsulAddr      string            `mapstructure:"consul_addr"`
	CacheTTLSeconds int               `mapstructure:"cache_ttl_seconds"`
	Services        map[string]string `mapstructure:"services"`
}

func (d DiscoveryConfig) CacheTTL() time.Duration {
	return time.Duration(d.CacheTTLSeconds) * time.Second
}

type Config struct {
	Server         sharedcfg.ServerCfg  `mapstructure:"server"`
	Redis          sharedcfg.RedisCfg   `mapstructure:"redis"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Upstream       UpstreamConfig       `mapstructure:"upstream"`
	Discovery      DiscoveryConfig      `mapstructure:"discovery"`
	Log            sharedcfg.LogCfg     `mapstructure:"log"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.port":                      8080,
		"redis.addr":                       "",
		"jwt.secret":                       "",
		"jwt.public_key_path":              "",
		"rate_limit.requests":              100,
		"rate_limit.window_seconds":        900,
		"circuit_breaker.max_failures":     5,
		"circuit_breaker.interval_seconds": 60,
		"circuit_breaker.timeout_seconds":  30,
		"upstream.timeout_seconds":         30,
		"upstream.retry_max_elapsed_ms":    2000,
		"discovery.consul_addr":            "",
		"discovery.cache_ttl_seconds":      30,
		"log.env":                          "production",
		"log.level":                        "info",
	}
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := sharedcfg.Read(path, defaults(), &cfg); err != nil {
		return nil, err
	}
	if cfg.JWT.Secret == "" && cfg.JWT.PublicKeyPath == "" {
		return nil, errors.New("jwt.secret or jwt.public_key_path is required")
	}
	if cfg.Discovery.ConsulAddr == "" && len(cfg.Discovery.Services) == 0 {
		return nil, errors.New("discovery.services or discovery.consul_addr must be set")
	}
	return &cfg, nil
}
