package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func write(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	p := write(t, `
jwt:
  secret: s3cret
discovery:
  services:
    post-service: http://posts:3002
`)
	t.Setenv("RATE_LIMIT_REQUESTS", "5")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.RateLimit.Window() != 15*time.Minute {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.RateLimit.Requests != 5 {
		t.Errorf("expected env override, got %d", cfg.RateLimit.Requests)
	}
	if cfg.Discovery.Services["post-service"] != "http://posts:3002" {
		t.Errorf("unexpected services %v", cfg.Discovery.Services)
	}
	if cfg.CircuitBreaker.MaxFailures != 5 {
		t.Errorf("expected 5 max failures, got %d", cfg.CircuitBreaker.MaxFailures)
	}
}

func TestLoad_Requirements(t *testing.T) {
	if _, err := Load(write(t, "discovery:\n  consul_addr: consul:8500\n")); err == nil {
		t.Error("expected error without jwt settings")
	}
	if _, err := Load(write(t, "jwt:\n  secret: x\n")); err == nil {
		t.Error("expected error without discovery settings")
	}
}
