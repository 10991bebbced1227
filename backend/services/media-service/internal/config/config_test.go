package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	body := `
aws:
  endpoint: http://minio:9000
s3:
  public_read: true
`
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AWS_BUCKET", "uploads")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 3003 || cfg.Mongo.Collection != "medias" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.AWS.Endpoint != "http://minio:9000" || !cfg.S3.PublicRead {
		t.Errorf("file values not applied: %+v %+v", cfg.AWS, cfg.S3)
	}
	if cfg.AWS.Bucket != "uploads" {
		t.Errorf("expected env override for aws.bucket, got %s", cfg.AWS.Bucket)
	}
	if cfg.PresignTTL() != 10*time.Minute {
		t.Errorf("expected 10m presign ttl, got %s", cfg.PresignTTL())
	}
}
