package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

func testConfig() aws.Config {
	return aws.Config{
		Region: "us-east-1",
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "SECRET", Source: "test"}, nil
		}),
	}
}

func TestDelete_PathStyleEndpoint(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := newS3Store(testConfig(), "media", srv.URL, false)
	if err := s.Delete(context.Background(), "u1/abc_cat.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "DELETE /media/u1/abc_cat.png" {
		t.Errorf("unexpected requests %v", seen)
	}
}

func TestPresignAndPublicURL(t *testing.T) {
	s := newS3Store(testConfig(), "media", "", false)
	u, err := s.PresignURL(context.Background(), "u1/a.png", 10*time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(u, "u1/a.png") || !strings.Contains(u, "X-Amz-Expires=600") {
		t.Errorf("unexpected presigned url %s", u)
	}
	if s.PublicURL("u1/a.png") != "" {
		t.Error("expected no public url for a private bucket")
	}

	pub := newS3Store(testConfig(), "media", "", true)
	if got := pub.PublicURL("u1/a b.png"); got != "https://media.s3.us-east-1.amazonaws.com/u1/a%20b.png" {
		t.Errorf("unexpected public url %s", got)
	}
}
