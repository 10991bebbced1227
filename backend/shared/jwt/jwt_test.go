package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestVerifier_HS256(t *testing.T) {
	v, err := NewVerifier("", "s3cret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	tok := sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{
		"userId": "u1",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	claims, err := v.VerifyToken(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id, _ := UserID(claims); id != "u1" {
		t.Errorf("expected u1, got %q", id)
	}

	expired := sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{
		"userId": "u1",
		"exp":    time.Now().Add(-time.Minute).Unix(),
	})
	if _, err := v.VerifyToken(expired); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for expired token, got %v", err)
	}

	forged := sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"userId": "u1"})
	if _, err := v.VerifyToken(forged); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for wrong secret, got %v", err)
	}
}

func TestVerifier_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "pub.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	v, err := NewVerifier(path, "")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	tok := sign(t, jwt.SigningMethodRS256, key, jwt.MapClaims{"sub": "u2"})
	claims, err := v.VerifyToken(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id, _ := UserID(claims); id != "u2" {
		t.Errorf("expected u2, got %q", id)
	}

	// an HS256 token must not pass when only the RSA key is configured
	hs := sign(t, jwt.SigningMethodHS256, []byte("whatever"), jwt.MapClaims{"sub": "u2"})
	if _, err := v.VerifyToken(hs); err == nil {
		t.Error("expected HS256 token to be rejected")
	}
}

func TestNewVerifier_RequiresKey(t *testing.T) {
	if _, err := NewVerifier("", ""); err == nil {
		t.Error("expected error without key or secret")
	}
}

func TestUserID_Precedence(t *testing.T) {
	id, ok := UserID(jwt.MapClaims{"sub": "s", "user_id": "snake", "userId": "camel"})
	if !ok || id != "camel" {
		t.Errorf("expected camel, got %q", id)
	}
	if _, ok := UserID(jwt.MapClaims{"sub": 42}); ok {
		t.Error("expected non-string sub to be ignored")
	}
}
