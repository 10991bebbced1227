package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

// Verifier checks access tokens issued by the identity service. It accepts RS256 when a
// public key is configured and HS256 when a shared secret is.
type Verifier struct {
	pub    *rsa.PublicKey
	secret []byte
}

func NewVerifier(pubKeyPath, secret string) (*Verifier, error) {
	v := &Verifier{}
	if pubKeyPath != "" {
		b, err := os.ReadFile(pubKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		v.pub = pub
	}
	if secret != "" {
		v.secret = []byte(secret)
	}
	if v.pub == nil && v.secret == nil {
		return nil, errors.New("jwt: either a public key or a secret is required")
	}
	return v, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (interface{}, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodRSA:
		if v.pub != nil {
			return v.pub, nil
		}
	case *jwt.SigningMethodHMAC:
		if v.secret != nil {
			return v.secret, nil
		}
	}
	return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
}

// VerifyToken validates signature and expiry and returns the claims.
func (v *Verifier) VerifyToken(tokenStr string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.keyFunc,
		jwt.WithValidMethods([]string{"RS256", "HS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
	}
	return claims, nil
}

// UserID returns the caller id, preferring userId, then user_id, then sub.
func UserID(claims jwt.MapClaims) (string, bool) {
	for _, k := range []string{"userId", "user_id", "sub"} {
		if s, ok := GetStringClaim(claims, k); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func GetStringClaim(claims jwt.MapClaims, key string) (string, bool) {
	if v, ok := claims[key]; ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}
