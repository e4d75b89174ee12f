package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/genresorter/api/internal/config"
)

const testKID = "test-key"

type oidcServer struct {
	*httptest.Server
	key *rsa.PrivateKey
}

// newOIDCServer serves a discovery document and a one-key JWKS.
func newOIDCServer(t *testing.T) *oidcServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	s := &oidcServer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   s.URL,
			"jwks_uri": s.URL + "/keys",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": testKID,
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *oidcServer) sign(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	signed, err := token.SignedString(s.key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func newClaims(issuer, subject string, audience ...string) Claims {
	return Claims{
		UserID: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  audience,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestJWKSVerifier(t *testing.T) {
	srv := newOIDCServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := NewJWKSVerifier(ctx, config.JWTConfig{Issuer: srv.URL, Audience: "genresorter"})
	if err != nil {
		t.Fatalf("NewJWKSVerifier: %v", err)
	}

	t.Run("valid token", func(t *testing.T) {
		claims, err := v.Validate(srv.sign(t, newClaims(srv.URL, "user-1", "genresorter")))
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if claims.UserID != "user-1" {
			t.Errorf("UserID = %q, want user-1", claims.UserID)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		if _, err := v.Validate(srv.sign(t, newClaims("https://elsewhere", "user-1", "genresorter"))); err == nil {
			t.Error("expected error for wrong issuer")
		}
	})

	t.Run("wrong audience", func(t *testing.T) {
		if _, err := v.Validate(srv.sign(t, newClaims(srv.URL, "user-1", "other-app"))); err == nil {
			t.Error("expected error for wrong audience")
		}
	})

	t.Run("expired", func(t *testing.T) {
		c := newClaims(srv.URL, "user-1", "genresorter")
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		if _, err := v.Validate(srv.sign(t, c)); err == nil {
			t.Error("expected error for expired token")
		}
	})

	t.Run("hmac token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, newClaims(srv.URL, "user-1", "genresorter"))
		signed, _ := token.SignedString([]byte("secret"))
		if _, err := v.Validate(signed); err == nil {
			t.Error("expected error for HMAC-signed token")
		}
	})
}

func TestJWKSVerifierExplicitURL(t *testing.T) {
	srv := newOIDCServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := NewJWKSVerifier(ctx, config.JWTConfig{Issuer: "https://issuer.example", JWKSURL: srv.URL + "/keys"})
	if err != nil {
		t.Fatalf("NewJWKSVerifier: %v", err)
	}
	if _, err := v.Validate(srv.sign(t, newClaims("https://issuer.example", "user-2"))); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestNewJWKSVerifierRequiresIssuer(t *testing.T) {
	if _, err := NewJWKSVerifier(context.Background(), config.JWTConfig{}); err == nil {
		t.Error("expected error without issuer")
	}
}
