package server

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
)

const testKeyID = "server-test-key"

// testIssuer serves discovery metadata and a JWKS for one signing key
type testIssuer struct {
	url string
	key *rsa.PrivateKey
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ti := &testIssuer{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":         ti.url,
			"token_endpoint": ti.url + "/token",
			"jwks_uri":       ti.url + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &key.PublicKey,
			KeyID:     testKeyID,
			Algorithm: "RS256",
			Use:       "sig",
		}}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	ti.url = srv.URL
	return ti
}

func (ti *testIssuer) token(t *testing.T, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   ti.url,
		"sub":   subject,
		"azp":   "test-client",
		"scope": "drive",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = testKeyID
	s, err := tok.SignedString(ti.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func (ti *testIssuer) stack(t *testing.T, mutate func(*oauth.Config)) *oauth.Stack {
	t.Helper()
	cfg := oauth.Config{
		Issuer: ti.url,
		Exchange: oauth.ExchangeConfig{
			Issuer:       ti.url,
			ClientID:     "gdrive-mcp",
			ClientSecret: "s3cret",
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	stack, err := oauth.NewStack(cfg)
	if err != nil {
		t.Fatalf("NewStack() error = %v", err)
	}
	t.Cleanup(func() { _ = stack.Close() })
	return stack
}
