package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

const testKeyID = "test-key"

// fakeIssuer is an authorization server serving RFC 8414 metadata, a JWKS
// and a token endpoint
type fakeIssuer struct {
	srv    *httptest.Server
	issuer string
	key    *rsa.PrivateKey

	// metadataIssuer overrides the issuer field of the discovery document
	metadataIssuer string

	discoveryHits atomic.Int32
	exchangeHits  atomic.Int32

	mu           sync.Mutex
	lastForm     url.Values
	tokenHandler http.HandlerFunc
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	f := &fakeIssuer{key: generateKey(t)}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		f.discoveryHits.Add(1)
		iss := f.issuer
		if f.metadataIssuer != "" {
			iss = f.metadataIssuer
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 iss,
			"token_endpoint":         f.issuer + "/token",
			"jwks_uri":               f.issuer + "/jwks",
			"authorization_endpoint": f.issuer + "/authorize",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &f.key.PublicKey,
			KeyID:     testKeyID,
			Algorithm: "RS256",
			Use:       "sig",
		}}})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.exchangeHits.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.lastForm = r.PostForm
		handler := f.tokenHandler
		f.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":      "ya29.google-token",
			"issued_token_type": TokenTypeAccessToken,
			"token_type":        "Bearer",
			"expires_in":        3600,
			"scope":             "https://www.googleapis.com/auth/drive.readonly",
		})
	})

	f.srv = httptest.NewServer(mux)
	f.issuer = f.srv.URL
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIssuer) setTokenHandler(h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenHandler = h
}

func (f *fakeIssuer) form() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForm
}

// sign issues a token signed with the published key
func (f *fakeIssuer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	return signToken(t, f.key, claims)
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// stubDiscoverer returns a fixed document or error and counts calls
type stubDiscoverer struct {
	doc   *DiscoveryDocument
	err   error
	calls atomic.Int32
}

func (s *stubDiscoverer) Discover(_ context.Context, _ string) (*DiscoveryDocument, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.doc, nil
}
