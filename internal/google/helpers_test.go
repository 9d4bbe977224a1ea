package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// fakeGoogleOAuth is a token endpoint answering authorization code and refresh grants
type fakeGoogleOAuth struct {
	srv   *httptest.Server
	hits  atomic.Int32
	fail  atomic.Int32 // status to answer with, 0 for success
	mu    sync.Mutex
	forms []url.Values
}

func newFakeGoogleOAuth(t *testing.T) *fakeGoogleOAuth {
	t.Helper()
	f := &fakeGoogleOAuth{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		_ = r.ParseForm()
		f.mu.Lock()
		f.forms = append(f.forms, r.PostForm)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status := int(f.fail.Load()); status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		body := map[string]any{
			"access_token": "ya29.fresh",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        DriveReadonlyScope + " " + SpreadsheetsScope,
		}
		if r.PostForm.Get("grant_type") == "authorization_code" {
			body["refresh_token"] = "1//refresh"
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGoogleOAuth) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id.apps.googleusercontent.com",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.srv.URL + "/auth",
			TokenURL:  f.srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: DefaultOAuthScopes,
	}
}

func (f *fakeGoogleOAuth) lastForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.forms) == 0 {
		return nil
	}
	return f.forms[len(f.forms)-1]
}

func newTestStore(t *testing.T) *CredentialStore {
	t.Helper()
	store, err := NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCredentialStore() error = %v", err)
	}
	return store
}

func saveCreds(t *testing.T, store *CredentialStore, creds *StoredCredentials) {
	t.Helper()
	if err := store.Save(context.Background(), creds); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func expiringIn(d time.Duration) int64 {
	return time.Now().Add(d).UnixMilli()
}
