package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
)

// LocalSubject is the subject reported for the local credential file
const LocalSubject = "local"

// LocalAuthenticator authenticates every request as the owner of the local
// credential file. The request itself is ignored and may be nil.
type LocalAuthenticator struct {
	store    *CredentialStore
	clientID string
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	cached   *StoredCredentials
	watching bool
}

// NewLocalAuthenticator creates a LocalAuthenticator. clientID is taken from the OAuth keyfile.
func NewLocalAuthenticator(store *CredentialStore, clientID string, logger *slog.Logger) *LocalAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalAuthenticator{
		store:    store,
		clientID: clientID,
		logger:   logger,
		now:      time.Now,
	}
}

// Authenticate implements oauth.Authenticator
func (a *LocalAuthenticator) Authenticate(ctx context.Context, _ *http.Request) (*oauth.AuthContext, error) {
	creds, err := a.credentials(ctx)
	if err != nil {
		return nil, err
	}

	if creds.Expired(a.now()) {
		return nil, &oauth.TokenValidationError{
			Kind: oauth.KindExpired,
			Err:  fmt.Errorf("stored access token expired at %s", creds.Expiry().Format(time.RFC3339)),
		}
	}

	ac := &oauth.AuthContext{
		RawToken:  creds.AccessToken,
		ClientID:  a.clientID,
		Scopes:    creds.Scopes(),
		SubjectID: LocalSubject,
	}
	if exp := creds.Expiry(); !exp.IsZero() {
		ac.ExpiresAt = exp.Unix()
	}
	return ac, nil
}

func (a *LocalAuthenticator) credentials(ctx context.Context) (*StoredCredentials, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// An expired cached entry is reloaded in case a refresh was missed by the watcher.
	if a.watching && a.cached != nil && !a.cached.Expired(a.now()) {
		return a.cached, nil
	}

	creds, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if a.watching {
		a.cached = creds
	}
	return creds, nil
}

func (a *LocalAuthenticator) invalidate() {
	a.mu.Lock()
	a.cached = nil
	a.mu.Unlock()
}

// Watch starts watching the credentials directory and drops the cached file
// whenever it changes. It returns once the watcher is running; the watcher
// stops when ctx is done.
func (a *LocalAuthenticator) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create credentials watcher: %w", err)
	}
	if err := w.Add(a.store.Dir()); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", a.store.Dir(), err)
	}

	a.mu.Lock()
	a.watching = true
	a.cached = nil
	a.mu.Unlock()

	go func() {
		defer func() {
			w.Close()
			a.mu.Lock()
			a.watching = false
			a.cached = nil
			a.mu.Unlock()
		}()

		target := filepath.Clean(a.store.Path())
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == target {
					a.logger.Debug("Credentials file changed", slog.String("op", ev.Op.String()))
					a.invalidate()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				a.logger.Warn("Credentials watcher error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}
