package google

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/logging"
)

const (
	// DefaultRefreshInterval is how often the refresher checks the credential file
	DefaultRefreshInterval = 10 * time.Minute

	// DefaultRefreshThreshold refreshes tokens expiring within this window
	DefaultRefreshThreshold = 5 * time.Minute

	defaultRefreshTries = 3
)

// ErrNoRefreshToken is returned when a token needs refreshing but the file has no refresh token
var ErrNoRefreshToken = errors.New("stored credentials have no refresh token, run 'gdrive-mcp auth' again")

// RefreshResult describes what a refresh pass did
type RefreshResult string

const (
	RefreshResultRefreshed RefreshResult = "refreshed"
	RefreshResultSkipped   RefreshResult = "skipped"
)

// Refresher keeps the local credential file fresh on a schedule.
// It never starts an interactive login.
type Refresher struct {
	store      *CredentialStore
	config     *oauth2.Config
	interval   time.Duration
	threshold  time.Duration
	tries      uint
	newBackOff func() backoff.BackOff
	logger     logging.Logger
	metrics    *instrumentation.Metrics
	now        func() time.Time
}

// RefresherOption configures a Refresher
type RefresherOption func(*Refresher)

// WithRefreshInterval sets how often the file is checked
func WithRefreshInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRefreshThreshold sets how close to expiry a token is refreshed
func WithRefreshThreshold(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.threshold = d
		}
	}
}

// WithRefreshLogger sets the logger
func WithRefreshLogger(l logging.Logger) RefresherOption {
	return func(r *Refresher) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRefreshMetrics records refresh outcomes
func WithRefreshMetrics(m *instrumentation.Metrics) RefresherOption {
	return func(r *Refresher) { r.metrics = m }
}

// WithRefreshBackOff replaces the retry policy between attempts
func WithRefreshBackOff(fn func() backoff.BackOff) RefresherOption {
	return func(r *Refresher) { r.newBackOff = fn }
}

// NewRefresher creates a Refresher for the credentials in store, refreshed with config
func NewRefresher(store *CredentialStore, config *oauth2.Config, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		store:     store,
		config:    config,
		interval:  DefaultRefreshInterval,
		threshold: DefaultRefreshThreshold,
		tries:     defaultRefreshTries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		logger: logging.NewSlogAdapter(nil),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run refreshes immediately and then every interval until ctx is done
func (r *Refresher) Run(ctx context.Context) {
	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	res, err := r.Refresh(ctx)
	switch {
	case err != nil:
		r.logger.Error("Credential refresh failed", "error", err.Error())
	case res == RefreshResultRefreshed:
		r.logger.Info("Refreshed stored Google credentials")
	default:
		r.logger.Debug("Stored Google credentials still valid")
	}
}

// Refresh refreshes the stored token if it expires within the threshold.
// The file is read and rewritten under one lock.
func (r *Refresher) Refresh(ctx context.Context) (RefreshResult, error) {
	result := RefreshResultSkipped
	err := r.store.Update(ctx, func(current *StoredCredentials) (*StoredCredentials, error) {
		exp := current.Expiry()
		if exp.IsZero() || exp.Sub(r.now()) > r.threshold {
			return nil, nil
		}
		if current.RefreshToken == "" {
			return nil, ErrNoRefreshToken
		}

		tok, err := backoff.Retry(ctx, func() (*oauth2.Token, error) {
			tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
			if err != nil && isPermanentRefreshError(err) {
				return nil, backoff.Permanent(err)
			}
			return tok, err
		}, backoff.WithBackOff(r.newBackOff()), backoff.WithMaxTries(r.tries))
		if err != nil {
			return nil, err
		}

		updated := CredentialsFromToken(tok)
		if updated.RefreshToken == "" {
			updated.RefreshToken = current.RefreshToken
		}
		if updated.Scope == "" {
			updated.Scope = current.Scope
		}
		result = RefreshResultRefreshed
		return updated, nil
	})

	switch {
	case err != nil:
		r.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		return "", err
	case result == RefreshResultRefreshed:
		r.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	default:
		r.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSkipped)
	}
	return result, nil
}

// isPermanentRefreshError reports 4xx answers from the token endpoint, such as a revoked grant
func isPermanentRefreshError(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode >= http.StatusBadRequest && re.Response.StatusCode < http.StatusInternalServerError
	}
	return false
}
