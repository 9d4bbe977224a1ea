package google

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
)

// CredentialSource yields the Google access token for one tool call.
// The returned token is used for a single client and never stored globally.
type CredentialSource interface {
	Credential(ctx context.Context, ac *oauth.AuthContext) (*oauth2.Token, error)
}

// ExchangeSource trades the caller's bearer token for a Google token via RFC 8693
type ExchangeSource struct {
	exchanger oauth.TokenExchanger
	audience  string
}

// NewExchangeSource creates an ExchangeSource. An empty audience uses oidc_google.
func NewExchangeSource(exchanger oauth.TokenExchanger, audience string) *ExchangeSource {
	if audience == "" {
		audience = oauth.DefaultExchangeAudience
	}
	return &ExchangeSource{exchanger: exchanger, audience: audience}
}

// Credential implements CredentialSource
func (s *ExchangeSource) Credential(ctx context.Context, ac *oauth.AuthContext) (*oauth2.Token, error) {
	if ac == nil || ac.RawToken == "" {
		return nil, oauth.ErrMissingToken
	}
	cred, err := s.exchanger.Exchange(ctx, ac.RawToken, s.audience)
	if err != nil {
		return nil, err
	}
	return cred.OAuth2Token(), nil
}

// LocalSource reads the access token from the local credential file
type LocalSource struct {
	store *CredentialStore
}

// NewLocalSource creates a LocalSource
func NewLocalSource(store *CredentialStore) *LocalSource {
	return &LocalSource{store: store}
}

// Credential implements CredentialSource. ac is ignored: the file is the
// only identity in local mode.
func (s *LocalSource) Credential(ctx context.Context, _ *oauth.AuthContext) (*oauth2.Token, error) {
	creds, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	tok := creds.Token()
	// The refresh token stays on disk; API clients only get the access token.
	tok.RefreshToken = ""
	if !tok.Valid() {
		return nil, ErrCredentialsExpired
	}
	return tok, nil
}
