package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/logging"
)

// ExchangedCredential is a downstream access token minted by token exchange.
// It belongs to the caller and is never shared between audiences.
type ExchangedCredential struct {
	AccessToken string
	Scope       string
	TokenType   string
	ExpiresAt   time.Time
}

// OAuth2Token converts the credential for use with an oauth2.TokenSource
func (c *ExchangedCredential) OAuth2Token() *oauth2.Token {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken: c.AccessToken,
		TokenType:   tokenType,
		Expiry:      c.ExpiresAt,
	}
}

// String redacts the access token
func (c *ExchangedCredential) String() string {
	return fmt.Sprintf("ExchangedCredential{type=%s scope=%q expires=%s token=%s}",
		c.TokenType, c.Scope, c.ExpiresAt.Format(time.RFC3339), logging.SanitizeToken(c.AccessToken))
}

// TokenExchanger mints a credential for audience from a validated subject token
type TokenExchanger interface {
	Exchange(ctx context.Context, subjectToken, audience string) (*ExchangedCredential, error)
}

// ExchangeConfig identifies this service at the upstream authorization server
type ExchangeConfig struct {
	// Issuer is the upstream authentication issuer whose token endpoint is used
	Issuer       string
	ClientID     string
	ClientSecret string
}

// String redacts the client secret
func (c ExchangeConfig) String() string {
	return fmt.Sprintf("ExchangeConfig{Issuer: %s, ClientID: %s, ClientSecret: <redacted>}", c.Issuer, c.ClientID)
}

// Exchanger performs RFC 8693 token exchange against the upstream issuer.
// Every call results in a fresh POST; see CachingExchanger for reuse.
type Exchanger struct {
	config     ExchangeConfig
	discoverer Discoverer
	opts       clientOptions
	now        func() time.Time
}

// NewExchanger creates an Exchanger
func NewExchanger(config ExchangeConfig, discoverer Discoverer, opts ...ClientOption) *Exchanger {
	return &Exchanger{
		config:     config,
		discoverer: discoverer,
		opts:       newClientOptions(opts),
		now:        time.Now,
	}
}

// exchangeResponse is the RFC 8693 section 2.2.1 success body
type exchangeResponse struct {
	AccessToken     string `json:"access_token"`
	IssuedTokenType string `json:"issued_token_type"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int64  `json:"expires_in"`
	Scope           string `json:"scope"`
}

// Exchange implements TokenExchanger
func (e *Exchanger) Exchange(ctx context.Context, subjectToken, audience string) (*ExchangedCredential, error) {
	ctx, span := instrumentation.StartSpan(ctx, "oauth.exchange",
		attribute.String(instrumentation.SpanAttrIssuer, e.config.Issuer),
		attribute.String(instrumentation.SpanAttrAudience, audience))
	defer span.End()

	start := time.Now()
	cred, err := e.exchange(ctx, subjectToken, audience)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		e.opts.metrics.RecordTokenExchange(ctx, instrumentation.StatusError, time.Since(start))
		e.opts.logger.Warn("Token exchange failed",
			logging.Issuer(e.config.Issuer),
			logging.Audience(audience),
			logging.Err(err))
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	e.opts.metrics.RecordTokenExchange(ctx, instrumentation.StatusSuccess, time.Since(start))
	return cred, nil
}

func (e *Exchanger) exchange(ctx context.Context, subjectToken, audience string) (*ExchangedCredential, error) {
	if subjectToken == "" {
		return nil, &TokenExchangeError{Err: errors.New("subject token is required")}
	}

	doc, err := e.discoverer.Discover(ctx, e.config.Issuer)
	if err != nil {
		return nil, &TokenExchangeError{Err: fmt.Errorf("discovering token endpoint: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, doc.TokenEndpoint,
		strings.NewReader(e.buildForm(subjectToken, audience).Encode()))
	if err != nil {
		return nil, &TokenExchangeError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.opts.httpClient.Do(req)
	if err != nil {
		return nil, &TokenExchangeError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &TokenExchangeError{StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TokenExchangeError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBodySize)}
	}

	var parsed exchangeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &TokenExchangeError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if parsed.AccessToken == "" {
		return nil, &TokenExchangeError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBodySize),
			Err:        errors.New("response contains no access_token"),
		}
	}

	return &ExchangedCredential{
		AccessToken: parsed.AccessToken,
		Scope:       parsed.Scope,
		TokenType:   parsed.TokenType,
		ExpiresAt:   e.now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}, nil
}

func (e *Exchanger) buildForm(subjectToken, audience string) url.Values {
	form := url.Values{}
	form.Set("client_id", e.config.ClientID)
	form.Set("client_secret", e.config.ClientSecret)
	form.Set("audience", audience)
	form.Set("grant_type", GrantTypeTokenExchange)
	form.Set("subject_token", subjectToken)
	form.Set("subject_token_type", TokenTypeAccessToken)
	return form
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
