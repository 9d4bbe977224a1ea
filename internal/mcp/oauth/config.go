package oauth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
)

// Config holds the authentication boundary configuration
// Structured using composition for better organization
type Config struct {
	// MCPPath is the tool-invocation path guarded by the gate (default: /mcp)
	MCPPath string

	// Issuer is the authorization server that issues bearer tokens for this
	// resource server. Its metadata is also proxied to clients.
	Issuer string

	// BaseURL is the public base URL of this server (optional).
	// When empty, scheme and host are derived from each request.
	BaseURL string

	// Exchange identifies this service at the upstream issuer used for token exchange
	Exchange ExchangeConfig

	// Audience is requested when exchanging tokens for Google credentials
	// Default: oidc_google
	Audience string

	// FetchTimeout bounds each outbound discovery, JWKS or exchange request
	// Default: 5 seconds
	FetchTimeout time.Duration

	// Discovery cache settings
	Discovery DiscoveryCacheConfig

	// ExchangeCache reuses exchanged credentials per subject token and audience
	// until shortly before they expire. Default: false
	ExchangeCache bool

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// AllowedAlgorithms restricts the JWS algorithms accepted for bearer tokens
	AllowedAlgorithms []string

	// Leeway is the clock skew tolerance for exp validation
	Leeway time.Duration

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// HTTPClient is used for every outbound request (optional)
	HTTPClient *http.Client

	// Metrics records authentication metrics (optional)
	Metrics *instrumentation.Metrics
}

// DiscoveryCacheConfig selects the discovery document cache backend
type DiscoveryCacheConfig struct {
	// TTL is how long documents are reused. Default: 15 minutes
	TTL time.Duration

	// Backend is "memory" (default) or "redis"
	Backend string

	// RedisURL is required for the redis backend
	RedisURL string
}

// RateLimitConfig holds rate limiting configuration for the MCP path
type RateLimitConfig struct {
	// Rate is the number of requests per second allowed per IP (0 = no limit)
	Rate float64

	// Burst is the maximum burst size allowed per IP
	Burst int

	// TrustProxy indicates whether to trust X-Forwarded-* headers
	// Only set to true if the server is behind a trusted proxy
	TrustProxy bool
}

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Validate checks the configuration for the remote JWT mode
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("issuer is required (MCP_AUTH_ISSUER)")
	}
	if err := validateAbsoluteURL("issuer", c.Issuer); err != nil {
		return err
	}
	if c.Exchange.Issuer == "" {
		return errors.New("upstream issuer is required (UPSTREAM_AUTH_ISSUER)")
	}
	if err := validateAbsoluteURL("upstream issuer", c.Exchange.Issuer); err != nil {
		return err
	}
	if c.Exchange.ClientID == "" || c.Exchange.ClientSecret == "" {
		return errors.New("upstream client credentials are required (UPSTREAM_CLIENT_ID, UPSTREAM_CLIENT_SECRET)")
	}
	if c.BaseURL != "" {
		if err := validateAbsoluteURL("base URL", c.BaseURL); err != nil {
			return err
		}
	}
	switch c.Discovery.Backend {
	case "", CacheBackendMemory:
	case CacheBackendRedis:
		if c.Discovery.RedisURL == "" {
			return errors.New("redis URL is required for the redis discovery cache (REDIS_URL)")
		}
	default:
		return fmt.Errorf("invalid discovery cache backend %q, must be one of: memory, redis", c.Discovery.Backend)
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate limit values must not be negative")
	}
	return nil
}

// applyDefaults fills unset fields
func (c *Config) applyDefaults() {
	if c.MCPPath == "" {
		c.MCPPath = DefaultMCPPath
	}
	if c.Audience == "" {
		c.Audience = DefaultExchangeAudience
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.Discovery.TTL <= 0 {
		c.Discovery.TTL = DefaultDiscoveryCacheTTL
	}
	if c.Discovery.Backend == "" {
		c.Discovery.Backend = CacheBackendMemory
	}
	if len(c.AllowedAlgorithms) == 0 {
		c.AllowedAlgorithms = DefaultAllowedAlgorithms
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = DefaultRateLimitBurst
	}
}

func validateAbsoluteURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s %q: must be an absolute URL", name, raw)
	}
	return nil
}
