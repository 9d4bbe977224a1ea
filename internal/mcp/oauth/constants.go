package oauth

import "time"

// Well-known metadata paths
const (
	// WellKnownAuthorizationServer is the RFC 8414 metadata document name
	WellKnownAuthorizationServer = "oauth-authorization-server"

	// WellKnownProtectedResource is the RFC 9728 metadata document name
	WellKnownProtectedResource = "oauth-protected-resource"

	// AuthorizationServerMetadataPath is the fixed path of the proxied
	// authorization server metadata on this host
	AuthorizationServerMetadataPath = "/.well-known/" + WellKnownAuthorizationServer

	// ProtectedResourceMetadataPrefix is prepended to the MCP path to form
	// the protected resource metadata path
	ProtectedResourceMetadataPrefix = "/.well-known/" + WellKnownProtectedResource

	// DefaultMCPPath is the tool-invocation endpoint guarded by the gate
	DefaultMCPPath = "/mcp"
)

// RFC 8693 token exchange parameters
const (
	// GrantTypeTokenExchange is the grant type for token exchange requests
	GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"

	// TokenTypeAccessToken is the subject token type sent with every exchange
	TokenTypeAccessToken = "urn:ietf:params:oauth:token-type:access_token"

	// DefaultExchangeAudience is the audience requested for Google credentials
	DefaultExchangeAudience = "oidc_google"
)

// Outbound request limits and cache lifetimes
const (
	// DefaultFetchTimeout bounds every discovery, JWKS and exchange request
	DefaultFetchTimeout = 5 * time.Second

	// DefaultDiscoveryCacheTTL is how long a discovery document is reused
	DefaultDiscoveryCacheTTL = 15 * time.Minute

	// ExchangeExpiryMargin is subtracted from an exchanged credential's
	// lifetime before it is dropped from the exchange cache
	ExchangeExpiryMargin = 30 * time.Second

	// maxResponseBodySize caps upstream metadata and token responses (1 MiB)
	maxResponseBodySize = 1 << 20

	// maxErrorBodySize caps the response body surfaced in exchange errors
	maxErrorBodySize = 4 << 10
)

// Rate limiting defaults for the gate
const (
	// DefaultRateLimitRate is the default requests per second per client IP
	DefaultRateLimitRate = 10

	// DefaultRateLimitBurst is the default burst size per client IP
	DefaultRateLimitBurst = 20

	// DefaultRateLimitCleanupInterval is how often idle limiters are evicted
	DefaultRateLimitCleanupInterval = 5 * time.Minute

	// InactiveLimiterCleanupWindow is the idle time after which a limiter is removed
	InactiveLimiterCleanupWindow = 10 * time.Minute
)

// DefaultAllowedAlgorithms are the JWS algorithms accepted for bearer tokens
var DefaultAllowedAlgorithms = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "PS256"}

// LoopbackAddresses lists hosts for which plain HTTP is acceptable
var LoopbackAddresses = []string{"localhost", "127.0.0.1", "::1", "[::1]"}
