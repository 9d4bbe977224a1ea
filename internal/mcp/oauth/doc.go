// Package oauth implements the authentication boundary of the gdrive MCP server.
//
// The package is built from small collaborators:
//
//   - DiscoveryClient fetches RFC 8414 authorization server metadata and
//     CachingDiscoverer shares it across requests with a TTL and single-flight
//   - Validator verifies bearer JWTs against the issuer's JWKS and projects
//     the claims into an AuthContext
//   - Exchanger performs RFC 8693 token exchange to mint downstream credentials
//   - NewProtectedResourceMetadata and AuthorizationServerMetadataHandler
//     publish discovery documents for unauthenticated clients
//   - Gate routes requests and is the sole enforcement point for bearer tokens
//
// Authentication is pluggable through the Authenticator interface. The
// remote-JWT variant lives here; the local credential file variant lives in
// internal/google.
//
// Tokens are never logged. Use logging.SanitizeToken when a token has to be
// referenced in a log line.
package oauth
