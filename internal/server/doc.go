// Package server provides the MCP server context, the HTTP transport behind
// the bearer token gate, health checks and the metrics endpoint.
//
// # Key Components
//
// ServerContext holds the shared dependencies of tool handlers. It never
// caches a Google client: DriveClient and SheetsClient resolve the caller
// (from the gate on HTTP, from the local authenticator on stdio), obtain a
// credential for that caller from a google.CredentialSource and build a
// client for that one call.
//
// OAuthHTTPServer mounts the streamable-HTTP MCP endpoint behind
// oauth.Gate, which also answers:
//   - Protected Resource Metadata (RFC 9728)
//   - Authorization Server Metadata (RFC 8414), proxied from the issuer
//
// GET and DELETE on the MCP path are answered with a JSON-RPC 405 after the
// gate has authenticated the request.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed.
// MetricsServer exposes /metrics on a dedicated port.
package server
