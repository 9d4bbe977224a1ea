package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/logging"
)

// DiscoveryDocument holds the authorization server metadata fields the
// server depends on. Raw keeps the verbatim document for proxying.
type DiscoveryDocument struct {
	Issuer        string          `json:"issuer"`
	TokenEndpoint string          `json:"token_endpoint"`
	JWKSURI       string          `json:"jwks_uri"`
	Raw           json.RawMessage `json:"-"`
}

// Discoverer resolves the discovery document of an issuer
type Discoverer interface {
	Discover(ctx context.Context, issuer string) (*DiscoveryDocument, error)
}

// DiscoveryClient fetches RFC 8414 metadata directly from the issuer on every call
type DiscoveryClient struct {
	opts clientOptions
}

// NewDiscoveryClient creates a DiscoveryClient
func NewDiscoveryClient(opts ...ClientOption) *DiscoveryClient {
	return &DiscoveryClient{opts: newClientOptions(opts)}
}

// Discover implements Discoverer
func (c *DiscoveryClient) Discover(ctx context.Context, issuer string) (*DiscoveryDocument, error) {
	return c.FetchDiscovery(ctx, issuer)
}

// FetchDiscovery retrieves and parses the authorization server metadata of issuer.
// It does not retry.
func (c *DiscoveryClient) FetchDiscovery(ctx context.Context, issuer string) (*DiscoveryDocument, error) {
	metadataURL, err := WellKnownURL(issuer, WellKnownAuthorizationServer)
	if err != nil {
		return nil, &DiscoveryError{Issuer: issuer, URL: issuer, Err: err}
	}

	ctx, span := instrumentation.StartSpan(ctx, "oauth.discovery",
		attribute.String(instrumentation.SpanAttrIssuer, issuer))
	defer span.End()

	doc, err := c.fetch(ctx, issuer, metadataURL)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.opts.metrics.RecordDiscoveryFetch(ctx, instrumentation.StatusError, instrumentation.SourceUpstream)
		c.opts.logger.Warn("Discovery fetch failed",
			logging.Issuer(issuer),
			logging.Err(err))
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	c.opts.metrics.RecordDiscoveryFetch(ctx, instrumentation.StatusSuccess, instrumentation.SourceUpstream)
	c.opts.logger.Debug("Fetched discovery document",
		logging.Issuer(issuer),
		slog.String("jwks_uri", doc.JWKSURI))
	return doc, nil
}

func (c *DiscoveryClient) fetch(ctx context.Context, issuer, metadataURL string) (*DiscoveryDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, &DiscoveryError{Issuer: issuer, URL: metadataURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return nil, &DiscoveryError{Issuer: issuer, URL: metadataURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DiscoveryError{
			Issuer:     issuer,
			URL:        metadataURL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &DiscoveryError{Issuer: issuer, URL: metadataURL, StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
	}

	return ParseDiscoveryDocument(metadataURL, body)
}

// ParseDiscoveryDocument decodes a metadata document and checks that
// issuer, token_endpoint and jwks_uri are present
func ParseDiscoveryDocument(source string, body []byte) (*DiscoveryDocument, error) {
	var doc DiscoveryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &MalformedDiscoveryError{URL: source, Err: err}
	}

	var missing []string
	if doc.Issuer == "" {
		missing = append(missing, "issuer")
	}
	if doc.TokenEndpoint == "" {
		missing = append(missing, "token_endpoint")
	}
	if doc.JWKSURI == "" {
		missing = append(missing, "jwks_uri")
	}
	if len(missing) > 0 {
		return nil, &MalformedDiscoveryError{URL: source, Missing: missing}
	}

	doc.Raw = append(json.RawMessage(nil), body...)
	return &doc, nil
}

// WellKnownURL inserts /.well-known/<name> in front of the issuer's path,
// as described in RFC 8414 section 3.1.
//
//	WellKnownURL("https://as.example.com/tenant1", "oauth-authorization-server")
//	// https://as.example.com/.well-known/oauth-authorization-server/tenant1
func WellKnownURL(issuer, name string) (string, error) {
	u, err := url.Parse(issuer)
	if err != nil {
		return "", fmt.Errorf("invalid issuer URL %q: %w", issuer, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid issuer URL %q: scheme and host are required", issuer)
	}
	return withWellKnownPrefix(u, name).String(), nil
}

// withWellKnownPrefix returns a copy of u with /.well-known/<name> prepended to its path
func withWellKnownPrefix(u *url.URL, name string) *url.URL {
	out := *u
	out.Path = "/.well-known/" + name + strings.TrimSuffix(u.Path, "/")
	out.RawPath = ""
	out.RawQuery = ""
	out.Fragment = ""
	return &out
}
