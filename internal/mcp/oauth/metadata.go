package oauth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/teemow/gdrive-mcp/internal/logging"
)

// metadataFetchFailure is the body returned when the upstream metadata cannot be proxied
const metadataFetchFailure = "Failed to fetch authorization server metadata"

// ProtectedResourceMetadata is the RFC 9728 document published for the MCP endpoint
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
}

// MetadataPublisher answers the well-known metadata requests of this host
type MetadataPublisher struct {
	mcpPath    string
	issuer     string
	discoverer Discoverer
	baseURL    *url.URL
	trustProxy bool
	logger     *slog.Logger
}

// PublisherConfig configures a MetadataPublisher
type PublisherConfig struct {
	// MCPPath is the protected tool-invocation path
	MCPPath string

	// Issuer is the authorization server whose metadata is proxied
	Issuer string

	// BaseURL overrides the scheme and host derived from requests
	BaseURL string

	// TrustProxy honours X-Forwarded-Proto and X-Forwarded-Host
	TrustProxy bool
}

// NewMetadataPublisher creates a MetadataPublisher
func NewMetadataPublisher(cfg PublisherConfig, discoverer Discoverer, logger *slog.Logger) (*MetadataPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mcpPath := cfg.MCPPath
	if mcpPath == "" {
		mcpPath = DefaultMCPPath
	}

	p := &MetadataPublisher{
		mcpPath:    mcpPath,
		issuer:     cfg.Issuer,
		discoverer: discoverer,
		trustProxy: cfg.TrustProxy,
		logger:     logger,
	}

	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		p.baseURL = &url.URL{Scheme: u.Scheme, Host: u.Host}
	}
	return p, nil
}

// ProtectedResourcePath is the well-known path of the protected resource metadata
func (p *MetadataPublisher) ProtectedResourcePath() string {
	return ProtectedResourceMetadataPrefix + p.mcpPath
}

// ProtectedResourceMetadata builds the metadata document for the host r was sent to
func (p *MetadataPublisher) ProtectedResourceMetadata(r *http.Request) ProtectedResourceMetadata {
	origin := p.origin(r)
	return ProtectedResourceMetadata{
		Resource:             withPath(origin, p.mcpPath),
		AuthorizationServers: []string{withPath(origin, "/")},
	}
}

// ResourceURL is the absolute URL of the protected MCP endpoint on this host
func (p *MetadataPublisher) ResourceURL(r *http.Request) string {
	return withPath(p.origin(r), p.mcpPath)
}

// ResourceMetadataURL prefixes the protected resource well-known path onto
// the full URL of the current request, query included
func (p *MetadataPublisher) ResourceMetadataURL(r *http.Request) string {
	current := p.origin(r)
	current.Path = r.URL.Path
	u := withWellKnownPrefix(current, WellKnownProtectedResource)
	u.RawQuery = r.URL.RawQuery
	return u.String()
}

// ServeProtectedResourceMetadata writes the RFC 9728 document
func (p *MetadataPublisher) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p.ProtectedResourceMetadata(r)); err != nil {
		p.logger.Error("Failed to write protected resource metadata", logging.Err(err))
	}
}

// ServeAuthorizationServerMetadata proxies the issuer's discovery document verbatim
func (p *MetadataPublisher) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	doc, err := p.discoverer.Discover(r.Context(), p.issuer)
	if err != nil {
		p.logger.Error("Failed to fetch authorization server metadata",
			logging.Issuer(p.issuer),
			logging.Err(err))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, metadataFetchFailure)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(doc.Raw); err != nil {
		p.logger.Error("Failed to write authorization server metadata", logging.Err(err))
	}
}

// origin returns scheme://host for the request, honouring the configured base URL
func (p *MetadataPublisher) origin(r *http.Request) *url.URL {
	if p.baseURL != nil {
		out := *p.baseURL
		return &out
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host

	if p.trustProxy {
		if proto := firstHeaderValue(r, "X-Forwarded-Proto"); proto != "" {
			scheme = strings.ToLower(proto)
		}
		if fwdHost := firstHeaderValue(r, "X-Forwarded-Host"); fwdHost != "" {
			host = fwdHost
		}
	}

	return &url.URL{Scheme: scheme, Host: host}
}

func withPath(origin *url.URL, path string) string {
	out := *origin
	out.Path = path
	return out.String()
}

// firstHeaderValue returns the first entry of a comma separated header
func firstHeaderValue(r *http.Request, name string) string {
	v := r.Header.Get(name)
	if v == "" {
		return ""
	}
	return strings.TrimSpace(strings.Split(v, ",")[0])
}
