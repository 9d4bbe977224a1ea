package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
)

const (
	// DefaultReadHeaderTimeout bounds how long a client may take to send headers
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultIdleTimeout closes idle keep-alive connections
	DefaultIdleTimeout = 120 * time.Second
)

// HTTPServerConfig configures an OAuthHTTPServer
type HTTPServerConfig struct {
	// Addr is the listen address, e.g. ":8080"
	Addr string

	// Stack provides the gate and metadata publisher
	Stack *oauth.Stack

	// Health is optional; when set its endpoints are mounted on the same mux
	Health *HealthChecker

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// OAuthHTTPServer serves the MCP streamable-HTTP transport behind the
// bearer token gate, together with the well-known metadata documents
type OAuthHTTPServer struct {
	addr       string
	mcpPath    string
	handler    http.Handler
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	httpServer *http.Server
}

// NewOAuthHTTPServer creates the HTTP transport for mcpServer
func NewOAuthHTTPServer(mcpServer *mcpserver.MCPServer, cfg HTTPServerConfig) (*OAuthHTTPServer, error) {
	if cfg.Stack == nil {
		return nil, errors.New("auth stack is required for the HTTP transport")
	}
	if baseURL := cfg.Stack.Config.BaseURL; baseURL != "" {
		if err := validateHTTPSRequirement(baseURL); err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mcpPath := cfg.Stack.Config.MCPPath
	if mcpPath == "" {
		mcpPath = oauth.DefaultMCPPath
	}

	s := &OAuthHTTPServer{
		addr:    cfg.Addr,
		mcpPath: mcpPath,
		metrics: cfg.Metrics,
		logger:  logger,
	}

	streamable := mcpserver.NewStreamableHTTPServer(mcpServer,
		mcpserver.WithEndpointPath(mcpPath),
		mcpserver.WithStateLess(true),
		mcpserver.WithHTTPContextFunc(authContextFunc),
	)

	mux := http.NewServeMux()
	mux.Handle(mcpPath, postOnly(streamable))
	if cfg.Health != nil {
		cfg.Health.RegisterHealthEndpoints(mux)
	}

	s.handler = oauth.Recover(logger, s.instrumentationMiddleware(cfg.Stack.Gate.Middleware(mux)))
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		// WriteTimeout stays zero so streamed responses are not cut off
	}
	return s, nil
}

// authContextFunc carries the caller resolved by the gate into the tool context
func authContextFunc(ctx context.Context, r *http.Request) context.Context {
	if ac, ok := oauth.AuthContextFromContext(r.Context()); ok {
		return oauth.WithAuthContext(ctx, ac)
	}
	return ctx
}

// postOnly rejects the session stream and termination methods, which this
// stateless transport does not offer
func postOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodDelete:
			oauth.MethodNotAllowed(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// Handler returns the complete request handler, for tests and embedding
func (s *OAuthHTTPServer) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until Shutdown
func (s *OAuthHTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown
func (s *OAuthHTTPServer) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server",
		"addr", ln.Addr().String(),
		"mcp_path", s.mcpPath)
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server
func (s *OAuthHTTPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// responseWriter captures the status code for metrics
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streamed responses working through the wrapper
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// instrumentationMiddleware records request count and duration per route
func (s *OAuthHTTPServer) instrumentationMiddleware(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, s.routeLabel(r.URL.Path), rw.statusCode, time.Since(start))
	})
}

// routeLabel maps a request path onto a bounded set of metric labels
func (s *OAuthHTTPServer) routeLabel(path string) string {
	switch {
	case path == s.mcpPath:
		return s.mcpPath
	case strings.HasPrefix(path, "/.well-known/"):
		return "/.well-known"
	case path == "/healthz", path == "/readyz", path == "/healthz/detailed":
		return path
	default:
		return "other"
	}
}

// validateHTTPSRequirement allows plain HTTP only for loopback hosts
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return errors.New("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if slices.Contains(oauth.LoopbackAddresses, u.Hostname()) {
			return nil
		}
		return fmt.Errorf("HTTPS is required for non-loopback base URLs (got: %s)", baseURL)
	default:
		return fmt.Errorf("invalid URL scheme %q: must be http (loopback only) or https", u.Scheme)
	}
}
