package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teemow/gdrive-mcp/internal/drive"
	"github.com/teemow/gdrive-mcp/internal/google"
	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
	"github.com/teemow/gdrive-mcp/internal/sheets"
)

// ServerContext holds the dependencies shared by all tool handlers.
// It carries no Google client: every call builds its own from the caller's credential.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	credentials   google.CredentialSource
	authenticator oauth.Authenticator

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	logger      *slog.Logger

	driveEndpoint  string
	sheetsEndpoint string

	mu       sync.RWMutex
	shutdown bool
}

// Option configures a ServerContext
type Option func(*ServerContext)

// WithAuthenticator sets the authenticator used when a call carries no
// AuthContext, as on the stdio transport
func WithAuthenticator(a oauth.Authenticator) Option {
	return func(sc *ServerContext) { sc.authenticator = a }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger sets the tool audit logger
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) { sc.auditLogger = a }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(sc *ServerContext) {
		if l != nil {
			sc.logger = l
		}
	}
}

// WithGoogleEndpoints overrides the Drive and Sheets API base URLs
func WithGoogleEndpoints(driveEndpoint, sheetsEndpoint string) Option {
	return func(sc *ServerContext) {
		sc.driveEndpoint = driveEndpoint
		sc.sheetsEndpoint = sheetsEndpoint
	}
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, credentials google.CredentialSource, opts ...Option) (*ServerContext, error) {
	if credentials == nil {
		return nil, errors.New("credential source is required")
	}
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		credentials: credentials,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Logger returns the server logger
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder, which may be nil
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the tool audit logger, which may be nil
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// AuthContext returns the caller of the current tool call. The gate places
// it in the request context; otherwise the configured authenticator is asked.
func (sc *ServerContext) AuthContext(ctx context.Context) (*oauth.AuthContext, error) {
	if ac, ok := oauth.AuthContextFromContext(ctx); ok {
		return ac, nil
	}
	if sc.authenticator == nil {
		return nil, oauth.ErrMissingToken
	}
	return sc.authenticator.Authenticate(ctx, nil)
}

// DriveClient builds a Drive client for the caller of this call
func (sc *ServerContext) DriveClient(ctx context.Context) (*drive.Client, error) {
	ac, err := sc.AuthContext(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := sc.credentials.Credential(ctx, ac)
	if err != nil {
		return nil, err
	}
	opts := []drive.Option{drive.WithMetrics(sc.metrics)}
	if sc.driveEndpoint != "" {
		opts = append(opts, drive.WithEndpoint(sc.driveEndpoint))
	}
	return drive.NewClient(ctx, tok, opts...)
}

// SheetsClient builds a Sheets client for the caller of this call
func (sc *ServerContext) SheetsClient(ctx context.Context) (*sheets.Client, error) {
	ac, err := sc.AuthContext(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := sc.credentials.Credential(ctx, ac)
	if err != nil {
		return nil, err
	}
	opts := []sheets.Option{sheets.WithMetrics(sc.metrics)}
	if sc.sheetsEndpoint != "" {
		opts = append(opts, sheets.WithEndpoint(sc.sheetsEndpoint))
	}
	return sheets.NewClient(ctx, tok, opts...)
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
