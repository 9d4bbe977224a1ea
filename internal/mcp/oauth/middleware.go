package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/logging"
)

// requestIDContextKey is the key for storing the request id in the request context
const requestIDContextKey contextKey = "request_id"

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// GateConfig configures a Gate
type GateConfig struct {
	Authenticator Authenticator
	Publisher     *MetadataPublisher

	// RateLimiter is optional; nil disables rate limiting
	RateLimiter *RateLimiter

	Audit   *AuditLogger
	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// Gate is the single enforcement point for bearer tokens on the MCP path.
// It also answers the well-known metadata paths and passes everything else through.
type Gate struct {
	authenticator Authenticator
	publisher     *MetadataPublisher
	limiter       *RateLimiter
	audit         *AuditLogger
	logger        *slog.Logger
	metrics       *instrumentation.Metrics
}

// NewGate creates a Gate
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("metadata publisher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := cfg.Audit
	if audit == nil {
		audit = NewAuditLogger(logger)
	}
	return &Gate{
		authenticator: cfg.Authenticator,
		publisher:     cfg.Publisher,
		limiter:       cfg.RateLimiter,
		audit:         audit,
		logger:        logger,
		metrics:       cfg.Metrics,
	}, nil
}

// Middleware routes r by exact path match
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case g.publisher.mcpPath:
			g.checkAuth(w, r, next)
		case g.publisher.ProtectedResourcePath():
			g.publisher.ServeProtectedResourceMetadata(w, r)
		case AuthorizationServerMetadataPath:
			g.publisher.ServeAuthorizationServerMetadata(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (g *Gate) checkAuth(w http.ResponseWriter, r *http.Request, next http.Handler) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)

	ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
	ip := clientIP(r, g.limiter != nil && g.limiter.trustProxy)

	if g.limiter != nil && !g.limiter.Allow(ip) {
		g.audit.LogRateLimitExceeded(ctx, ip, requestID)
		w.Header().Set("Retry-After", "1")
		WriteJSONRPCError(w, http.StatusTooManyRequests, CodeServerError, "Too many requests.")
		return
	}

	ac, err := g.authenticator.Authenticate(ctx, r.WithContext(ctx))
	if err != nil {
		g.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		g.logger.Warn("Rejected request",
			slog.String(logging.KeyRequestID, requestID),
			slog.String("kind", rejectionKind(err)),
			logging.Err(err))
		g.audit.LogAuthFailure(ctx, err, ip, requestID)
		g.reject(w, r, err)
		return
	}

	ac = ac.WithResourceURL(g.publisher.ResourceURL(r))
	g.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	g.audit.LogAuthSuccess(ctx, ac, ip, requestID)

	next.ServeHTTP(w, r.WithContext(WithAuthContext(ctx, ac)))
}

// reject writes a 401 with the challenge pointing at the protected resource metadata
func (g *Gate) reject(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Bearer resource_metadata=%s", g.publisher.ResourceMetadataURL(r)))

	body := ErrorResponse{
		Error:            "invalid_token",
		ErrorDescription: "The access token is invalid or expired",
	}
	switch {
	case isMissingToken(err):
		body = ErrorResponse{Error: "invalid_request", ErrorDescription: "Missing Authorization header"}
	case isMalformedHeader(err):
		body = ErrorResponse{Error: "invalid_request", ErrorDescription: "Authorization header must use the Bearer scheme"}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		g.logger.Error("Failed to write unauthorized response", logging.Err(encErr))
	}
}

// rejectionKind names the reason for logging
func rejectionKind(err error) string {
	switch {
	case isMissingToken(err):
		return "missing_token"
	case isMalformedHeader(err):
		return "malformed_header"
	}
	if kind := ValidationKind(err); kind != "" {
		return string(kind)
	}
	return "unknown"
}

// RequestIDFromContext returns the request id assigned by the gate
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
