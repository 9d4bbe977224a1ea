package oauth

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/gdrive-mcp/internal/logging"
)

// AuditEventType represents the type of gate audit event
type AuditEventType string

const (
	AuditEventAuthSuccess       AuditEventType = "auth_success"
	AuditEventAuthFailure       AuditEventType = "auth_failure"
	AuditEventMissingToken      AuditEventType = "missing_token"
	AuditEventMalformedHeader   AuditEventType = "malformed_authorization"
	AuditEventRateLimitExceeded AuditEventType = "rate_limit_exceeded"
)

// AuditEvent is a security relevant decision taken by the gate
type AuditEvent struct {
	Timestamp time.Time
	EventType AuditEventType

	// SubjectHash is the anonymized token subject
	SubjectHash string
	ClientID    string
	IPAddress   string
	RequestID   string
	Success     bool

	// Kind is the validation failure kind, empty on success
	Kind ValidationErrorKind

	ErrorMessage string
}

// AuditLogger writes gate decisions as structured log records.
// Subjects are hashed and tokens are never included.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger}
}

// LogEvent logs an audit event. Failures are logged at warn level.
func (a *AuditLogger) LogEvent(ctx context.Context, event AuditEvent) {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_type", string(event.EventType)),
		slog.Time("timestamp", event.Timestamp),
		slog.Bool("success", event.Success),
	}
	if event.SubjectHash != "" {
		attrs = append(attrs, slog.String(logging.KeySubjectHash, event.SubjectHash))
	}
	if event.ClientID != "" {
		attrs = append(attrs, slog.String(logging.KeyClientID, event.ClientID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String(logging.KeyRequestID, event.RequestID))
	}
	if event.Kind != "" {
		attrs = append(attrs, slog.String("kind", string(event.Kind)))
	}
	if event.ErrorMessage != "" {
		attrs = append(attrs, slog.String(logging.KeyError, event.ErrorMessage))
	}

	a.logger.LogAttrs(ctx, level, "audit_event", attrs...)
}

// LogAuthSuccess logs an accepted bearer token
func (a *AuditLogger) LogAuthSuccess(ctx context.Context, ac *AuthContext, ipAddress, requestID string) {
	a.LogEvent(ctx, AuditEvent{
		Timestamp:   time.Now(),
		EventType:   AuditEventAuthSuccess,
		SubjectHash: logging.AnonymizeSubject(ac.SubjectID),
		ClientID:    ac.ClientID,
		IPAddress:   ipAddress,
		RequestID:   requestID,
		Success:     true,
	})
}

// LogAuthFailure logs a rejected request, classifying err
func (a *AuditLogger) LogAuthFailure(ctx context.Context, err error, ipAddress, requestID string) {
	event := AuditEvent{
		Timestamp:    time.Now(),
		EventType:    AuditEventAuthFailure,
		IPAddress:    ipAddress,
		RequestID:    requestID,
		Kind:         ValidationKind(err),
		ErrorMessage: err.Error(),
	}
	switch {
	case isMissingToken(err):
		event.EventType = AuditEventMissingToken
	case isMalformedHeader(err):
		event.EventType = AuditEventMalformedHeader
	}
	a.LogEvent(ctx, event)
}

// LogRateLimitExceeded logs a request refused by the rate limiter
func (a *AuditLogger) LogRateLimitExceeded(ctx context.Context, ipAddress, requestID string) {
	a.LogEvent(ctx, AuditEvent{
		Timestamp:    time.Now(),
		EventType:    AuditEventRateLimitExceeded,
		IPAddress:    ipAddress,
		RequestID:    requestID,
		ErrorMessage: "rate limit exceeded",
	})
}
