package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/gdrive-mcp/internal/logging"
)

// ToolInvocation is one MCP tool call as seen by the audit stream.
//
// SubjectID identifies a person. Operational logs carry only its hash.
type ToolInvocation struct {
	Tool      string
	SubjectID string
	ClientID  string

	Service    string // drive or sheets
	Operation  string // list, get, export, update, read
	ResourceID string // file or spreadsheet id

	Start    time.Time
	Duration time.Duration
	Success  bool
	Error    string

	TraceID string
	SpanID  string
}

// StartToolInvocation begins timing a call and captures the trace context of ctx.
func StartToolInvocation(ctx context.Context, tool, subjectID, clientID string) *ToolInvocation {
	ti := &ToolInvocation{
		Tool:      tool,
		SubjectID: subjectID,
		ClientID:  clientID,
		Start:     time.Now(),
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		ti.TraceID = sc.TraceID().String()
		ti.SpanID = sc.SpanID().String()
	}
	return ti
}

// Finish stops the clock. A tool can fail without a Go error, for example
// by returning an MCP error result, so success is passed separately.
func (ti *ToolInvocation) Finish(success bool, err error) {
	ti.Duration = time.Since(ti.Start)
	ti.Success = success && err == nil
	if err != nil {
		ti.Error = err.Error()
	}
}

// Status returns StatusSuccess or StatusError.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// Attrs returns the log attributes. withSubject adds the raw subject and
// span id for the access-controlled audit sink; otherwise only the subject hash.
func (ti *ToolInvocation) Attrs(withSubject bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String(logging.KeyTool, ti.Tool),
		slog.Duration(logging.KeyDuration, ti.Duration),
		slog.Bool("success", ti.Success),
	}

	switch {
	case withSubject:
		attrs = append(attrs, slog.String("subject", ti.SubjectID))
	case ti.SubjectID != "":
		attrs = append(attrs, logging.SubjectHash(ti.SubjectID))
	}

	optional := []struct {
		key, value string
	}{
		{logging.KeyClientID, ti.ClientID},
		{logging.KeyService, ti.Service},
		{logging.KeyOperation, ti.Operation},
		{"trace_id", ti.TraceID},
		{logging.KeyError, ti.Error},
	}
	if withSubject {
		optional = append(optional, struct{ key, value string }{"span_id", ti.SpanID})
	}
	for _, o := range optional {
		if o.value != "" {
			attrs = append(attrs, slog.String(o.key, o.value))
		}
	}
	if ti.ResourceID != "" {
		attrs = append(attrs, logging.FileID(ti.ResourceID))
	}
	return attrs
}

// AuditLogger writes tool invocations to a dedicated slog.Logger.
type AuditLogger struct {
	logger *slog.Logger
	config AuditLoggingConfig
}

// NewAuditLogger creates an enabled AuditLogger that logs subject hashes only.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates an AuditLogger from config.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger, config: config}
}

// LogToolInvocation emits tool_executed at info or tool_failed at warn.
func (al *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	if al == nil || !al.config.Enabled || ti == nil {
		return
	}

	level, msg := slog.LevelInfo, "tool_executed"
	if !ti.Success {
		level, msg = slog.LevelWarn, "tool_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, ti.Attrs(al.config.IncludePII)...)
}
