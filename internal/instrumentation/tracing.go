package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer used for every span this server creates.
const TracerName = "github.com/teemow/gdrive-mcp"

// Span attribute keys
const (
	SpanAttrTool       = "mcp.tool"
	SpanAttrResourceID = "mcp.resource_id"
	SpanAttrService    = "google.service"
	SpanAttrOperation  = "google.operation"
	SpanAttrClientID   = "oauth.client_id"
	SpanAttrIssuer     = "oauth.issuer"
	SpanAttrAudience   = "oauth.audience"
	SpanAttrMimeClass  = "drive.mime_class"
)

// MimeClassAttribute tags a span with the bounded class of a Drive MIME type.
func MimeClassAttribute(mimeType string) attribute.KeyValue {
	return attribute.String(SpanAttrMimeClass, MimeTypeClass(mimeType))
}

// ToolSpanAttributes describes a tool call. Empty values are omitted and the
// subject is never attached.
func ToolSpanAttributes(service, operation, clientID, resourceID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	for _, kv := range []struct{ key, value string }{
		{SpanAttrService, service},
		{SpanAttrOperation, operation},
		{SpanAttrClientID, clientID},
		{SpanAttrResourceID, resourceID},
	} {
		if kv.value != "" {
			attrs = append(attrs, attribute.String(kv.key, kv.value))
		}
	}
	return attrs
}

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartSpan starts an internal span such as oauth.discovery or oauth.exchange.
// The caller ends it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartToolSpan starts the server span "tool.<name>" for an MCP tool call.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, "tool."+toolName,
		trace.WithAttributes(append([]attribute.KeyValue{attribute.String(SpanAttrTool, toolName)}, attrs...)...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartGoogleAPISpan starts the client span "google.<service>.<operation>".
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	}
	return tracer().Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(append(base, attrs...)...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError marks span as failed. A nil err is ignored.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess marks span as succeeded.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
