package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrKind      = "kind"
	attrSource    = "source"
	attrTool      = "tool"
	attrClientID  = "client_id"
)

var (
	fastBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10}
	slowBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

// timed is a counter with an optional latency histogram sharing its attributes.
type timed struct {
	count   metric.Int64Counter
	latency metric.Float64Histogram
}

func (t timed) record(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if t.count == nil {
		return
	}
	opt := metric.WithAttributes(attrs...)
	t.count.Add(ctx, 1, opt)
	if t.latency != nil {
		t.latency.Record(ctx, d.Seconds(), opt)
	}
}

// Metrics records counters and latencies for the HTTP surface, the OAuth
// boundary, Google API calls and MCP tools. A nil *Metrics, or the zero
// value, records nothing.
type Metrics struct {
	http          timed
	googleAPI     timed
	gate          timed
	validation    timed
	discovery     timed
	exchange      timed
	refresh       timed
	tools         timed
	detailedLabel bool
}

type instrumentSpec struct {
	target      *timed
	name        string
	description string
	unit        string
	// buckets is nil for counter-only instruments
	buckets []float64
}

// NewMetrics registers every instrument on meter. detailedLabels attaches
// the OAuth client id to tool metrics.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabel: detailedLabels}

	specs := []instrumentSpec{
		{&m.http, "http_requests", "HTTP requests served", "{request}", fastBuckets},
		{&m.googleAPI, "google_api_operations", "Drive and Sheets API calls", "{operation}", slowBuckets},
		{&m.gate, "oauth_auth", "Bearer authentication decisions at the gate", "{attempt}", nil},
		{&m.validation, "oauth_token_validation", "JWT validations by result and failure kind", "{validation}", nil},
		{&m.discovery, "oauth_discovery_fetch", "Authorization server metadata lookups by result and source", "{fetch}", nil},
		{&m.exchange, "oauth_token_exchange", "Token exchange round trips", "{exchange}", slowBuckets[:8]},
		{&m.refresh, "oauth_token_refresh", "Stored credential refresh attempts", "{attempt}", nil},
		{&m.tools, "mcp_tool_invocations", "MCP tool invocations", "{invocation}", slowBuckets},
	}

	for _, s := range specs {
		counter, err := meter.Int64Counter(s.name+"_total",
			metric.WithDescription(s.description),
			metric.WithUnit(s.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s_total counter: %w", s.name, err)
		}
		s.target.count = counter

		if s.buckets == nil {
			continue
		}
		histName := durationName(s.name)
		hist, err := meter.Float64Histogram(histName,
			metric.WithDescription(s.description+", duration in seconds"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(s.buckets...),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", histName, err)
		}
		s.target.latency = hist
	}

	return m, nil
}

// durationName derives the histogram name from the counter stem, so
// mcp_tool_invocations becomes mcp_tool_duration_seconds.
func durationName(stem string) string {
	switch stem {
	case "http_requests":
		return "http_request_duration_seconds"
	case "google_api_operations":
		return "google_api_operation_duration_seconds"
	case "mcp_tool_invocations":
		return "mcp_tool_duration_seconds"
	}
	return stem + "_duration_seconds"
}

// RecordHTTPRequest records a request to the streamable HTTP listener.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.http.record(ctx, duration,
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
}

// RecordGoogleAPIOperation records a Drive or Sheets API call. service is
// ServiceDrive or ServiceSheets.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.googleAPI.record(ctx, duration,
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
}

// RecordOAuthAuth records whether the gate admitted a request.
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.gate.record(ctx, 0, attribute.String(attrResult, result))
}

// RecordTokenValidation records a JWT validation. kind is empty on success.
func (m *Metrics) RecordTokenValidation(ctx context.Context, result, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "none"
	}
	m.validation.record(ctx, 0,
		attribute.String(attrResult, result),
		attribute.String(attrKind, kind),
	)
}

// RecordDiscoveryFetch records a metadata lookup served from source
// (SourceUpstream or SourceCache).
func (m *Metrics) RecordDiscoveryFetch(ctx context.Context, result, source string) {
	if m == nil {
		return
	}
	m.discovery.record(ctx, 0,
		attribute.String(attrResult, result),
		attribute.String(attrSource, source),
	)
}

// RecordTokenExchange records a token exchange round trip.
func (m *Metrics) RecordTokenExchange(ctx context.Context, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.exchange.record(ctx, duration, attribute.String(attrResult, result))
}

// RecordOAuthTokenRefresh records a stored credential refresh attempt.
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.refresh.record(ctx, 0, attribute.String(attrResult, result))
}

// RecordToolInvocation records an MCP tool call without a client id.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	m.RecordToolInvocationWithClient(ctx, toolName, status, "", duration)
}

// RecordToolInvocationWithClient records an MCP tool call. clientID is
// only attached when detailed labels are enabled.
func (m *Metrics) RecordToolInvocationWithClient(ctx context.Context, toolName, status, clientID string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabel && clientID != "" {
		attrs = append(attrs, attribute.String(attrClientID, clientID))
	}
	m.tools.record(ctx, duration, attrs...)
}
