// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for the gdrive-mcp server.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds
//
// Authentication boundary:
//   - oauth_auth_total{result}: gate decisions
//   - oauth_token_validation_total{result,kind}: JWT validations by failure kind
//   - oauth_discovery_fetch_total{result,source}: metadata lookups, upstream or cache
//   - oauth_token_exchange_total{result}, oauth_token_exchange_duration_seconds
//   - oauth_token_refresh_total{result}: stored credential refreshes
//
// Google APIs and tools:
//   - google_api_operations_total{service,operation,status}
//   - google_api_operation_duration_seconds
//   - mcp_tool_invocations_total{tool,status}, mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for discovery (oauth.discovery), token validation
// (oauth.validate), token exchange (oauth.exchange), tool calls (tool.<name>)
// and Google API calls (google.<service>.<operation>).
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: enable metrics and tracing (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate (default: 0.1)
//   - OTEL_SERVICE_NAME: service name (default: gdrive-mcp)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordToolInvocation(ctx, "gdrive_search", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
