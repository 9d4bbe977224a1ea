package instrumentation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, config Config) *Provider {
	t.Helper()
	config.Enabled = true
	if config.ServiceName == "" {
		config.ServiceName = "gdrive-mcp-test"
	}
	config.ServiceVersion = "1.0.0"

	provider, err := NewProvider(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	})
	return provider
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "gdrive-mcp-test"})
	require.NoError(t, err)

	assert.False(t, provider.Enabled())
	require.NotNil(t, provider.Metrics(), "disabled provider still hands out a recorder")
	assert.Nil(t, provider.PrometheusHandler())
	assert.NoError(t, provider.Shutdown(context.Background()))

	// recording on the inert recorder is a no-op
	provider.Metrics().RecordToolInvocation(context.Background(), "gdrive_search", StatusSuccess, time.Millisecond)
}

func TestNewProvider_PrometheusScrape(t *testing.T) {
	provider := newTestProvider(t, Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone})
	require.True(t, provider.Enabled())

	provider.Metrics().RecordToolInvocation(context.Background(), "gdrive_read_file", StatusSuccess, 20*time.Millisecond)
	provider.Metrics().RecordTokenValidation(context.Background(), OAuthResultFailure, "expired")

	handler := provider.PrometheusHandler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mcp_tool_invocations_total")
	assert.Contains(t, string(body), `tool="gdrive_read_file"`)
	assert.Contains(t, string(body), "oauth_token_validation_total")
}

func TestNewProvider_SeparateRegistries(t *testing.T) {
	// two providers in one process must not collide on registration
	first := newTestProvider(t, Config{MetricsExporter: ExporterPrometheus})
	second := newTestProvider(t, Config{MetricsExporter: ExporterPrometheus})

	assert.NotNil(t, first.PrometheusHandler())
	assert.NotNil(t, second.PrometheusHandler())
}

func TestNewProvider_StdoutExporters(t *testing.T) {
	provider := newTestProvider(t, Config{MetricsExporter: ExporterStdout, TracingExporter: ExporterStdout, TraceSamplingRate: 1})

	assert.True(t, provider.Enabled())
	assert.Nil(t, provider.PrometheusHandler(), "no scrape endpoint without the prometheus exporter")
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"unknown metrics exporter", Config{MetricsExporter: "statsd"}},
		{"unknown tracing exporter", Config{TracingExporter: "jaeger"}},
		{"otlp tracing without endpoint", Config{TracingExporter: ExporterOTLP}},
		{"sampling rate out of range", Config{TraceSamplingRate: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Enabled = true
			tt.config.ServiceName = "gdrive-mcp-test"

			provider, err := NewProvider(context.Background(), tt.config)
			assert.Error(t, err)
			assert.Nil(t, provider)
		})
	}
}

func TestProvider_ShutdownTwice(t *testing.T) {
	provider := newTestProvider(t, Config{MetricsExporter: ExporterPrometheus})

	ctx := context.Background()
	require.NoError(t, provider.Shutdown(ctx))
	// the sdk reports repeated shutdowns, callers only log them
	_ = provider.Shutdown(ctx)
}
