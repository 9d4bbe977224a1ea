package oauth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
)

// clientOptions holds the settings shared by every component that talks to
// an authorization server
type clientOptions struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

// ClientOption configures outbound behaviour of discovery, validation and exchange
type ClientOption func(*clientOptions)

// WithHTTPClient sets the HTTP client used for outbound requests
func WithHTTPClient(client *http.Client) ClientOption {
	return func(o *clientOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithTimeout bounds each outbound fetch. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics *instrumentation.Metrics) ClientOption {
	return func(o *clientOptions) {
		o.metrics = metrics
	}
}

func newClientOptions(opts []ClientOption) clientOptions {
	o := clientOptions{
		httpClient: http.DefaultClient,
		timeout:    DefaultFetchTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
