package instrumentation

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config selects the telemetry exporters. Every field can be set from the
// environment; ServiceVersion is filled in by the binary.
type Config struct {
	// Enabled turns metrics and tracing on. INSTRUMENTATION_ENABLED=false
	// yields a provider whose Metrics record nothing.
	Enabled bool `env:"INSTRUMENTATION_ENABLED,default=true"`

	ServiceName       string `env:"OTEL_SERVICE_NAME,default=gdrive-mcp"`
	ServiceVersion    string
	ServiceInstanceID string `env:"OTEL_SERVICE_INSTANCE_ID"`

	// Kubernetes metadata attached to the resource when present
	K8sNamespace string `env:"K8S_NAMESPACE"`
	K8sPodName   string `env:"K8S_POD_NAME"`

	// MetricsExporter is prometheus, otlp or stdout
	MetricsExporter string `env:"METRICS_EXPORTER,default=prometheus"`

	// TracingExporter is otlp, stdout or none
	TracingExporter string `env:"TRACING_EXPORTER,default=none"`

	// OTLPEndpoint is host:port of the collector, without scheme
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// OTLPInsecure disables TLS towards the collector. Spans carry issuer
	// URLs and client ids, so keep it off outside development.
	OTLPInsecure bool `env:"OTEL_EXPORTER_OTLP_INSECURE,default=false"`

	// TraceSamplingRate is the parent-based ratio in [0, 1]
	TraceSamplingRate float64 `env:"OTEL_TRACES_SAMPLER_ARG,default=0.1"`

	// MetricInterval is the push interval of the periodic exporters
	MetricInterval time.Duration `env:"METRICS_PUSH_INTERVAL,default=10s"`

	// DetailedLabels adds the OAuth client id to tool metrics. It raises
	// cardinality with every registered client.
	DetailedLabels bool `env:"METRICS_DETAILED_LABELS,default=false"`

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig controls the per tool invocation audit records.
type AuditLoggingConfig struct {
	Enabled bool `env:"AUDIT_LOGGING_ENABLED,default=true"`

	// IncludePII logs the raw token subject next to its hash
	IncludePII bool `env:"AUDIT_LOGGING_INCLUDE_PII,default=false"`

	// LogLevel is the slog level of audit records: debug, info, warn or error
	LogLevel string `env:"AUDIT_LOGGING_LEVEL,default=info"`
}

// DefaultConfig reads the instrumentation settings from the environment.
// Values that fail to parse fall back to the defaults.
func DefaultConfig() Config {
	var config Config
	if err := envdecode.Decode(&config); err != nil {
		config = defaults()
	}
	config.ServiceVersion = "unknown"

	// envdecode leaves unparseable numbers at zero
	if !envParses("OTEL_TRACES_SAMPLER_ARG", func(v string) error { _, err := strconv.ParseFloat(v, 64); return err }) {
		config.TraceSamplingRate = defaults().TraceSamplingRate
	}
	if !envParses("METRICS_PUSH_INTERVAL", func(v string) error { _, err := time.ParseDuration(v); return err }) {
		config.MetricInterval = DefaultMetricInterval
	}

	if config.K8sNamespace == "" {
		config.K8sNamespace = os.Getenv("POD_NAMESPACE")
	}
	if config.K8sPodName == "" {
		config.K8sPodName = os.Getenv("HOSTNAME")
	}
	return config
}

// envParses reports whether the variable is unset, empty or accepted by parse
func envParses(name string, parse func(string) error) bool {
	v := os.Getenv(name)
	return v == "" || parse(v) == nil
}

// defaults mirrors the env tag defaults
func defaults() Config {
	return Config{
		Enabled:           true,
		ServiceName:       "gdrive-mcp",
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 0.1,
		MetricInterval:    DefaultMetricInterval,
		AuditLogging: AuditLoggingConfig{
			Enabled:  true,
			LogLevel: "info",
		},
	}
}

// Validate checks exporter names, the sampling ratio and the OTLP endpoint.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	if c.MetricsExporter != "" && !slices.Contains([]string{ExporterPrometheus, ExporterOTLP, ExporterStdout}, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}
	if c.TracingExporter != "" && !slices.Contains([]string{ExporterOTLP, ExporterStdout, ExporterNone}, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	usesOTLP := c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP
	if usesOTLP && c.OTLPEndpoint == "" {
		return errors.New("OTLP endpoint is required for the otlp exporter (OTEL_EXPORTER_OTLP_ENDPOINT)")
	}
	return nil
}

// Metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"
	OAuthResultSkipped = "skipped"

	// Where a discovery document came from
	SourceUpstream = "upstream"
	SourceCache    = "cache"

	ServiceDrive  = "drive"
	ServiceSheets = "sheets"
)

// Exporters
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// DefaultMetricInterval is the push interval of the otlp and stdout metric exporters
const DefaultMetricInterval = 10 * time.Second
