package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/spf13/cobra"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
)

// Transports
const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

// Authentication modes
const (
	authModeRemoteJWT = "remote-jwt"
	authModeLocal     = "local"
)

// Config is the serve configuration. It is decoded from the environment and
// then overridden by explicitly set flags.
type Config struct {
	Transport string `env:"MCP_TRANSPORT,default=stdio"`
	HTTPAddr  string `env:"MCP_HTTP_ADDR,default=:8080"`
	MCPPath   string `env:"MCP_PATH,default=/mcp"`
	BaseURL   string `env:"PUBLIC_BASE_URL"`
	AuthMode  string `env:"AUTH_MODE,default=local"`

	// Resource-server issuer that signs the bearer tokens
	Issuer string `env:"MCP_AUTH_ISSUER"`

	// Upstream issuer used for token exchange
	UpstreamIssuer       string `env:"UPSTREAM_AUTH_ISSUER"`
	UpstreamClientID     string `env:"UPSTREAM_CLIENT_ID"`
	UpstreamClientSecret string `env:"UPSTREAM_CLIENT_SECRET"`
	ExchangeAudience     string `env:"TOKEN_EXCHANGE_AUDIENCE,default=oidc_google"`
	ExchangeCacheEnabled bool   `env:"EXCHANGE_CACHE_ENABLED,default=false"`

	CredsDir        string        `env:"GDRIVE_CREDS_DIR"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL,default=10m"`

	OutboundTimeout       time.Duration `env:"OUTBOUND_TIMEOUT,default=5s"`
	DiscoveryCacheTTL     time.Duration `env:"DISCOVERY_CACHE_TTL,default=15m"`
	DiscoveryCacheBackend string        `env:"DISCOVERY_CACHE_BACKEND,default=memory"`
	RedisURL              string        `env:"REDIS_URL"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=20"`
	TrustProxy     bool    `env:"TRUST_PROXY,default=false"`

	ReadOnly       bool   `env:"READ_ONLY,default=false"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	MetricsEnabled bool   `env:"METRICS_ENABLED,default=true"`
	MetricsAddr    string `env:"METRICS_ADDR,default=:9090"`
}

// loadConfig decodes the environment into a Config
func loadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("failed to read configuration from environment: %w", err)
	}
	if err := checkNumericEnv(); err != nil {
		return cfg, fmt.Errorf("failed to read configuration from environment: %w", err)
	}
	return cfg, nil
}

// checkNumericEnv rejects numeric variables that envdecode would silently
// decode as zero.
func checkNumericEnv() error {
	parseFloat := func(v string) error { _, err := strconv.ParseFloat(v, 64); return err }
	parseInt := func(v string) error { _, err := strconv.Atoi(v); return err }
	parseDuration := func(v string) error { _, err := time.ParseDuration(v); return err }

	checks := []struct {
		name  string
		parse func(string) error
	}{
		{"RATE_LIMIT_RPS", parseFloat},
		{"RATE_LIMIT_BURST", parseInt},
		{"OUTBOUND_TIMEOUT", parseDuration},
		{"DISCOVERY_CACHE_TTL", parseDuration},
		{"REFRESH_INTERVAL", parseDuration},
	}
	for _, c := range checks {
		v := os.Getenv(c.name)
		if v == "" {
			continue
		}
		if err := c.parse(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", c.name, v, err)
		}
	}
	return nil
}

// Validate checks the combination of transport and authentication mode
func (c *Config) Validate() error {
	switch c.Transport {
	case transportStdio, transportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", c.Transport)
	}

	switch c.AuthMode {
	case authModeLocal:
		if c.Transport != transportStdio {
			return errors.New("local auth mode is only supported with the stdio transport")
		}
	case authModeRemoteJWT:
		if c.Transport != transportStreamableHTTP {
			return errors.New("remote-jwt auth mode requires the streamable-http transport")
		}
		cfg := c.authConfig(nil, nil)
		if err := cfg.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported auth mode: %s (supported: remote-jwt, local)", c.AuthMode)
	}

	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.RefreshInterval <= 0 {
		return errors.New("refresh interval must be positive")
	}
	return nil
}

// authConfig maps the serve configuration onto the authentication stack
func (c *Config) authConfig(logger *slog.Logger, metrics *instrumentation.Metrics) oauth.Config {
	return oauth.Config{
		MCPPath: c.MCPPath,
		Issuer:  c.Issuer,
		BaseURL: c.BaseURL,
		Exchange: oauth.ExchangeConfig{
			Issuer:       c.UpstreamIssuer,
			ClientID:     c.UpstreamClientID,
			ClientSecret: c.UpstreamClientSecret,
		},
		Audience:     c.ExchangeAudience,
		FetchTimeout: c.OutboundTimeout,
		Discovery: oauth.DiscoveryCacheConfig{
			TTL:      c.DiscoveryCacheTTL,
			Backend:  c.DiscoveryCacheBackend,
			RedisURL: c.RedisURL,
		},
		ExchangeCache: c.ExchangeCacheEnabled,
		RateLimit: oauth.RateLimitConfig{
			Rate:       c.RateLimitRPS,
			Burst:      c.RateLimitBurst,
			TrustProxy: c.TrustProxy,
		},
		Logger:  logger,
		Metrics: metrics,
	}
}

// applyFlags copies explicitly set flags over the environment values
func (c *Config) applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()

	stringFlags := map[string]*string{
		"transport":               &c.Transport,
		"http-addr":               &c.HTTPAddr,
		"mcp-path":                &c.MCPPath,
		"base-url":                &c.BaseURL,
		"auth-mode":               &c.AuthMode,
		"issuer":                  &c.Issuer,
		"upstream-issuer":         &c.UpstreamIssuer,
		"upstream-client-id":      &c.UpstreamClientID,
		"exchange-audience":       &c.ExchangeAudience,
		"creds-dir":               &c.CredsDir,
		"discovery-cache-backend": &c.DiscoveryCacheBackend,
		"redis-url":               &c.RedisURL,
		"metrics-addr":            &c.MetricsAddr,
	}
	for name, dst := range stringFlags {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	durationFlags := map[string]*time.Duration{
		"outbound-timeout":    &c.OutboundTimeout,
		"discovery-cache-ttl": &c.DiscoveryCacheTTL,
		"refresh-interval":    &c.RefreshInterval,
	}
	for name, dst := range durationFlags {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	boolFlags := map[string]*bool{
		"exchange-cache": &c.ExchangeCacheEnabled,
		"trust-proxy":    &c.TrustProxy,
		"read-only":      &c.ReadOnly,
		"metrics":        &c.MetricsEnabled,
	}
	for name, dst := range boolFlags {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if flags.Changed("rate-limit-rps") {
		v, err := flags.GetFloat64("rate-limit-rps")
		if err != nil {
			return err
		}
		c.RateLimitRPS = v
	}
	if flags.Changed("rate-limit-burst") {
		v, err := flags.GetInt("rate-limit-burst")
		if err != nil {
			return err
		}
		c.RateLimitBurst = v
	}

	// --debug wins over LOG_LEVEL
	if flags.Changed("debug") {
		if debug, _ := flags.GetBool("debug"); debug {
			c.LogLevel = "debug"
		}
	}
	return nil
}

// addServeFlags declares the serve flags. Defaults are shown for
// documentation only: unset flags never override the environment.
func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("debug", false, "Enable debug logging")
	f.String("transport", transportStdio, "Transport type: stdio or streamable-http")
	f.String("http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	f.String("mcp-path", oauth.DefaultMCPPath, "Path of the MCP endpoint")
	f.String("base-url", "", "Public base URL of this server (derived from requests if empty)")
	f.String("auth-mode", authModeLocal, "Authentication mode: remote-jwt or local")
	f.String("issuer", "", "Authorization server that issues bearer tokens for this server")
	f.String("upstream-issuer", "", "Authorization server used for token exchange")
	f.String("upstream-client-id", "", "Client ID at the upstream authorization server")
	f.String("exchange-audience", oauth.DefaultExchangeAudience, "Audience requested when exchanging tokens for Google credentials")
	f.Bool("exchange-cache", false, "Reuse exchanged Google credentials until shortly before they expire")
	f.String("creds-dir", "", "Directory holding the local credential file and OAuth keyfile")
	f.Duration("refresh-interval", 10*time.Minute, "How often the local credential file is checked for refresh")
	f.Duration("outbound-timeout", oauth.DefaultFetchTimeout, "Timeout for each discovery, JWKS and exchange request")
	f.Duration("discovery-cache-ttl", oauth.DefaultDiscoveryCacheTTL, "How long discovery documents are cached")
	f.String("discovery-cache-backend", oauth.CacheBackendMemory, "Discovery cache backend: memory or redis")
	f.String("redis-url", "", "Redis URL for the redis discovery cache")
	f.Float64("rate-limit-rps", oauth.DefaultRateLimitRate, "Requests per second allowed per client IP (0 disables)")
	f.Int("rate-limit-burst", oauth.DefaultRateLimitBurst, "Burst size per client IP")
	f.Bool("trust-proxy", false, "Trust X-Forwarded-* headers (only behind a trusted proxy)")
	f.Bool("read-only", false, "Do not register tools that modify spreadsheets")
	f.Bool("metrics", true, "Serve Prometheus metrics (streamable-http only)")
	f.String("metrics-addr", ":9090", "Metrics server address")
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
