package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		Issuer: "https://mcp-auth.example.com",
		Exchange: ExchangeConfig{
			Issuer:       "https://upstream.example.com",
			ClientID:     "gdrive-mcp",
			ClientSecret: "s3cret",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing issuer", mutate: func(c *Config) { c.Issuer = "" }, wantErr: "issuer is required"},
		{name: "relative issuer", mutate: func(c *Config) { c.Issuer = "/auth" }, wantErr: "must be an absolute URL"},
		{name: "missing upstream issuer", mutate: func(c *Config) { c.Exchange.Issuer = "" }, wantErr: "upstream issuer is required"},
		{name: "missing client secret", mutate: func(c *Config) { c.Exchange.ClientSecret = "" }, wantErr: "client credentials"},
		{name: "invalid base url", mutate: func(c *Config) { c.BaseURL = "example.com" }, wantErr: "base URL"},
		{name: "redis without url", mutate: func(c *Config) { c.Discovery.Backend = CacheBackendRedis }, wantErr: "redis URL is required"},
		{name: "unknown backend", mutate: func(c *Config) { c.Discovery.Backend = "memcached" }, wantErr: "invalid discovery cache backend"},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimit.Rate = -1 }, wantErr: "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Rate = 5
	cfg.applyDefaults()

	assert.Equal(t, DefaultMCPPath, cfg.MCPPath)
	assert.Equal(t, DefaultExchangeAudience, cfg.Audience)
	assert.Equal(t, DefaultFetchTimeout, cfg.FetchTimeout)
	assert.Equal(t, DefaultDiscoveryCacheTTL, cfg.Discovery.TTL)
	assert.Equal(t, CacheBackendMemory, cfg.Discovery.Backend)
	assert.Equal(t, DefaultAllowedAlgorithms, cfg.AllowedAlgorithms)
	assert.Equal(t, DefaultRateLimitBurst, cfg.RateLimit.Burst)
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.HTTPClient)
}

func TestExchangeConfig_StringRedactsSecret(t *testing.T) {
	s := validConfig().Exchange.String()
	assert.NotContains(t, s, "s3cret")
	assert.Contains(t, s, "gdrive-mcp")
}
