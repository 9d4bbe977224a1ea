package oauth

import (
	"context"
	"fmt"
	"time"
)

// Stack wires the remote JWT authentication components together
type Stack struct {
	Config      Config
	Discoverer  *CachingDiscoverer
	Validator   *Validator
	Exchanger   TokenExchanger
	Publisher   *MetadataPublisher
	Gate        *Gate
	RateLimiter *RateLimiter

	exchangeCache *CachingExchanger
	redisStore    *RedisStore
}

// NewStack validates cfg and builds the discovery cache, validator,
// exchanger, metadata publisher and gate
func NewStack(cfg Config) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth configuration: %w", err)
	}
	cfg.applyDefaults()

	clientOpts := []ClientOption{
		WithHTTPClient(cfg.HTTPClient),
		WithTimeout(cfg.FetchTimeout),
		WithLogger(cfg.Logger),
		WithMetrics(cfg.Metrics),
	}

	s := &Stack{Config: cfg}

	var store DocumentStore = NewMemoryStore()
	if cfg.Discovery.Backend == CacheBackendRedis {
		rs, err := NewRedisStoreFromURL(cfg.Discovery.RedisURL)
		if err != nil {
			return nil, err
		}
		s.redisStore = rs
		store = rs
	}

	s.Discoverer = NewCachingDiscoverer(NewDiscoveryClient(clientOpts...), store, cfg.Discovery.TTL, clientOpts...)
	s.Validator = NewValidator(s.Discoverer,
		WithAllowedAlgorithms(cfg.AllowedAlgorithms...),
		WithLeeway(cfg.Leeway),
		WithClientOptions(clientOpts...),
	)

	s.Exchanger = NewExchanger(cfg.Exchange, s.Discoverer, clientOpts...)
	if cfg.ExchangeCache {
		s.exchangeCache = NewCachingExchanger(s.Exchanger)
		s.Exchanger = s.exchangeCache
	}

	publisher, err := NewMetadataPublisher(PublisherConfig{
		MCPPath:    cfg.MCPPath,
		Issuer:     cfg.Issuer,
		BaseURL:    cfg.BaseURL,
		TrustProxy: cfg.RateLimit.TrustProxy,
	}, s.Discoverer, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	s.Publisher = publisher

	if cfg.RateLimit.Rate > 0 {
		s.RateLimiter = NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, cfg.RateLimit.TrustProxy)
	}

	s.Gate, err = NewGate(GateConfig{
		Authenticator: NewJWTAuthenticator(s.Validator, cfg.Issuer),
		Publisher:     s.Publisher,
		RateLimiter:   s.RateLimiter,
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Run starts background maintenance and blocks until ctx is done
func (s *Stack) Run(ctx context.Context) {
	if s.RateLimiter != nil {
		go s.RateLimiter.Run(ctx)
	}
	if s.exchangeCache != nil {
		go s.exchangeCache.RunPurge(ctx, time.Minute)
	}
	<-ctx.Done()
}

// Ready checks that the issuer's metadata can be resolved
func (s *Stack) Ready(ctx context.Context) error {
	_, err := s.Discoverer.Discover(ctx, s.Config.Issuer)
	return err
}

// Close releases background resources
func (s *Stack) Close() error {
	s.Validator.Close()
	if s.redisStore != nil {
		if err := s.redisStore.Close(); err != nil {
			return fmt.Errorf("closing redis: %w", err)
		}
	}
	return nil
}
