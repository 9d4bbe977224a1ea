package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "gdrive-mcp:discovery:"

// RedisStore is a DocumentStore shared by all replicas pointing at the same Redis.
// Documents are stored verbatim and re-validated on read.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore using an existing client
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: redisKeyPrefix}
}

// NewRedisStoreFromURL parses a redis:// or rediss:// URL and creates a RedisStore
func NewRedisStoreFromURL(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts)), nil
}

// Get implements DocumentStore
func (s *RedisStore) Get(ctx context.Context, issuer string) (*DiscoveryDocument, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+issuer).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	doc, err := ParseDiscoveryDocument(issuer, raw)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Set implements DocumentStore
func (s *RedisStore) Set(ctx context.Context, issuer string, doc *DiscoveryDocument, ttl time.Duration) error {
	if len(doc.Raw) == 0 {
		return fmt.Errorf("discovery document for %s has no raw body", issuer)
	}
	if err := s.client.Set(ctx, s.prefix+issuer, []byte(doc.Raw), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements DocumentStore
func (s *RedisStore) Delete(ctx context.Context, issuer string) error {
	if err := s.client.Del(ctx, s.prefix+issuer).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks connectivity, used by readiness checks
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
