package oauth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/logging"
)

// DocumentStore persists discovery documents for a bounded time
type DocumentStore interface {
	Get(ctx context.Context, issuer string) (*DiscoveryDocument, bool, error)
	Set(ctx context.Context, issuer string, doc *DiscoveryDocument, ttl time.Duration) error
	Delete(ctx context.Context, issuer string) error
}

// CachingDiscoverer shares discovery documents across requests.
// Concurrent misses for the same issuer result in a single upstream fetch.
// Failures are never cached.
type CachingDiscoverer struct {
	next    Discoverer
	store   DocumentStore
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewCachingDiscoverer wraps next with a cache backed by store.
// A nil store selects an in-memory store; a non-positive ttl selects DefaultDiscoveryCacheTTL.
func NewCachingDiscoverer(next Discoverer, store DocumentStore, ttl time.Duration, opts ...ClientOption) *CachingDiscoverer {
	if store == nil {
		store = NewMemoryStore()
	}
	if ttl <= 0 {
		ttl = DefaultDiscoveryCacheTTL
	}
	o := newClientOptions(opts)
	return &CachingDiscoverer{
		next:    next,
		store:   store,
		ttl:     ttl,
		timeout: o.timeout,
		logger:  o.logger,
		metrics: o.metrics,
	}
}

// Discover implements Discoverer
func (c *CachingDiscoverer) Discover(ctx context.Context, issuer string) (*DiscoveryDocument, error) {
	if doc, ok := c.lookup(ctx, issuer); ok {
		c.metrics.RecordDiscoveryFetch(ctx, instrumentation.StatusSuccess, instrumentation.SourceCache)
		return doc, nil
	}

	v, err := sharedFlight(ctx, &c.group, issuer, c.timeout, func(flightCtx context.Context) (any, error) {
		// Another caller may have filled the cache while we waited for the flight.
		if doc, ok := c.lookup(flightCtx, issuer); ok {
			return doc, nil
		}

		doc, err := c.next.Discover(flightCtx, issuer)
		if err != nil {
			return nil, err
		}

		if err := c.store.Set(flightCtx, issuer, doc, c.ttl); err != nil {
			c.logger.Warn("Failed to cache discovery document",
				logging.Issuer(issuer),
				logging.Err(err))
		}
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DiscoveryDocument), nil
}

// sharedFlight runs fn once per key for all concurrent callers. The flight
// is detached from any single caller's cancellation and bounded by timeout;
// each caller stops waiting when its own ctx is done.
func sharedFlight(ctx context.Context, group *singleflight.Group, key string, timeout time.Duration, fn func(context.Context) (any, error)) (any, error) {
	ch := group.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return fn(flightCtx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached document for issuer
func (c *CachingDiscoverer) Invalidate(ctx context.Context, issuer string) error {
	c.group.Forget(issuer)
	return c.store.Delete(ctx, issuer)
}

func (c *CachingDiscoverer) lookup(ctx context.Context, issuer string) (*DiscoveryDocument, bool) {
	doc, ok, err := c.store.Get(ctx, issuer)
	if err != nil {
		c.logger.Warn("Discovery cache lookup failed, fetching upstream",
			logging.Issuer(issuer),
			logging.Err(err))
		return nil, false
	}
	return doc, ok
}

// MemoryStore is an in-process DocumentStore
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	doc       *DiscoveryDocument
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements DocumentStore. Expired entries are reported as misses.
func (s *MemoryStore) Get(_ context.Context, issuer string) (*DiscoveryDocument, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[issuer]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have replaced it.
		if current, ok := s.entries[issuer]; ok && !s.now().Before(current.expiresAt) {
			delete(s.entries, issuer)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.doc, true, nil
}

// Set implements DocumentStore
func (s *MemoryStore) Set(_ context.Context, issuer string, doc *DiscoveryDocument, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[issuer] = memoryEntry{doc: doc, expiresAt: s.now().Add(ttl)}
	return nil
}

// Delete implements DocumentStore
func (s *MemoryStore) Delete(_ context.Context, issuer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, issuer)
	return nil
}
