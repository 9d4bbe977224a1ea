package oauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDoc = &DiscoveryDocument{
	Issuer:        "https://as.example.com",
	TokenEndpoint: "https://as.example.com/token",
	JWKSURI:       "https://as.example.com/jwks",
	Raw:           []byte(`{"issuer":"https://as.example.com","token_endpoint":"https://as.example.com/token","jwks_uri":"https://as.example.com/jwks"}`),
}

func TestCachingDiscoverer_SingleFlight(t *testing.T) {
	f := newFakeIssuer(t)

	gate := make(chan struct{})
	slow := &gatedDiscoverer{next: NewDiscoveryClient(), gate: gate}
	c := NewCachingDiscoverer(slow, nil, time.Minute)

	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := c.Discover(context.Background(), f.issuer)
			if err == nil && doc.Issuer != f.issuer {
				err = errors.New("unexpected issuer " + doc.Issuer)
			}
			errs <- err
		}()
	}

	// Let every caller reach the flight before the fetch completes.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.discoveryHits.Load(), "concurrent misses should share one upstream fetch")

	_, err := c.Discover(context.Background(), f.issuer)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.discoveryHits.Load(), "subsequent lookups should be served from cache")
}

func TestCachingDiscoverer_LeaderCancellationDoesNotFailWaiters(t *testing.T) {
	f := newFakeIssuer(t)

	gate := make(chan struct{})
	slow := &gatedDiscoverer{next: NewDiscoveryClient(), gate: gate}
	c := NewCachingDiscoverer(slow, nil, time.Minute)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Discover(leaderCtx, f.issuer)
		leaderErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	type result struct {
		doc *DiscoveryDocument
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		doc, err := c.Discover(context.Background(), f.issuer)
		waiter <- result{doc, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(gate)
	res := <-waiter
	require.NoError(t, res.err)
	assert.Equal(t, f.issuer, res.doc.Issuer)
	assert.Equal(t, int32(1), f.discoveryHits.Load(), "the cancelled leader's fetch should still serve the waiter")
}

// gatedDiscoverer blocks until gate is closed
type gatedDiscoverer struct {
	next Discoverer
	gate chan struct{}
}

func (g *gatedDiscoverer) Discover(ctx context.Context, issuer string) (*DiscoveryDocument, error) {
	<-g.gate
	return g.next.Discover(ctx, issuer)
}

func TestCachingDiscoverer_TTL(t *testing.T) {
	stub := &stubDiscoverer{doc: testDoc}
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	c := NewCachingDiscoverer(stub, store, 10*time.Minute)
	ctx := context.Background()

	_, err := c.Discover(ctx, testDoc.Issuer)
	require.NoError(t, err)
	_, err = c.Discover(ctx, testDoc.Issuer)
	require.NoError(t, err)
	assert.Equal(t, int32(1), stub.calls.Load())

	now = now.Add(10 * time.Minute)
	_, err = c.Discover(ctx, testDoc.Issuer)
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.calls.Load(), "expired entry should be refetched")
}

func TestCachingDiscoverer_FailuresNotCached(t *testing.T) {
	stub := &stubDiscoverer{err: &DiscoveryError{URL: "x", StatusCode: 503, Status: "503 Service Unavailable"}}
	c := NewCachingDiscoverer(stub, nil, time.Minute)
	ctx := context.Background()

	_, err := c.Discover(ctx, testDoc.Issuer)
	var de *DiscoveryError
	require.ErrorAs(t, err, &de)

	stub.err = nil
	stub.doc = testDoc
	doc, err := c.Discover(ctx, testDoc.Issuer)
	require.NoError(t, err)
	assert.Equal(t, testDoc.Issuer, doc.Issuer)
	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestCachingDiscoverer_Invalidate(t *testing.T) {
	stub := &stubDiscoverer{doc: testDoc}
	c := NewCachingDiscoverer(stub, nil, time.Hour)
	ctx := context.Background()

	_, _ = c.Discover(ctx, testDoc.Issuer)
	require.NoError(t, c.Invalidate(ctx, testDoc.Issuer))
	_, _ = c.Discover(ctx, testDoc.Issuer)

	assert.Equal(t, int32(2), stub.calls.Load())
}

// failingStore always errors, simulating an unavailable shared cache
type failingStore struct{}

func (failingStore) Get(context.Context, string) (*DiscoveryDocument, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingStore) Set(context.Context, string, *DiscoveryDocument, time.Duration) error {
	return errors.New("connection refused")
}

func (failingStore) Delete(context.Context, string) error { return nil }

func TestCachingDiscoverer_StoreErrorsFallBackToUpstream(t *testing.T) {
	stub := &stubDiscoverer{doc: testDoc}
	c := NewCachingDiscoverer(stub, failingStore{}, time.Minute)

	doc, err := c.Discover(context.Background(), testDoc.Issuer)
	require.NoError(t, err)
	assert.Equal(t, testDoc.JWKSURI, doc.JWKSURI)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	_, ok, err := store.Get(ctx, testDoc.Issuer)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, testDoc.Issuer, testDoc, time.Minute))
	assert.True(t, mr.Exists(redisKeyPrefix+testDoc.Issuer))

	got, ok, err := store.Get(ctx, testDoc.Issuer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testDoc.TokenEndpoint, got.TokenEndpoint)
	assert.JSONEq(t, string(testDoc.Raw), string(got.Raw))

	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Get(ctx, testDoc.Issuer)
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire with the ttl")

	require.NoError(t, store.Set(ctx, testDoc.Issuer, testDoc, time.Minute))
	require.NoError(t, store.Delete(ctx, testDoc.Issuer))
	assert.False(t, mr.Exists(redisKeyPrefix+testDoc.Issuer))
}

func TestRedisStore_RejectsCorruptEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer store.Close()

	require.NoError(t, mr.Set(redisKeyPrefix+testDoc.Issuer, `{"issuer":""}`))

	_, _, err := store.Get(context.Background(), testDoc.Issuer)
	var me *MalformedDiscoveryError
	assert.ErrorAs(t, err, &me)
}

func TestRedisStore_SharedBetweenReplicas(t *testing.T) {
	f := newFakeIssuer(t)
	mr := miniredis.RunT(t)

	replica := func() *CachingDiscoverer {
		store, err := NewRedisStoreFromURL("redis://" + mr.Addr())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return NewCachingDiscoverer(NewDiscoveryClient(), store, time.Minute)
	}

	a, b := replica(), replica()
	_, err := a.Discover(context.Background(), f.issuer)
	require.NoError(t, err)
	doc, err := b.Discover(context.Background(), f.issuer)
	require.NoError(t, err)

	assert.Equal(t, f.issuer+"/jwks", doc.JWKSURI)
	assert.Equal(t, int32(1), f.discoveryHits.Load())
}

func TestNewRedisStoreFromURL_Invalid(t *testing.T) {
	_, err := NewRedisStoreFromURL("http://not-redis")
	assert.Error(t, err)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", testDoc, time.Second))
	_, ok, _ := store.Get(ctx, "a")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = store.Get(ctx, "a")
	assert.False(t, ok)
	assert.Empty(t, store.entries)
}
