package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachingExchanger reuses exchanged credentials for the same subject token
// and audience until shortly before they expire. The cache key includes the
// audience, so a credential is never handed out for a different audience.
type CachingExchanger struct {
	next    TokenExchanger
	margin  time.Duration
	timeout time.Duration // bounds discovery plus the token request
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*ExchangedCredential
	group   singleflight.Group
}

// NewCachingExchanger wraps next
func NewCachingExchanger(next TokenExchanger) *CachingExchanger {
	return &CachingExchanger{
		next:    next,
		margin:  ExchangeExpiryMargin,
		timeout: 2 * DefaultFetchTimeout,
		now:     time.Now,
		entries: make(map[string]*ExchangedCredential),
	}
}

// Exchange implements TokenExchanger
func (c *CachingExchanger) Exchange(ctx context.Context, subjectToken, audience string) (*ExchangedCredential, error) {
	key := exchangeCacheKey(subjectToken, audience)

	if cred, ok := c.get(key); ok {
		return cred, nil
	}

	v, err := sharedFlight(ctx, &c.group, key, c.timeout, func(flightCtx context.Context) (any, error) {
		if cred, ok := c.get(key); ok {
			return cred, nil
		}
		cred, err := c.next.Exchange(flightCtx, subjectToken, audience)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cred
		c.mu.Unlock()
		return cred, nil
	})
	if err != nil {
		return nil, err
	}

	cred := *v.(*ExchangedCredential)
	return &cred, nil
}

// Purge removes expired entries. It is called periodically by the server.
func (c *CachingExchanger) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, cred := range c.entries {
		if !c.usable(cred) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// RunPurge purges expired entries every interval until ctx is done
func (c *CachingExchanger) RunPurge(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}

func (c *CachingExchanger) get(key string) (*ExchangedCredential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.usable(cred) {
		delete(c.entries, key)
		return nil, false
	}
	out := *cred
	return &out, true
}

func (c *CachingExchanger) usable(cred *ExchangedCredential) bool {
	return c.now().Add(c.margin).Before(cred.ExpiresAt)
}

// exchangeCacheKey never stores the subject token itself
func exchangeCacheKey(subjectToken, audience string) string {
	sum := sha256.Sum256([]byte(subjectToken))
	return hex.EncodeToString(sum[:]) + "|" + audience
}
