package calendar

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultRefreshMargin is how long before expiry a cached token is replaced.
const DefaultRefreshMargin = 5 * time.Minute

// TokenCache holds one access token and refreshes it from source once the
// token is within margin of its expiry. It implements oauth2.TokenSource.
type TokenCache struct {
	source oauth2.TokenSource
	margin time.Duration
	now    func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

// NewTokenCache wraps source. A zero margin uses DefaultRefreshMargin.
func NewTokenCache(source oauth2.TokenSource, margin time.Duration) *TokenCache {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	return &TokenCache{
		source: source,
		margin: margin,
		now:    time.Now,
	}
}

// Token returns the cached token or fetches a new one.
func (c *TokenCache) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fresh() {
		return c.token, nil
	}

	token, err := c.source.Token()
	if err != nil {
		return nil, fmt.Errorf("acquire graph token: %w", err)
	}
	c.token = token
	return token, nil
}

// fresh reports whether the cached token is usable. Tokens without an
// expiry never go stale.
func (c *TokenCache) fresh() bool {
	if c.token == nil || c.token.AccessToken == "" {
		return false
	}
	if c.token.Expiry.IsZero() {
		return true
	}
	return c.now().Before(c.token.Expiry.Add(-c.margin))
}
