package rates

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how stale a cached rate may be before the
// underlying provider is queried again.
const DefaultCacheTTL = 5 * time.Minute

// Cached decorates a provider with a time-boxed staleness window so a burst
// of checkouts does not translate into a burst of API calls.
type Cached struct {
	inner Provider
	ttl   time.Duration

	mu        sync.RWMutex
	lastRate  float64
	fetchedAt time.Time
}

// WithCache wraps the provider with a TTL cache. A non-positive ttl falls
// back to DefaultCacheTTL.
func WithCache(inner Provider, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{inner: inner, ttl: ttl}
}

func (p *Cached) Name() string { return p.inner.Name() }

func (p *Cached) Rate(ctx context.Context) (float64, error) {
	p.mu.RLock()
	rate, fetchedAt := p.lastRate, p.fetchedAt
	p.mu.RUnlock()

	if !fetchedAt.IsZero() && time.Since(fetchedAt) < p.ttl {
		return rate, nil
	}

	fresh, err := p.inner.Rate(ctx)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.lastRate = fresh
	p.fetchedAt = time.Now()
	p.mu.Unlock()

	return fresh, nil
}

// Invalidate drops the cached rate so the next call hits the provider.
func (p *Cached) Invalidate() {
	p.mu.Lock()
	p.fetchedAt = time.Time{}
	p.mu.Unlock()
}
