package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
	// memory exhaustion from attackers rotating source IPs/keys.
	maxTrackedKeys = 4096

	// idleEvict is how long an unused key's limiter is kept.
	idleEvict = 10 * time.Minute
)

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// WebhookRateLimiter is a per-key token bucket with a bounded key set.
// Safe for concurrent use.
type WebhookRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewWebhookRateLimiter allows perMinute requests per key, with bursts of
// the same size. perMinute <= 0 disables limiting.
func NewWebhookRateLimiter(perMinute int) *WebhookRateLimiter {
	r := &WebhookRateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Inf,
		now:     time.Now,
	}
	if perMinute > 0 {
		r.limit = rate.Limit(float64(perMinute) / 60)
		r.burst = perMinute
	}
	return r
}

// Allow returns true if the key is within rate limits.
func (r *WebhookRateLimiter) Allow(key string) bool {
	if r.limit == rate.Inf {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.seen) >= idleEvict {
				delete(r.entries, k)
			}
		}
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = e
	}
	e.seen = now
	return e.limiter.AllowN(now, 1)
}
