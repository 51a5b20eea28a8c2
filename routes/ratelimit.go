package routes

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// tenantLimiter holds a rate limiter and the last time it was seen.
type tenantLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per tenant with a token bucket that refills
// requests tokens every window.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*tenantLimiter
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter allows requests per window for each tenant. A
// non-positive requests disables limiting.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 || window <= 0 {
		return nil
	}
	return &RateLimiter{
		limiters: make(map[string]*tenantLimiter),
		rate:     rate.Limit(float64(requests) / window.Seconds()),
		burst:    requests,
		now:      time.Now,
	}
}

// getLimiter returns the limiter for tenant, creating one if needed.
func (rl *RateLimiter) getLimiter(tenant string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, exists := rl.limiters[tenant]; exists {
		l.lastSeen = rl.now()
		return l.limiter
	}
	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[tenant] = &tenantLimiter{limiter: limiter, lastSeen: rl.now()}
	return limiter
}

// Allow consumes a token for tenant. When none is available it returns the
// delay until the next token.
func (rl *RateLimiter) Allow(tenant string) (bool, time.Duration) {
	if rl == nil {
		return true, 0
	}
	r := rl.getLimiter(tenant).ReserveN(rl.now(), 1)
	if !r.OK() {
		return false, time.Second
	}
	delay := r.DelayFrom(rl.now())
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(rl.now())
	return false, delay
}

// Sweep drops limiters idle for longer than idle.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := rl.now().Add(-idle)
	for tenant, l := range rl.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(rl.limiters, tenant)
			removed++
		}
	}
	return removed
}

// Run sweeps idle limiters until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	if rl == nil {
		return
	}
	ticker := time.NewTicker(3 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep(5 * time.Minute)
		}
	}
}

func (rl *RateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.Allow(tenantFrom(r.Context()))
		if !ok {
			retryAfter := max(int(math.Ceil(wait.Seconds())), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
