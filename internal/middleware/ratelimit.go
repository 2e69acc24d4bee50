package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"

	"github.com/sakif/postboard/internal/metrics"
)

// KeyFunc picks the bucket a request is counted against. Returning ""
// exempts the request.
type KeyFunc func(r *http.Request) string

// RateLimiter is a token-bucket limiter with one bucket per key.
//
// Buckets live in an xsync.MapOf so concurrent requests for different keys
// never contend on a shared lock. Buckets idle for longer than idleTTL are
// swept by Run.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	buckets *xsync.MapOf[string, *bucket]
}

type bucket struct {
	limiter *rate.Limiter
	// lastSeen is unix nanos, updated on every Allow
	lastSeen atomic.Int64
}

// NewRateLimiter allows perSecond events per key on average with bursts of
// up to burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
		buckets: xsync.NewMapOf[string, *bucket](),
	}
}

// Allow reports whether one more event for key is allowed now.
func (l *RateLimiter) Allow(key string) bool {
	b, _ := l.buckets.LoadOrCompute(key, func() *bucket {
		return &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
	})
	now := l.now()
	b.lastSeen.Store(now.UnixNano())
	return b.limiter.AllowN(now, 1)
}

// Len returns the number of live buckets.
func (l *RateLimiter) Len() int {
	return l.buckets.Size()
}

// Sweep drops buckets that have not been used for idleTTL.
func (l *RateLimiter) Sweep() {
	cutoff := l.now().Add(-l.idleTTL).UnixNano()
	l.buckets.Range(func(key string, b *bucket) bool {
		if b.lastSeen.Load() < cutoff {
			l.buckets.Delete(key)
		}
		return true
	})
}

// Run sweeps idle buckets every interval until ctx is cancelled.
func (l *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Limit returns middleware that answers 429 once key's bucket is empty.
func (l *RateLimiter) Limit(key KeyFunc, m *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k != "" && !l.Allow(k) {
				if m != nil {
					m.VoteRateLimited()
				}
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many requests, slow down"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds is the time for one token to refill, rounded up.
func (l *RateLimiter) retryAfterSeconds() int {
	if l.limit <= 0 || l.limit == rate.Inf {
		return 1
	}
	return max(1, int(math.Ceil(1/float64(l.limit))))
}
