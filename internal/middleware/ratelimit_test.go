package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/postboard/internal/metrics"
)

func TestRateLimiter_AllowsBurstThenBlocks(t *testing.T) {
	l := NewRateLimiter(1, 3)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("alice"), "burst event %d", i)
	}
	assert.False(t, l.Allow("alice"))
	assert.True(t, l.Allow("bob"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("alice"), "one token refilled")
	assert.False(t, l.Allow("alice"))
}

func TestRateLimiter_Sweep(t *testing.T) {
	l := NewRateLimiter(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("alice")
	now = now.Add(5 * time.Minute)
	l.Allow("bob")
	assert.Equal(t, 2, l.Len())

	now = now.Add(6 * time.Minute)
	l.Sweep()
	assert.Equal(t, 1, l.Len(), "alice idle for 11m is dropped, bob for 6m is kept")
}

func TestRateLimiter_Middleware(t *testing.T) {
	l := NewRateLimiter(0.5, 1)
	m := metrics.New()
	byHeader := func(r *http.Request) string { return r.Header.Get("X-User") }
	h := l.Limit(byHeader, m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/vote", nil)
		if user != "" {
			req.Header.Set("X-User", user)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send("alice").Code)

	rec := send("alice")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, uint64(1), m.Count("postboard_votes_rate_limited_total"))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, send("").Code, "empty key is exempt")
	}
}
