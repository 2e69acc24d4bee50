// Package metrics exposes the service's counters in Prometheus text format.
//
// Every Registry owns its own metrics.Set, so tests can create one per test
// and read counters back without seeing values from other tests.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

const (
	votesTotal        = "postboard_votes_total"
	voteConflicts     = "postboard_vote_conflicts_total"
	voteRetries       = "postboard_vote_retries_total"
	votesRateLimited  = "postboard_votes_rate_limited_total"
	postsCreated      = "postboard_posts_created_total"
	postsDeleted      = "postboard_posts_deleted_total"
	feedPagesServed   = "postboard_feed_pages_total"
	httpRequests      = "postboard_http_requests_total"
	httpRequestTiming = "postboard_http_request_duration_seconds"
)

type Registry struct {
	set *vm.Set
}

func New() *Registry {
	return &Registry{set: vm.NewSet()}
}

// VoteApplied counts one committed vote cast by transition kind
// ("create", "switch", "noop").
func (r *Registry) VoteApplied(kind string) {
	r.set.GetOrCreateCounter(fmt.Sprintf(`%s{transition=%q}`, votesTotal, kind)).Inc()
}

func (r *Registry) VoteConflict() {
	r.set.GetOrCreateCounter(voteConflicts).Inc()
}

func (r *Registry) VoteRetried() {
	r.set.GetOrCreateCounter(voteRetries).Inc()
}

func (r *Registry) VoteRateLimited() {
	r.set.GetOrCreateCounter(votesRateLimited).Inc()
}

func (r *Registry) PostCreated() {
	r.set.GetOrCreateCounter(postsCreated).Inc()
}

func (r *Registry) PostDeleted() {
	r.set.GetOrCreateCounter(postsDeleted).Inc()
}

func (r *Registry) FeedPageServed() {
	r.set.GetOrCreateCounter(feedPagesServed).Inc()
}

// ObserveRequest records one finished HTTP request. route is the chi route
// pattern, not the raw path, so ids do not explode the label space.
func (r *Registry) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	r.set.GetOrCreateCounter(fmt.Sprintf(`%s{method=%q,route=%q,status="%s"}`,
		httpRequests, method, route, strconv.Itoa(status))).Inc()
	r.set.GetOrCreateHistogram(fmt.Sprintf(`%s{method=%q,route=%q}`,
		httpRequestTiming, method, route)).UpdateDuration(time.Now().Add(-elapsed))
}

// Count returns the current value of the named counter, or 0 if it was
// never incremented.
func (r *Registry) Count(name string) uint64 {
	return r.set.GetOrCreateCounter(name).Get()
}

// Handler serves the registry followed by Go runtime and process metrics.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.set.WritePrometheus(w)
		vm.WriteProcessMetrics(w)
	})
}
