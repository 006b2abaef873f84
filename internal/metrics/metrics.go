// Package metrics provides Prometheus metrics for the originfs client and dev server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Remote store requests made by the client
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "originfs_remote_requests_total",
			Help: "Total number of requests sent to the remote store",
		},
		[]string{"op", "status"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "originfs_remote_request_duration_seconds",
			Help:    "Remote store request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Path index and entry cache
	indexSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "originfs_index_size",
			Help: "Number of paths in the path index",
		},
	)

	entryCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "originfs_entry_cache_size",
			Help: "Number of records held in the entry cache",
		},
	)

	entryCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "originfs_entry_cache_lookups_total",
			Help: "Entry cache lookups by result",
		},
		[]string{"result"},
	)

	fetchesCoalesced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "originfs_fetches_coalesced_total",
			Help: "Fetches that joined an in-flight request instead of issuing their own",
		},
		[]string{"kind"},
	)

	// Mutation log
	pendingMutations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "originfs_pending_mutations",
			Help: "Mutations queued and not yet acknowledged by the remote store",
		},
	)

	mutationsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "originfs_mutations_queued_total",
			Help: "Mutations appended to the log by command",
		},
		[]string{"command"},
	)

	commitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "originfs_commits_total",
			Help: "Batch commits by result",
		},
		[]string{"result"},
	)

	// Dev server
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "originfs_devserver_http_requests_total",
			Help: "Total number of HTTP requests served by the dev server",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "originfs_devserver_http_request_duration_seconds",
			Help:    "Dev server HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "originfs_devserver_auth_attempts_total",
			Help: "Dev server authentication attempts",
		},
		[]string{"result"},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "originfs_devserver_db_query_duration_seconds",
			Help:    "Dev server database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)
)

// RecordRemoteRequest records one remote store round trip. status is the
// HTTP status, or 0 when the request never got a response.
func RecordRemoteRequest(op string, status int, d time.Duration) {
	remoteRequestsTotal.WithLabelValues(op, strconv.Itoa(status)).Inc()
	remoteRequestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetIndexSize sets the number of indexed paths.
func SetIndexSize(n int) {
	indexSize.Set(float64(n))
}

// SetEntryCacheSize sets the number of cached records.
func SetEntryCacheSize(n int) {
	entryCacheSize.Set(float64(n))
}

// RecordCacheLookup counts an entry cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		entryCacheLookups.WithLabelValues("hit").Inc()
	} else {
		entryCacheLookups.WithLabelValues("miss").Inc()
	}
}

// RecordCoalescedFetch counts a caller that shared another caller's fetch.
func RecordCoalescedFetch(kind string) {
	fetchesCoalesced.WithLabelValues(kind).Inc()
}

// SetPendingMutations sets the mutation log length.
func SetPendingMutations(n int) {
	pendingMutations.Set(float64(n))
}

// RecordMutation counts a queued mutation.
func RecordMutation(command string) {
	mutationsQueued.WithLabelValues(command).Inc()
}

// RecordCommit counts a commit attempt.
func RecordCommit(success bool) {
	if success {
		commitsTotal.WithLabelValues("success").Inc()
	} else {
		commitsTotal.WithLabelValues("failure").Inc()
	}
}

// RecordHTTPRequest records a dev server request.
func RecordHTTPRequest(method, path string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordAuthAttempt counts a dev server authentication attempt.
func RecordAuthAttempt(success bool) {
	if success {
		authAttemptsTotal.WithLabelValues("success").Inc()
	} else {
		authAttemptsTotal.WithLabelValues("failure").Inc()
	}
}

// RecordDBQuery records a dev server database query duration.
func RecordDBQuery(query string, d time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(d.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
