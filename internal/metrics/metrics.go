// Package metrics exposes Prometheus collectors for the statute crawler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded per attempt.
const (
	FetchOK     = "ok"
	FetchRetry  = "retry"
	FetchFailed = "failed"
)

// Statute outcomes recorded per leaf.
const (
	StatuteSaved   = "saved"
	StatuteSkipped = "skipped"
	StatuteFailed  = "failed"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statute_crawler_fetches_total",
			Help: "Fetch attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	statutesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statute_crawler_statutes_total",
			Help: "Statute leaves processed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	storeLockRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statute_crawler_store_lock_retries_total",
			Help: "Upsert attempts retried because the store was locked.",
		},
	)

	rateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statute_crawler_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the request rate limiter, by host.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"host"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statute_crawler_runs_total",
			Help: "Crawl runs, labeled by final status.",
		},
		[]string{"status"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch increments the fetch counter for outcome.
func ObserveFetch(outcome string) {
	fetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStatute increments the statute counter for outcome.
func ObserveStatute(outcome string) {
	statutesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStoreLockRetry counts one lock-contention retry.
func ObserveStoreLockRetry() {
	storeLockRetriesTotal.Inc()
}

// ObserveRateLimitWait records how long a request waited for a token.
func ObserveRateLimitWait(host string, d time.Duration) {
	rateLimitWait.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveRun increments the run counter for the final status.
func ObserveRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}
