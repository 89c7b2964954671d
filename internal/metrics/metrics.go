// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts handled requests by route template, method and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postboard_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"route", "method", "status"})

	// HTTPLatency records request latency by route template and method.
	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postboard_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	Registrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postboard_registrations_total",
		Help: "Accounts created through self-registration",
	})

	// LoginAttempts counts token requests by outcome: success, bad_credentials, not_valid.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postboard_login_attempts_total",
		Help: "Token issuance attempts by outcome",
	}, []string{"outcome"})

	Approvals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postboard_account_approvals_total",
		Help: "Accounts switched to valid by an administrator",
	})

	// PostActions counts post mutations by action: create, update, delete, like, unlike, restore.
	PostActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postboard_post_actions_total",
		Help: "Post mutations by action",
	}, []string{"action"})

	SweptPosts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postboard_swept_posts_total",
		Help: "Soft-deleted posts removed by the retention sweep",
	})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postboard_sweep_runs_total",
		Help: "Retention sweep runs by result",
	}, []string{"result"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
