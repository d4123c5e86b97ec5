// Package metrics holds the Prometheus collectors for the HTTP layer and
// the dispatch engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoracle_push_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scoracle_push_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// DispatchRuns counts engine runs by class and result (ok, registry_error, invalid).
	DispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoracle_push_dispatch_runs_total",
			Help: "Notification class runs by result",
		},
		[]string{"class", "result"},
	)

	// DispatchMessages counts messages by class and outcome (targeted, sent, errored).
	DispatchMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoracle_push_dispatch_messages_total",
			Help: "Messages targeted, sent and errored per notification class",
		},
		[]string{"class", "outcome"},
	)

	DispatchBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoracle_push_gateway_batches_total",
			Help: "Gateway calls by class and status",
		},
		[]string{"class", "status"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scoracle_push_dispatch_duration_seconds",
			Help:    "Wall time of a notification class run",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"class"},
	)
)

var once sync.Once

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			RequestCount, RequestDuration,
			DispatchRuns, DispatchMessages, DispatchBatches, DispatchDuration,
		)
	})
}
