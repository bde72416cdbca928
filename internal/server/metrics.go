package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// Query outcomes used as the "outcome" label.
const (
	outcomeAnswered       = "answered"
	outcomeRejected       = "rejected"
	outcomeBadRequest     = "bad_request"
	outcomeRetrievalError = "retrieval_error"
	outcomeError          = "error"
	outcomeThrottled      = "throttled"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queryRequestsTotal counts completed /api/query requests, partitioned
	// by outcome.
	queryRequestsTotal *prometheus.CounterVec

	// queryStatesTotal counts answered queries by relevance gate state.
	queryStatesTotal *prometheus.CounterVec

	// queryFallbacksTotal counts answers where the template generator
	// replaced a failed model answer.
	queryFallbacksTotal prometheus.Counter

	// queryDurationSeconds records the wall-clock duration of each
	// /api/query request.
	queryDurationSeconds *prometheus.HistogramVec

	// queryTopScore records the best similarity score of each answered query.
	queryTopScore prometheus.Histogram

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queryRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cqa",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of /api/query requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryStatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cqa",
			Subsystem: "query",
			Name:      "states_total",
			Help:      "Answered queries partitioned by relevance gate state.",
		}, []string{"state"}),

		queryFallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cqa",
			Subsystem: "query",
			Name:      "fallbacks_total",
			Help:      "Answers built by the template generator after the model backend failed.",
		}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cqa",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/query requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),

		queryTopScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cqa",
			Subsystem: "query",
			Name:      "top_score",
			Help:      "Best similarity score per answered query.",
			Buckets:   []float64{0.1, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45, 0.5, 0.6, 0.7, 0.8, 0.9},
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
