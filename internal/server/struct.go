package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/complaintqa/internal/pipeline"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It also
	// bounds how long a slow generation backend can hold a request.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the number of questions per second each client IP may
	// send to POST /api/query. Defaults to 1 if zero.
	RateLimit float64
	// RateBurst is how many questions a client may send back to back before
	// RateLimit applies. Defaults to 5 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server metrics (default: prometheus.DefaultRegisterer).
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics (default: prometheus.DefaultGatherer).
	MetricsGatherer prometheus.Gatherer
}

// querier is the pipeline surface the handlers use.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type querier interface {
	// Query answers one question.
	Query(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
	// Info describes the pipeline configuration.
	Info() pipeline.Info
}

// Server is the HTTP server that exposes the complaint QA pipeline.
type Server struct {
	// querier answers questions; the pipeline in production.
	querier querier
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *serverMetrics
	// stopQL stops the query limiter's idle-client sweeper on shutdown.
	stopQL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// Category restricts retrieval to one product category.
	Category string `json:"category,omitempty"`
	// TopK overrides the default number of retrieved chunks.
	TopK int `json:"top_k,omitempty"`
	// InferCategory infers Category from the question when Category is
	// empty. Defaults to true.
	InferCategory *bool `json:"infer_category,omitempty"`
}

// errorResponse is the JSON body for non-2xx responses from /api/query.
type errorResponse struct {
	Error string `json:"error"`
}
