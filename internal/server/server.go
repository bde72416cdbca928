// Package server implements the HTTP server that exposes the complaint QA
// pipeline as a JSON API with readiness checks and Prometheus metrics.
// The server is started by the `cqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/complaintqa/internal/logging"
	"github.com/54b3r/complaintqa/internal/pipeline"
	"github.com/54b3r/complaintqa/internal/report"
	"github.com/54b3r/complaintqa/internal/scope"
)

// maxBodyBytes caps the size of a POST /api/query body.
const maxBodyBytes = 64 << 10

// New constructs a Server from the provided pipeline and config.
func New(p querier, cfg *Config) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("server: pipeline must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Local models can take a while on long evidence blocks.
		cfg.WriteTimeout = 3 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultQueryRate
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultQueryBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	if cfg.APIKey == "" {
		log.Warn("server: CQA_API_KEY is not set, authentication is disabled")
	}

	s := &Server{
		querier: p,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}
	ql, stopQL := newQueryLimiter(cfg.RateLimit, cfg.RateBurst, func() {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeThrottled).Inc()
	})
	s.stopQL = stopQL

	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/query", ql.middleware(protect(s.handleQuery)))
	mux.Handle("GET /api/info", protect(s.handleInfo))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopQL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("cqa server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// instrument records request counts and latency for every route.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		handler := r.Pattern
		if handler == "" {
			handler = "unmatched"
		}
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, fmt.Sprint(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}

// handleQuery handles POST /api/query. The body is a report.Document.
// Rejected questions are answered with 200 and a rejection; retrieval
// failures map to 502.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()
	outcome := outcomeError
	defer func() {
		s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		outcome = outcomeBadRequest
		writeError(w, log, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TopK < 0 {
		outcome = outcomeBadRequest
		writeError(w, log, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	category := req.Category
	if category == "" && (req.InferCategory == nil || *req.InferCategory) {
		category = scope.InferCategory(req.Question)
	} else if category != "" && !scope.KnownCategory(category) {
		log.Warn("query: unknown product category, filtering anyway", slog.String("category", category))
	}

	resp, err := s.querier.Query(r.Context(), pipeline.Request{
		Question: req.Question,
		Category: category,
		TopK:     req.TopK,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrRetrieval) {
			outcome = outcomeRetrievalError
			writeError(w, log, http.StatusBadGateway, pipeline.RetrievalMessage)
			return
		}
		log.Error("query failed", slog.Any("error", err))
		writeError(w, log, http.StatusInternalServerError, "internal error")
		return
	}

	recordQuery(r.Context(), resp)
	if resp.Rejection != nil {
		outcome = outcomeRejected
	} else {
		outcome = outcomeAnswered
		s.metrics.queryStatesTotal.WithLabelValues(resp.State().String()).Inc()
		if resp.Outcome.Retrieved > 0 {
			s.metrics.queryTopScore.Observe(float64(resp.Outcome.TopScore))
		}
		if resp.Fallback {
			s.metrics.queryFallbacksTotal.Inc()
		}
	}

	writeJSON(w, log, http.StatusOK, report.NewDocument(resp, s.querier.Info().Policy))
}

// handleInfo handles GET /api/info, describing the loaded store and policy.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, s.querier.Info())
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	writeJSON(w, log, status, errorResponse{Error: msg})
}
