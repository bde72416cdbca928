package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/complaintqa/internal/logging"
	"github.com/54b3r/complaintqa/internal/pipeline"
)

// requestIDHeader carries the request ID in both directions. A client may
// supply a UUID to correlate its own logs; anything else is replaced.
const requestIDHeader = "X-Request-ID"

// queryTrace collects what a /api/query handler decided so the access log
// line can report it.
type queryTrace struct {
	queryID   string
	state     string
	category  string
	fallback  bool
	rejection pipeline.RejectionKind
}

type queryTraceKey struct{}

// recordQuery stores the outcome of resp on the request's trace. It is a
// no-op when the request did not pass through requestLogger.
func recordQuery(ctx context.Context, resp *pipeline.Response) {
	tr, ok := ctx.Value(queryTraceKey{}).(*queryTrace)
	if !ok || resp == nil {
		return
	}
	tr.category = resp.Category
	if resp.Rejection != nil {
		tr.rejection = resp.Rejection.Kind
		return
	}
	tr.queryID = resp.ID
	tr.state = resp.State().String()
	tr.fallback = resp.Fallback
}

// attrs returns the log attributes for the recorded query, if any.
func (tr *queryTrace) attrs() []any {
	var out []any
	if tr.category != "" {
		out = append(out, slog.String("category", tr.category))
	}
	if tr.rejection != "" {
		return append(out, slog.String("rejected", string(tr.rejection)))
	}
	if tr.state != "" {
		out = append(out,
			slog.String("query_id", tr.queryID),
			slog.String("gate", tr.state),
			slog.Bool("fallback", tr.fallback),
		)
	}
	return out
}

// requestLogger assigns every request an ID, echoes it in the X-Request-ID
// response header and puts a logger carrying it into the context. When the
// request finishes it logs status and latency, and for answered questions
// the query ID and relevance gate state.
func requestLogger(base *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		log := base.With(
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		tr := &queryTrace{}
		ctx := context.WithValue(logging.WithLogger(r.Context(), log), queryTraceKey{}, tr)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))

		attrs := append([]any{
			slog.Int("status", rw.status),
			slog.Duration("duration", time.Since(start)),
		}, tr.attrs()...)
		level := slog.LevelInfo
		if rw.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.Log(ctx, level, "request", attrs...)
	})
}

// responseWriter records the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
