package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/complaintqa/internal/logging"
)

// checkTimeout bounds each dependency check run by GET /api/ready.
const checkTimeout = 5 * time.Second

// Pinger is a dependency that GET /api/ready can check. Implementations must
// be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency can serve queries.
	Ping(ctx context.Context) error

	// Name labels the dependency in readiness responses, e.g. "qdrant".
	Name() string
}

// warner is implemented by dependencies that can be reachable yet degraded,
// such as a vector store whose index and chunk records disagree.
type warner interface {
	Warnings() []string
}

// readyCheck is one dependency's entry in the readiness response.
type readyCheck struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	// Degraded is set when the dependency answers but reported warnings.
	Degraded bool     `json:"degraded,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// readyResponse is the JSON body of GET /api/ready.
type readyResponse struct {
	// Ready is false when any check failed. Degraded checks keep it true:
	// questions are still answered, possibly from fewer complaints.
	Ready    bool         `json:"ready"`
	Degraded bool         `json:"degraded"`
	Checks   []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. It answers 503 when a dependency
// failed its check and 200 otherwise, flagging degraded dependencies such as
// an inconsistent or empty complaint store in the body.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	resp := readyResponse{Ready: true, Checks: make([]readyCheck, 0, len(s.pingers))}

	for _, p := range s.pingers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := p.Ping(ctx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			resp.Ready = false
			log.Warn("readiness check failed", slog.String("dependency", p.Name()), slog.Any("error", err))
		} else if wp, ok := p.(warner); ok {
			if warnings := wp.Warnings(); len(warnings) > 0 {
				check.Degraded = true
				check.Warnings = warnings
				resp.Degraded = true
				log.Warn("dependency degraded", slog.String("dependency", p.Name()), slog.Any("warnings", warnings))
			}
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, log, status, resp)
}
