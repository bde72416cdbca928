package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/54b3r/complaintqa/internal/logging"
	"github.com/54b3r/complaintqa/internal/pipeline"
)

// serveLogged runs one question through requestLogger and handleQuery and
// returns the recorder and the decoded access log line.
func serveLogged(t *testing.T, q querier, reqID string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := requestLogger(log, http.HandlerFunc(newQueryTestServer(q).handleQuery))

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question":"Why are money transfers delayed?"}`))
	if reqID != "" {
		req.Header.Set(requestIDHeader, reqID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("access log line is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "request" {
		t.Fatalf("last log line is %q, want the request line", entry["msg"])
	}
	return w, entry
}

// TestRequestLogger_LogsGateStateAndQueryID verifies that an answered
// question's access log line carries the request ID, query ID and gate state.
func TestRequestLogger_LogsGateStateAndQueryID(t *testing.T) {
	t.Parallel()

	resp := confidentResponse()
	w, entry := serveLogged(t, &fakeQuerier{resp: resp}, "")

	reqID := w.Header().Get(requestIDHeader)
	if _, err := uuid.Parse(reqID); err != nil {
		t.Fatalf("X-Request-ID %q is not a UUID: %v", reqID, err)
	}
	want := map[string]any{
		"request_id": reqID,
		"path":       "/api/query",
		"status":     float64(http.StatusOK),
		"query_id":   resp.ID,
		"gate":       "CONFIDENT",
		"category":   "Money Transfers",
		"fallback":   false,
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("log %s = %v, want %v", k, entry[k], v)
		}
	}
}

// TestRequestLogger_LogsRejectionKind verifies that rejected questions log
// the rejection kind instead of a gate state.
func TestRequestLogger_LogsRejectionKind(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{resp: &pipeline.Response{
		Rejection: &pipeline.Rejection{Kind: pipeline.RejectTooShort, Message: "Please ask more."},
	}}
	_, entry := serveLogged(t, q, "")

	if entry["rejected"] != string(pipeline.RejectTooShort) {
		t.Errorf("rejected = %v, want %q", entry["rejected"], pipeline.RejectTooShort)
	}
	if _, ok := entry["gate"]; ok {
		t.Errorf("rejected question logged a gate state: %v", entry["gate"])
	}
}

// TestRequestLogger_RequestIDHeader verifies that a client UUID is kept and
// anything else is replaced with a fresh one.
func TestRequestLogger_RequestIDHeader(t *testing.T) {
	t.Parallel()

	clientID := uuid.NewString()
	w, entry := serveLogged(t, &fakeQuerier{}, clientID)
	if got := w.Header().Get(requestIDHeader); got != clientID {
		t.Errorf("X-Request-ID = %q, want the client's %q", got, clientID)
	}
	if entry["request_id"] != clientID {
		t.Errorf("logged request_id = %v, want %q", entry["request_id"], clientID)
	}

	w, _ = serveLogged(t, &fakeQuerier{}, "not a uuid\nforged=1")
	got := w.Header().Get(requestIDHeader)
	if _, err := uuid.Parse(got); err != nil {
		t.Errorf("invalid client ID was not replaced: %q", got)
	}
}

// TestRequestLogger_ContextLogger verifies that handlers log through the
// request-scoped logger.
func TestRequestLogger_ContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := requestLogger(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/info", nil))

	reqID := w.Header().Get(requestIDHeader)
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		if entry["request_id"] != reqID {
			t.Errorf("line %q has request_id %v, want %q", entry["msg"], entry["request_id"], reqID)
		}
	}
	if !strings.Contains(buf.String(), `"status":418`) {
		t.Errorf("access log did not record the handler's status:\n%s", buf.String())
	}
}
