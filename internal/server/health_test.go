package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Fake Pinger for readiness tests
// ---------------------------------------------------------------------------

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	// name is returned by Name().
	name string
	// err is returned by Ping(); nil means healthy.
	err error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// newReadyTestServer builds a *Server with the given pingers wired in.
func newReadyTestServer(pingers ...Pinger) *Server {
	s := newTestServer()
	s.pingers = pingers
	return s
}

// ---------------------------------------------------------------------------
// GET /api/health: liveness
// ---------------------------------------------------------------------------

// TestHandleHealth_OK verifies that GET /api/health returns 200 with a JSON
// body containing {"status":"ok"}.
func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: body: %s", w.Code, w.Body.String())
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected %q, got %q", "ok", body["status"])
	}
}

// ---------------------------------------------------------------------------
// GET /api/ready: readiness
// ---------------------------------------------------------------------------

// TestHandleReady_NoPingers verifies that /api/ready returns 200 with
// ready:true and an empty checks array when no pingers are registered.
func TestHandleReady_NoPingers(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready {
		t.Errorf("expected ready:true with no pingers")
	}
	if len(resp.Checks) != 0 {
		t.Errorf("expected 0 checks, got %d", len(resp.Checks))
	}
}

// TestHandleReady_AllHealthy verifies that /api/ready returns 200 with
// ready:true when all pingers succeed.
func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "generator", err: nil},
		&fakePinger{name: "qdrant", err: nil},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready {
		t.Errorf("expected ready:true")
	}
	if len(resp.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(resp.Checks))
	}
	for _, c := range resp.Checks {
		if !c.OK {
			t.Errorf("check %q: expected ok:true", c.Name)
		}
		if c.Error != "" {
			t.Errorf("check %q: expected no error, got %q", c.Name, c.Error)
		}
	}
}

// TestHandleReady_OneFailing verifies that /api/ready returns 503 with
// ready:false when one pinger fails, and the failing check has ok:false
// with a non-empty error field.
func TestHandleReady_OneFailing(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "generator", err: nil},
		&fakePinger{name: "qdrant", err: errors.New("connection refused")},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready {
		t.Errorf("expected ready:false")
	}

	var qdrantCheck *readyCheck
	for i := range resp.Checks {
		if resp.Checks[i].Name == "qdrant" {
			qdrantCheck = &resp.Checks[i]
		}
	}
	if qdrantCheck == nil {
		t.Fatal("qdrant check missing from response")
	}
	if qdrantCheck.OK {
		t.Errorf("qdrant check: expected ok:false")
	}
	if qdrantCheck.Error == "" {
		t.Errorf("qdrant check: expected non-empty error")
	}
}

// TestHandleReady_AllFailing verifies that /api/ready returns 503 with
// ready:false and all checks showing ok:false when every pinger fails.
func TestHandleReady_AllFailing(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "generator", err: errors.New("timeout")},
		&fakePinger{name: "qdrant", err: errors.New("connection refused")},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready {
		t.Errorf("expected ready:false")
	}
	for _, c := range resp.Checks {
		if c.OK {
			t.Errorf("check %q: expected ok:false", c.Name)
		}
	}
}

// TestHandleReady_ContentType verifies the response always has Content-Type
// application/json regardless of check outcome.
func TestHandleReady_ContentType(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(&fakePinger{name: "generator", err: errors.New("down")})
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
}

// fakeBreaker reports a fixed circuit breaker state.
type fakeBreaker string

func (b fakeBreaker) State() string { return string(b) }

// TestBreakerPinger verifies that only an open breaker fails readiness.
func TestBreakerPinger(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state   string
		wantErr bool
	}{
		{"closed", false},
		{"half-open", false},
		{"open", true},
	}
	for _, tc := range cases {
		p := NewBreakerPinger("generator", fakeBreaker(tc.state))
		err := p.Ping(context.Background())
		if (err != nil) != tc.wantErr {
			t.Errorf("state %q: err = %v, wantErr %v", tc.state, err, tc.wantErr)
		}
	}
}

// TestFuncPinger verifies that FuncPinger wraps check errors and keeps its name.
func TestFuncPinger(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	p := NewPinger("redis", func(context.Context) error { return cause })
	if p.Name() != "redis" {
		t.Errorf("Name() = %q, want redis", p.Name())
	}
	err := p.Ping(context.Background())
	if !errors.Is(err, cause) {
		t.Errorf("Ping() = %v, want wrapped %v", err, cause)
	}

	ok := NewPinger("sqlite", func(context.Context) error { return nil })
	if err := ok.Ping(context.Background()); err != nil {
		t.Errorf("healthy pinger returned %v", err)
	}
}

// fakeStore reports a fixed chunk count and warnings.
type fakeStore struct {
	chunks   int
	warnings []string
}

func (f fakeStore) ChunkCount() int    { return f.chunks }
func (f fakeStore) Warnings() []string { return f.warnings }

// TestHandleReady_DegradedStore verifies that store warnings mark the
// readiness response degraded without failing it.
func TestHandleReady_DegradedStore(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "qdrant"},
		NewStorePinger("vector_store", fakeStore{chunks: 40, warnings: []string{"index holds 42 vectors but 40 chunks"}}),
	)
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready || !resp.Degraded {
		t.Fatalf("expected ready and degraded, got ready=%v degraded=%v", resp.Ready, resp.Degraded)
	}
	store := resp.Checks[1]
	if store.Name != "vector_store" || !store.OK || !store.Degraded {
		t.Errorf("store check = %+v, want ok and degraded", store)
	}
	if len(store.Warnings) != 1 || store.Warnings[0] != "index holds 42 vectors but 40 chunks" {
		t.Errorf("store warnings = %v", store.Warnings)
	}
	if resp.Checks[0].Degraded {
		t.Errorf("qdrant check should not be degraded")
	}
}

// TestHandleReady_FailureOutranksDegraded verifies that a failed dependency
// still yields 503 when the store is also degraded.
func TestHandleReady_FailureOutranksDegraded(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "query_log", err: errors.New("database is locked")},
		NewStorePinger("vector_store", fakeStore{}),
	)
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready || !resp.Degraded {
		t.Errorf("expected not ready and degraded, got ready=%v degraded=%v", resp.Ready, resp.Degraded)
	}
}

// TestStorePinger verifies the warnings reported for loaded and empty stores.
func TestStorePinger(t *testing.T) {
	t.Parallel()

	healthy := NewStorePinger("vector_store", fakeStore{chunks: 10})
	if err := healthy.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v, want nil", err)
	}
	if w := healthy.Warnings(); len(w) != 0 {
		t.Errorf("healthy store warnings = %v, want none", w)
	}

	empty := NewStorePinger("vector_store", fakeStore{})
	w := empty.Warnings()
	if len(w) != 1 || !strings.Contains(w[0], "no complaint chunks") {
		t.Errorf("empty store warnings = %v", w)
	}

	// The store's own slice must not be appended to.
	own := make([]string, 1, 4)
	own[0] = "metadata length mismatch"
	NewStorePinger("vector_store", fakeStore{warnings: own}).Warnings()
	if got := own[:2][1]; got != "" {
		t.Errorf("store warnings backing array was modified: %q", got)
	}
}
