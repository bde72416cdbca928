package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/complaintqa/internal/pipeline"
	"github.com/54b3r/complaintqa/internal/rag"
	"github.com/54b3r/complaintqa/internal/relevance"
	"github.com/54b3r/complaintqa/internal/report"
)

// ---------------------------------------------------------------------------
// Fake querier
// ---------------------------------------------------------------------------

// fakeQuerier is a test double for the querier interface. It records the
// last request and returns the configured response or error.
type fakeQuerier struct {
	mu   sync.Mutex
	last pipeline.Request
	resp *pipeline.Response
	err  error
}

func (f *fakeQuerier) Query(_ context.Context, req pipeline.Request) (*pipeline.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return &pipeline.Response{Question: req.Question, Outcome: relevance.Outcome{State: relevance.NoEvidence}}, nil
	}
	return f.resp, nil
}

func (f *fakeQuerier) Info() pipeline.Info {
	return pipeline.Info{
		Generator:   "template",
		DefaultTopK: 5,
		ChunkCount:  42,
		Policy:      relevance.DefaultPolicy(),
		MinLength:   10,
	}
}

func (f *fakeQuerier) lastRequest() pipeline.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// newTestServer builds a minimal *Server for handler tests. Metrics go to a
// private registry so parallel tests never collide.
func newTestServer() *Server {
	return newQueryTestServer(&fakeQuerier{})
}

// newQueryTestServer builds a *Server around q.
func newQueryTestServer(q querier) *Server {
	return &Server{
		querier: q,
		cfg:     &Config{},
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

// postQuery sends body to handleQuery and returns the recorder.
func postQuery(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleQuery(w, req)
	return w
}

func decodeQuery(t *testing.T, w *httptest.ResponseRecorder) report.Document {
	t.Helper()
	var resp report.Document
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func evidence(id, category string, score float32, rank int) rag.RetrievalResult {
	return rag.RetrievalResult{
		Chunk: rag.Chunk{
			Text: "The transfer took ten days to arrive.",
			Metadata: rag.ChunkMetadata{
				ComplaintID:     id,
				ProductCategory: category,
				Issue:           "Money was not available when promised",
				DateReceived:    "2023-05-14",
			},
		},
		Score: score,
		Rank:  rank,
	}
}

func confidentResponse() *pipeline.Response {
	ev := []rag.RetrievalResult{
		evidence("3001", "Money Transfers", 0.72, 1),
		evidence("3002", "Money Transfers", 0.50, 2),
	}
	return &pipeline.Response{
		ID:        "5f0c6a7e-0000-4000-8000-000000000001",
		Question:  "Why are money transfers delayed?",
		Category:  "Money Transfers",
		Answer:    "Transfers are held for review.",
		Evidence:  ev,
		Prompt:    "prompt text",
		Generator: "ollama/llama3",
		Outcome: relevance.Outcome{
			State: relevance.Confident, Evidence: ev, Retrieved: 3, AboveThreshold: 2,
			Category: "Money Transfers", Dropped: 1, TopScore: 0.72, AverageScore: 0.61, Threshold: 0.35,
		},
	}
}

// ---------------------------------------------------------------------------
// POST /api/query
// ---------------------------------------------------------------------------

// TestHandleQuery_InvalidJSON verifies that a malformed body returns 400.
func TestHandleQuery_InvalidJSON(t *testing.T) {
	t.Parallel()

	w := postQuery(t, newTestServer(), `{not valid json`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == "" {
		t.Error("expected a non-empty error message")
	}
}

// TestHandleQuery_NegativeTopK verifies that a negative top_k returns 400.
func TestHandleQuery_NegativeTopK(t *testing.T) {
	t.Parallel()

	w := postQuery(t, newTestServer(), `{"question":"credit card fees","top_k":-1}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// TestHandleQuery_Confident verifies the JSON shape of a confident answer.
func TestHandleQuery_Confident(t *testing.T) {
	t.Parallel()

	s := newQueryTestServer(&fakeQuerier{resp: confidentResponse()})
	w := postQuery(t, s, `{"question":"Why are money transfers delayed?"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	resp := decodeQuery(t, w)
	if resp.State != "CONFIDENT" {
		t.Errorf("state: got %q", resp.State)
	}
	if resp.ID == "" || resp.Answer != "Transfers are held for review." {
		t.Errorf("unexpected id/answer: %+v", resp)
	}
	if len(resp.Evidence) != 2 || len(resp.Reference) != 0 {
		t.Fatalf("expected 2 evidence and 0 reference, got %d/%d", len(resp.Evidence), len(resp.Reference))
	}
	first := resp.Evidence[0]
	if first.ComplaintID != "3001" || first.Rank != 1 || first.Tier != "High Relevance" {
		t.Errorf("unexpected first source: %+v", first)
	}
	if resp.Evidence[1].Tier != "Moderate Relevance" {
		t.Errorf("second tier: got %q", resp.Evidence[1].Tier)
	}
	if len(resp.Notes) == 0 {
		t.Error("expected evidence notes")
	}
	if resp.Rejection != nil {
		t.Errorf("unexpected rejection: %+v", resp.Rejection)
	}
}

// TestHandleQuery_LowConfidence verifies that reference material is labelled
// low relevance and evidence stays empty.
func TestHandleQuery_LowConfidence(t *testing.T) {
	t.Parallel()

	ref := []rag.RetrievalResult{evidence("4001", "Credit Cards", 0.30, 1)}
	q := &fakeQuerier{resp: &pipeline.Response{
		ID:        "id-low",
		Answer:    "Insufficient evidence.",
		Reference: ref,
		Outcome:   relevance.Outcome{State: relevance.LowConfidence, Reference: ref, Retrieved: 1, TopScore: 0.30, Threshold: 0.35},
	}}
	resp := decodeQuery(t, postQuery(t, newQueryTestServer(q), `{"question":"credit card rewards"}`))

	if resp.State != "LOW_CONFIDENCE" {
		t.Errorf("state: got %q", resp.State)
	}
	if len(resp.Evidence) != 0 {
		t.Errorf("expected no evidence, got %d", len(resp.Evidence))
	}
	if len(resp.Reference) != 1 || resp.Reference[0].Tier != report.LowRelevanceTier {
		t.Errorf("unexpected reference: %+v", resp.Reference)
	}
}

// TestHandleQuery_Rejection verifies that a rejected question returns 200
// with the rejection and no state.
func TestHandleQuery_Rejection(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{resp: &pipeline.Response{
		Rejection: &pipeline.Rejection{Kind: pipeline.RejectOutOfScope, Message: "I can only answer questions about complaints."},
	}}
	w := postQuery(t, newQueryTestServer(q), `{"question":"Who won the football match yesterday?"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeQuery(t, w)
	if resp.Rejection == nil || resp.Rejection.Kind != pipeline.RejectOutOfScope {
		t.Fatalf("expected out_of_scope rejection, got %+v", resp.Rejection)
	}
	if resp.State != "" || resp.ID != "" {
		t.Errorf("rejection should carry no state or id: %+v", resp)
	}
	if resp.Answer != resp.Rejection.Message {
		t.Errorf("answer should echo the rejection message, got %q", resp.Answer)
	}
}

// TestHandleQuery_RetrievalError verifies that retrieval failures map to 502
// with the user-facing message.
func TestHandleQuery_RetrievalError(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{err: fmt.Errorf("%w: %w", pipeline.ErrRetrieval, errors.New("connection refused"))}
	w := postQuery(t, newQueryTestServer(q), `{"question":"credit card fees"}`)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != pipeline.RetrievalMessage {
		t.Errorf("error: got %q", body.Error)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Error("internal error detail leaked to the client")
	}
}

// TestHandleQuery_InternalError verifies that other failures map to 500.
func TestHandleQuery_InternalError(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{err: errors.New("boom")}
	w := postQuery(t, newQueryTestServer(q), `{"question":"credit card fees"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

// TestHandleQuery_CategoryHandling verifies explicit, inferred and disabled
// category inference.
func TestHandleQuery_CategoryHandling(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"explicit", `{"question":"why was I charged twice?","category":"Credit Cards"}`, "Credit Cards"},
		{"inferred", `{"question":"Why are money transfers delayed?"}`, "Money Transfers"},
		{"inference disabled", `{"question":"Why are money transfers delayed?","infer_category":false}`, ""},
		{"nothing to infer", `{"question":"What do customers complain about most?"}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q := &fakeQuerier{}
			postQuery(t, newQueryTestServer(q), tc.body)
			if got := q.lastRequest().Category; got != tc.want {
				t.Errorf("category: got %q, want %q", got, tc.want)
			}
		})
	}
}

// TestHandleQuery_TopKPassedThrough verifies that top_k reaches the pipeline.
func TestHandleQuery_TopKPassedThrough(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{}
	postQuery(t, newQueryTestServer(q), `{"question":"savings account interest","top_k":8}`)

	if got := q.lastRequest().TopK; got != 8 {
		t.Errorf("top_k: got %d, want 8", got)
	}
}

// ---------------------------------------------------------------------------
// GET /api/info
// ---------------------------------------------------------------------------

// TestHandleInfo verifies that /api/info reports the pipeline configuration.
func TestHandleInfo(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	w := httptest.NewRecorder()
	newTestServer().handleInfo(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var info pipeline.Info
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.ChunkCount != 42 || info.DefaultTopK != 5 || info.Generator != "template" {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.Policy.Threshold != 0.35 {
		t.Errorf("policy threshold: got %v", info.Policy.Threshold)
	}
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

// TestNew_RejectsNilPipeline verifies New refuses a nil querier.
func TestNew_RejectsNilPipeline(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &Config{}); err == nil {
		t.Fatal("expected error for nil pipeline")
	}
}

// TestNew_RoutesAndAuth exercises the full handler chain: health is open,
// info and query require the bearer token.
func TestNew_RoutesAndAuth(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s, err := New(&fakeQuerier{resp: confidentResponse()}, &Config{
		APIKey:          "secret",
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopQL)
	h := s.httpServer.Handler

	cases := []struct {
		method, path, token, body string
		want                      int
	}{
		{http.MethodGet, "/api/health", "", "", http.StatusOK},
		{http.MethodGet, "/api/ready", "", "", http.StatusOK},
		{http.MethodGet, "/api/info", "", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/info", "secret", "", http.StatusOK},
		{http.MethodPost, "/api/query", "", `{"question":"money transfer delays"}`, http.StatusUnauthorized},
		{http.MethodPost, "/api/query", "secret", `{"question":"money transfer delays"}`, http.StatusOK},
		{http.MethodGet, "/metrics", "", "", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		req.RemoteAddr = "192.0.2.10:5000"
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s %s (token %q): got %d, want %d", tc.method, tc.path, tc.token, w.Code, tc.want)
		}
	}
}
