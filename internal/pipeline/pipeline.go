// Package pipeline answers complaint questions end to end: scope checks,
// retrieval, the relevance gate, prompt assembly and generation. A Pipeline
// is built once with New and shared by every request handler; it holds no
// per-request state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/complaintqa/internal/budget"
	"github.com/54b3r/complaintqa/internal/generator"
	"github.com/54b3r/complaintqa/internal/logging"
	"github.com/54b3r/complaintqa/internal/prompt"
	"github.com/54b3r/complaintqa/internal/rag"
	"github.com/54b3r/complaintqa/internal/relevance"
	"github.com/54b3r/complaintqa/internal/scope"
	"github.com/54b3r/complaintqa/internal/store"
)

// ErrRetrieval wraps embedding and search failures returned by Query.
var ErrRetrieval = errors.New("pipeline: retrieval failed")

// RetrievalMessage is the user-visible text for a retrieval failure.
const RetrievalMessage = "The complaint search backend is unavailable right now. Please try again shortly."

// Retriever is the retrieval capability the pipeline needs.
// *rag.Retriever satisfies it.
type Retriever interface {
	// RetrieveWithFilter returns up to k results, restricted to category
	// when category is non-empty.
	RetrieveWithFilter(ctx context.Context, query, category string, k int) ([]rag.RetrievalResult, error)
	// DefaultTopK is used when a request does not set TopK.
	DefaultTopK() int
}

// StoreInfo describes the loaded vector store. *rag.Store satisfies it.
type StoreInfo interface {
	ChunkCount() int
	Summary() map[string]any
}

// Config holds the dependencies for constructing a Pipeline.
type Config struct {
	// Retriever finds candidate complaint chunks. Required.
	Retriever Retriever
	// Generator turns the prompt into an answer. Required.
	Generator generator.Generator
	// Classifier rejects out-of-scope questions. Defaults to
	// scope.NewKeywordClassifier().
	Classifier scope.Classifier
	// Policy is the relevance gate. A zero Policy means relevance.DefaultPolicy().
	Policy relevance.Policy
	// MinLength is the shortest accepted question (default: scope.DefaultMinLength).
	MinLength int
	// PromptMaxTokens trims the lowest-ranked context blocks until the
	// prompt fits. Zero disables trimming.
	PromptMaxTokens int
	// SystemRole replaces the default role preamble when set.
	SystemRole string
	// QueryLog records answered queries. Optional.
	QueryLog store.QueryLog
	// Store describes the loaded store for Info. Optional.
	Store StoreInfo
}

// Pipeline sequences retrieval, gating, prompting and generation.
// It is safe for concurrent use when its dependencies are.
type Pipeline struct {
	retriever  Retriever
	generator  generator.Generator
	classifier scope.Classifier
	policy     relevance.Policy
	minLength  int
	maxTokens  int
	systemRole string
	queryLog   store.QueryLog
	store      StoreInfo
}

// New constructs a Pipeline from cfg.
func New(cfg *Config) (*Pipeline, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("pipeline: retriever is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("pipeline: generator is required")
	}

	policy := cfg.Policy
	if policy == (relevance.Policy{}) {
		policy = relevance.DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	classifier := cfg.Classifier
	if classifier == nil {
		classifier = scope.NewKeywordClassifier()
	}

	minLength := cfg.MinLength
	if minLength <= 0 {
		minLength = scope.DefaultMinLength
	}

	return &Pipeline{
		retriever:  cfg.Retriever,
		generator:  cfg.Generator,
		classifier: classifier,
		policy:     policy,
		minLength:  minLength,
		maxTokens:  cfg.PromptMaxTokens,
		systemRole: cfg.SystemRole,
		queryLog:   cfg.QueryLog,
		store:      cfg.Store,
	}, nil
}

// RejectionKind classifies a question refused before retrieval.
type RejectionKind string

const (
	// RejectEmpty is an empty or whitespace-only question.
	RejectEmpty RejectionKind = "empty"
	// RejectTooShort is a question under the minimum length.
	RejectTooShort RejectionKind = "too_short"
	// RejectOutOfScope is a question the classifier refused.
	RejectOutOfScope RejectionKind = "out_of_scope"
)

// Rejection explains why a question was not answered.
type Rejection struct {
	Kind    RejectionKind `json:"kind"`
	Message string        `json:"message"`
}

// Request is one question to answer.
type Request struct {
	// Question is the user's question.
	Question string
	// Category restricts retrieval to one product category when set.
	Category string
	// TopK is the number of results to retrieve (0 = retriever default).
	TopK int
}

// Response is the answer together with everything it was built from.
type Response struct {
	// ID identifies the response in the query log.
	ID string
	// Question is the trimmed question.
	Question string
	// Category is the category the request asked for.
	Category string
	// Answer is the generated or templated answer. Empty on rejection.
	Answer string
	// Evidence is the context the answer was grounded in, in ranking order.
	// Empty unless the gate state is Confident.
	Evidence []rag.RetrievalResult
	// Reference is the low-relevance material shown in the LowConfidence state.
	Reference []rag.RetrievalResult
	// Prompt is the exact prompt sent to the generator.
	Prompt string
	// Outcome is the full relevance gate decision.
	Outcome relevance.Outcome
	// Trimmed is the number of context blocks removed to fit PromptMaxTokens.
	Trimmed int
	// Rejection is set when the question was refused before retrieval.
	Rejection *Rejection
	// Fallback reports that the template answer replaced a failed or empty
	// model answer.
	Fallback bool
	// Generator names the generator that produced Answer.
	Generator string
	// Duration is the wall time spent in Query.
	Duration time.Duration
}

// State is shorthand for r.Outcome.State.
func (r *Response) State() relevance.State {
	return r.Outcome.State
}

// Query answers req. Rejections and generation failures are reported inside
// the Response; only retrieval failures are returned as errors, wrapping
// ErrRetrieval.
func (p *Pipeline) Query(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	log := logging.FromContext(ctx)
	q := strings.TrimSpace(req.Question)

	resp := &Response{Question: q, Category: req.Category}

	if msg, ok := scope.CheckLength(q, p.minLength); !ok {
		kind := RejectTooShort
		if q == "" {
			kind = RejectEmpty
		}
		resp.Rejection = &Rejection{Kind: kind, Message: msg}
		resp.Duration = time.Since(start)
		return resp, nil
	}
	if ok, reason := p.classifier.IsInScope(q); !ok {
		resp.Rejection = &Rejection{Kind: RejectOutOfScope, Message: reason}
		resp.Duration = time.Since(start)
		return resp, nil
	}

	k := req.TopK
	if k <= 0 {
		k = p.retriever.DefaultTopK()
	}

	results, err := p.retriever.RetrieveWithFilter(ctx, q, req.Category, k)
	if err != nil {
		log.Error("retrieval failed", slog.String("category", req.Category), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	resp.Outcome = p.policy.Evaluate(results, req.Category)

	var blocks []rag.RetrievalResult
	var opts []prompt.Option
	if p.systemRole != "" {
		opts = append(opts, prompt.WithSystemRole(p.systemRole))
	}
	switch resp.Outcome.State {
	case relevance.Confident:
		blocks = resp.Outcome.Evidence
	case relevance.LowConfidence:
		blocks = resp.Outcome.Reference
		opts = append(opts, prompt.WithInsufficiencyNotice())
	default:
		opts = append(opts, prompt.WithInsufficiencyNotice())
	}

	render := func(rs []rag.RetrievalResult) string {
		return prompt.BuildPrompt(q, prompt.FormatContext(rs), opts...)
	}
	blocks, resp.Trimmed = budget.TrimTail(blocks, render, p.maxTokens, 1)
	if resp.Trimmed > 0 {
		log.Warn("budget: dropped context blocks to fit prompt",
			slog.Int("dropped", resp.Trimmed),
			slog.Int("kept", len(blocks)),
			slog.Int("max_tokens", p.maxTokens),
		)
	}

	if resp.Outcome.State == relevance.Confident {
		resp.Evidence = blocks
	} else {
		resp.Reference = blocks
	}
	resp.Prompt = render(blocks)

	genReq := &generator.Request{
		Prompt:   resp.Prompt,
		Question: q,
		State:    resp.Outcome.State,
		Blocks:   blocks,
	}
	resp.Generator = p.generator.Name()
	answer, err := p.generator.Generate(ctx, genReq)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = generator.ErrEmptyAnswer
	}
	if err != nil {
		log.Warn("generation failed, using template answer",
			slog.String("generator", resp.Generator),
			slog.Any("error", err),
		)
		answer = generator.Template(genReq)
		resp.Fallback = true
		resp.Generator = generator.TemplateName
	}
	resp.Answer = answer
	resp.ID = uuid.NewString()
	resp.Duration = time.Since(start)

	log.Info("query answered",
		slog.String("id", resp.ID),
		slog.String("state", resp.Outcome.State.String()),
		slog.Int("retrieved", resp.Outcome.Retrieved),
		slog.Int("above_threshold", resp.Outcome.AboveThreshold),
		slog.Bool("fallback", resp.Fallback),
		slog.Duration("duration", resp.Duration),
	)

	p.record(ctx, resp)
	return resp, nil
}

// record appends resp to the query log. Failures are logged, not returned.
func (p *Pipeline) record(ctx context.Context, resp *Response) {
	if p.queryLog == nil {
		return
	}
	rec := &store.QueryRecord{
		ID:           resp.ID,
		Question:     resp.Question,
		Category:     resp.Category,
		State:        resp.Outcome.State.String(),
		Retrieved:    resp.Outcome.Retrieved,
		Kept:         len(resp.Evidence) + len(resp.Reference),
		TopScore:     resp.Outcome.TopScore,
		AverageScore: resp.Outcome.AverageScore,
		Fallback:     resp.Fallback,
		Generator:    resp.Generator,
	}
	if err := p.queryLog.Append(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn("query log: failed to persist query", slog.Any("error", err))
	}
}

// Info describes the pipeline's configuration.
type Info struct {
	Generator   string           `json:"generator"`
	DefaultTopK int              `json:"default_top_k"`
	ChunkCount  int              `json:"chunk_count"`
	Policy      relevance.Policy `json:"policy"`
	MinLength   int              `json:"min_length"`
	Store       map[string]any   `json:"store,omitempty"`
}

// Info returns the pipeline's configuration and store summary.
func (p *Pipeline) Info() Info {
	info := Info{
		Generator:   p.generator.Name(),
		DefaultTopK: p.retriever.DefaultTopK(),
		Policy:      p.policy,
		MinLength:   p.minLength,
	}
	if p.store != nil {
		info.ChunkCount = p.store.ChunkCount()
		info.Store = p.store.Summary()
	}
	return info
}
