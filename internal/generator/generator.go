// Package generator turns an assembled prompt into answer text. Two variants
// exist: ModelGenerator calls a chat model backend, TemplateGenerator builds
// a deterministic extractive answer from the retrieved evidence. New picks
// one at construction time.
package generator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/54b3r/complaintqa/internal/provider"
	"github.com/54b3r/complaintqa/internal/rag"
	"github.com/54b3r/complaintqa/internal/relevance"
)

// ErrUnavailable is returned when the model backend cannot serve a request,
// including while its circuit breaker is open.
var ErrUnavailable = errors.New("generator: model backend unavailable")

// ErrEmptyAnswer is returned when the model produced no text.
var ErrEmptyAnswer = errors.New("generator: model returned an empty answer")

// Request is one generation call: the rendered prompt together with the
// structured data it was rendered from. Model backends read Prompt; the
// template reads Question, State and Blocks and never parses Prompt.
type Request struct {
	// Prompt is the exact text sent to a model backend.
	Prompt string

	// Question is the trimmed user question.
	Question string

	// State is the relevance gate decision.
	State relevance.State

	// Blocks are the context blocks in the prompt, in order: evidence when
	// State is Confident, reference material when it is LowConfidence.
	Blocks []rag.RetrievalResult
}

// Generator produces answer text for a request.
// Implementations must be safe to call from multiple goroutines.
type Generator interface {
	// Generate returns the answer for req.
	Generate(ctx context.Context, req *Request) (string, error)

	// Name identifies the generator in logs and diagnostics.
	Name() string
}

// New binds the generator for cfg. It returns a ModelGenerator when the
// backend builds, and a TemplateGenerator when cfg selects the template
// backend or the backend fails to build. Build failures are logged, never
// returned.
func New(ctx context.Context, cfg *provider.Config, log *slog.Logger) Generator {
	if log == nil {
		log = slog.Default()
	}
	if cfg == nil || cfg.Backend == provider.BackendTemplate {
		log.Info("generator bound", slog.String("generator", TemplateName))
		return NewTemplate()
	}

	chat, err := provider.New(ctx, cfg)
	if err != nil {
		log.Warn("model backend unavailable, answers will use the template generator",
			slog.String("backend", string(cfg.Backend)),
			slog.String("error", err.Error()),
		)
		return NewTemplate()
	}

	g := NewModel(chat, &ModelConfig{
		Name:        string(cfg.Backend) + "/" + modelName(cfg),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	log.Info("generator bound", slog.String("generator", g.Name()))
	return g
}

func modelName(cfg *provider.Config) string {
	if cfg.Backend == provider.BackendAzure {
		return cfg.AzureDeployment
	}
	return cfg.Model
}
