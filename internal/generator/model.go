package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sony/gobreaker"

	"github.com/54b3r/complaintqa/internal/budget"
	"github.com/54b3r/complaintqa/internal/logging"
)

// ModelConfig tunes a ModelGenerator.
type ModelConfig struct {
	// Name identifies the backend and model, e.g. "ollama/llama3".
	Name string

	// MaxTokens caps answer length. Zero leaves the backend default.
	MaxTokens int

	// Temperature is the sampling temperature.
	Temperature float32

	// FailureThreshold is the number of consecutive failures that opens the
	// breaker (default: 3).
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before probing the
	// backend again (default: 30s).
	OpenTimeout time.Duration
}

// ModelGenerator answers with a chat model behind a circuit breaker. While
// the breaker is open, Generate fails fast with ErrUnavailable.
type ModelGenerator struct {
	// chat is the underlying chat model.
	chat model.BaseChatModel

	// breaker guards chat against repeated backend failures.
	breaker *gobreaker.CircuitBreaker

	// cfg holds the resolved configuration.
	cfg ModelConfig
}

// NewModel wraps chat in a ModelGenerator.
func NewModel(chat model.BaseChatModel, cfg *ModelConfig) *ModelGenerator {
	c := ModelConfig{}
	if cfg != nil {
		c = *cfg
	}
	if c.Name == "" {
		c.Name = "model"
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 30 * time.Second
	}

	threshold := c.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        c.Name,
		MaxRequests: 1,
		Timeout:     c.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})

	return &ModelGenerator{chat: chat, breaker: breaker, cfg: c}
}

// Name implements Generator.
func (g *ModelGenerator) Name() string {
	return g.cfg.Name
}

// Generate sends req.Prompt as a single user message and returns the trimmed
// answer. An empty answer is reported as ErrEmptyAnswer.
func (g *ModelGenerator) Generate(ctx context.Context, req *Request) (string, error) {
	opts := []model.Option{model.WithTemperature(g.cfg.Temperature)}
	if g.cfg.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(g.cfg.MaxTokens))
	}

	msgs := []*schema.Message{schema.UserMessage(req.Prompt)}
	logging.FromContext(ctx).Debug("generator: sending prompt",
		slog.String("generator", g.cfg.Name),
		slog.Int("estimated_tokens", budget.EstimateMessages(msgs)),
		slog.String("breaker", g.State()),
	)

	out, err := g.breaker.Execute(func() (interface{}, error) {
		msg, err := g.chat.Generate(ctx, msgs, opts...)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			return "", nil
		}
		return msg.Content, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, g.cfg.Name, err)
		}
		return "", fmt.Errorf("generator: %s: %w", g.cfg.Name, err)
	}

	answer := strings.TrimSpace(out.(string))
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}

// State reports the breaker state ("closed", "half-open" or "open").
func (g *ModelGenerator) State() string {
	return g.breaker.State().String()
}
