package server

import (
	"context"
	"fmt"
)

// FuncPinger adapts a check function to the Pinger interface. It is used for
// dependencies that already expose a Ping method: the Qdrant index, the
// Redis embedding cache, the Ollama embedder and the SQLite query log.
type FuncPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// ping is the check.
	ping func(ctx context.Context) error
}

// NewPinger constructs a FuncPinger for the named dependency.
func NewPinger(name string, ping func(ctx context.Context) error) *FuncPinger {
	return &FuncPinger{name: name, ping: ping}
}

// Name returns the dependency label used in readiness responses.
func (p *FuncPinger) Name() string { return p.name }

// Ping runs the check and prefixes any failure with a short description.
func (p *FuncPinger) Ping(ctx context.Context) error {
	if err := p.ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// breakerState is satisfied by *generator.ModelGenerator.
type breakerState interface {
	State() string
}

// BreakerPinger reports the generation backend as not ready while its
// circuit breaker is open. It never calls the model, so checks cost no tokens.
type BreakerPinger struct {
	// name identifies the generator in readiness responses.
	name string
	// breaker exposes the breaker state.
	breaker breakerState
}

// NewBreakerPinger constructs a BreakerPinger for the named generator.
func NewBreakerPinger(name string, b breakerState) *BreakerPinger {
	return &BreakerPinger{name: name, breaker: b}
}

// Name returns the generator label used in readiness responses.
func (p *BreakerPinger) Name() string { return p.name }

// Ping returns an error while the breaker is open.
func (p *BreakerPinger) Ping(_ context.Context) error {
	if s := p.breaker.State(); s == "open" {
		return fmt.Errorf("circuit breaker %s, answers fall back to the template generator", s)
	}
	return nil
}

// storeState is satisfied by *rag.Store.
type storeState interface {
	ChunkCount() int
	Warnings() []string
}

// StorePinger reports the loaded complaint store. The store lives in memory,
// so its check never fails; an empty store or load-time consistency warnings
// mark it degraded instead.
type StorePinger struct {
	// name identifies the store in readiness responses.
	name string
	// store is the loaded vector store.
	store storeState
}

// NewStorePinger constructs a StorePinger for the named store.
func NewStorePinger(name string, s storeState) *StorePinger {
	return &StorePinger{name: name, store: s}
}

// Name returns the store label used in readiness responses.
func (p *StorePinger) Name() string { return p.name }

// Ping always succeeds.
func (p *StorePinger) Ping(_ context.Context) error { return nil }

// Warnings returns the store's consistency warnings, plus a note when no
// complaint chunks are loaded and every answer would be a refusal.
func (p *StorePinger) Warnings() []string {
	warnings := append([]string(nil), p.store.Warnings()...)
	if p.store.ChunkCount() == 0 {
		warnings = append(warnings, "store holds no complaint chunks; run `cqa index` to build it")
	}
	return warnings
}
