package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/complaintqa/internal/config"
	"github.com/54b3r/complaintqa/internal/embedder"
	"github.com/54b3r/complaintqa/internal/generator"
	"github.com/54b3r/complaintqa/internal/pipeline"
	"github.com/54b3r/complaintqa/internal/provider"
	"github.com/54b3r/complaintqa/internal/rag"
	"github.com/54b3r/complaintqa/internal/server"
	"github.com/54b3r/complaintqa/internal/store"
	"github.com/54b3r/complaintqa/internal/tracing"
)

// app holds everything a query-serving command needs.
type app struct {
	// pipeline answers questions.
	pipeline *pipeline.Pipeline
	// vectors is the loaded vector store.
	vectors *rag.Store
	// retrieval is the resolved retrieval settings.
	retrieval *config.Retrieval
	// pingers check every external dependency that was wired in.
	pingers []server.Pinger
	// closers run in reverse order on shutdown.
	closers []func()
}

// Close releases every resource in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// appOptions tunes buildApp.
type appOptions struct {
	// queryLog opens the SQLite query log when true.
	queryLog bool
	// tracing registers the Langfuse callback handler when configured.
	tracing bool
}

// buildApp wires the embedder, vector store, generator and query log into a
// pipeline. On error every resource acquired so far is released.
func buildApp(ctx context.Context, log *slog.Logger, opts appOptions) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.retrieval, err = config.RetrievalFromEnv(); err != nil {
		return nil, err
	}

	if opts.tracing {
		if handler, flush, ok := tracing.Setup(tracing.ConfigFromEnv()); ok {
			callbacks.AppendGlobalHandlers(handler)
			a.closers = append(a.closers, flush)
			log.Info("langfuse tracing enabled")
		} else {
			log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
		}
	}

	embCfg := embedder.ConfigFromEnv()
	emb, err := buildEmbedder(ctx, embCfg, log, a)
	if err != nil {
		return nil, err
	}

	loadOpts := &rag.LoadOptions{EmbedderDimension: embCfg.Dimensions, Logger: log}
	qcfg, err := config.QdrantFromEnv(embCfg.Dimensions)
	if err != nil {
		return nil, err
	}
	if qcfg != nil {
		idx, err := rag.NewQdrantIndex(ctx, qcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", qcfg.Host, qcfg.Port, err)
		}
		a.closers = append(a.closers, func() { _ = idx.Close() })
		a.pingers = append(a.pingers, server.NewPinger("qdrant", idx.Ping))
		loadOpts.Index = idx
		log.Info("qdrant index ready",
			slog.String("host", qcfg.Host),
			slog.Int("port", qcfg.Port),
			slog.String("collection", qcfg.Collection),
			slog.Int("points", idx.Len()),
		)
	}

	if a.vectors, err = rag.Load(config.StoreDir(), loadOpts); err != nil {
		return nil, err
	}
	embedder.Validate(embCfg, a.vectors.ModelName(), log)
	a.pingers = append(a.pingers, server.NewStorePinger("vector_store", a.vectors))

	retriever, err := rag.NewRetriever(emb, a.vectors, a.retrieval.TopK)
	if err != nil {
		return nil, err
	}

	gen := generator.New(ctx, provider.ConfigFromEnv(), log)
	if mg, ok := gen.(*generator.ModelGenerator); ok {
		a.pingers = append(a.pingers, server.NewBreakerPinger("generator", mg))
	}

	var queryLog store.QueryLog
	if opts.queryLog {
		if qs := openQueryLog(log); qs != nil {
			queryLog = qs
			a.closers = append(a.closers, func() { _ = qs.Close() })
			a.pingers = append(a.pingers, server.NewPinger("query_log", qs.Ping))
		}
	}

	a.pipeline, err = pipeline.New(&pipeline.Config{
		Retriever:       retriever,
		Generator:       gen,
		Policy:          a.retrieval.Policy,
		MinLength:       a.retrieval.MinLength,
		PromptMaxTokens: a.retrieval.PromptMaxTokens,
		QueryLog:        queryLog,
		Store:           a.vectors,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// buildEmbedder constructs the query embedder, wrapping it in the Redis
// cache when REDIS_ADDR is set.
func buildEmbedder(ctx context.Context, cfg *embedder.Config, log *slog.Logger, a *app) (rag.Embedder, error) {
	emb, err := embedder.New(cfg)
	if err != nil {
		return nil, err
	}
	if oe, ok := emb.(*embedder.OllamaEmbedder); ok {
		a.pingers = append(a.pingers, server.NewPinger("ollama_embeddings", oe.Ping))
	}
	log.Info("embedder initialised",
		slog.String("provider", cfg.Provider),
		slog.String("model", cfg.Model),
		slog.Int("dimensions", cfg.Dimensions),
	)

	if cfg.CacheAddr == "" {
		return emb, nil
	}
	backend := embedder.NewRedisBackend(&embedder.RedisConfig{Addr: cfg.CacheAddr, Password: cfg.CachePassword})
	a.closers = append(a.closers, func() { _ = backend.Close() })
	a.pingers = append(a.pingers, server.NewPinger("redis", backend.Ping))
	if err := backend.Ping(ctx); err != nil {
		// The cache degrades to a pass-through, so startup continues.
		log.Warn("embedding cache unreachable", slog.String("addr", cfg.CacheAddr), slog.Any("error", err))
	}
	log.Info("embedding cache enabled", slog.String("addr", cfg.CacheAddr), slog.Duration("ttl", cfg.CacheTTL))
	return embedder.NewCached(emb, backend, cfg.Model, cfg.CacheTTL, log), nil
}

// openQueryLog opens the SQLite query log. Failures disable the log rather
// than the command.
func openQueryLog(log *slog.Logger) *store.SQLiteStore {
	path, err := config.QueryLogPath()
	if err != nil {
		log.Warn("query log: could not resolve default DB path, disabling", slog.Any("error", err))
		return nil
	}
	if path == "" {
		log.Info("query log: disabled via CQA_QUERY_LOG=" + config.QueryLogDisabled)
		return nil
	}
	qs, err := store.Open(path)
	if err != nil {
		log.Warn("query log: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("query log: store opened", slog.String("path", path))
	return qs
}

// parseThresholds parses a comma-separated list such as "0.25,0.3,0.35".
func parseThresholds(s string) ([]float32, error) {
	var out []float32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold %q", part)
		}
		f := float32(v)
		if f < 0 || f > 1 {
			return nil, fmt.Errorf("threshold %v out of range [0, 1]", f)
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no thresholds given")
	}
	return out, nil
}

// envOrDefault returns the value of key or fallback when it is unset.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envIntOrDefault returns key parsed as an int, or fallback when it is unset
// or malformed.
func envIntOrDefault(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
