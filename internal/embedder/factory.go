package embedder

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/complaintqa/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "all-minilm"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of all-minilm
	// (all-MiniLM-L6-v2). Other models differ; override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 384
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Config selects and configures the query embedder.
type Config struct {
	// Provider is ollama, openai or azure.
	Provider string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// Dimensions is the expected output dimension.
	Dimensions int
	// APIKey authenticates openai and azure.
	APIKey string
	// Endpoint is the Ollama host, OpenAI base URL or Azure resource endpoint.
	Endpoint string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// CacheAddr enables the Redis embedding cache when set (host:port).
	CacheAddr string
	// CachePassword is the Redis AUTH password.
	CachePassword string
	// CacheTTL is the lifetime of cached vectors.
	CacheTTL time.Duration
}

// DefaultDimensions returns the default embedding vector size for the given
// backend name. EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "openai", "azure":
		return defaultOpenAIDimensions
	default:
		return defaultOllamaDimensions
	}
}

// ConfigFromEnv resolves a Config with cascading defaults.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER; if unset, MODEL_PROVIDER when it names an
//     embedding-capable backend (ollama, openai, azure); else ollama
//  2. EMBEDDING_MODEL overrides the backend default model
//  3. EMBEDDING_API_KEY, falling back to MODEL_API_KEY
//  4. EMBEDDING_ENDPOINT, falling back to MODEL_BASE_URL for azure
//  5. EMBEDDING_DIMENSIONS overrides the default dimensions
//  6. REDIS_ADDR, REDIS_PASSWORD, EMBEDDING_CACHE_TTL configure the cache
func ConfigFromEnv() *Config {
	backend := getEnv("EMBEDDING_PROVIDER")
	if backend == "" {
		switch p := getEnv("MODEL_PROVIDER"); p {
		case "openai", "azure", "ollama":
			backend = p
		default:
			backend = "ollama"
		}
	}

	defaultModel := defaultOllamaModel
	if backend != "ollama" {
		defaultModel = defaultOpenAIModel
	}

	endpoint := getEnv("EMBEDDING_ENDPOINT")
	if endpoint == "" && backend == "azure" {
		endpoint = getEnv("MODEL_BASE_URL")
	}

	apiKey := getEnv("EMBEDDING_API_KEY")
	if apiKey == "" {
		apiKey = getEnv("MODEL_API_KEY")
	}

	ttl, err := time.ParseDuration(getEnvOrDefault("EMBEDDING_CACHE_TTL", "24h"))
	if err != nil {
		ttl = 24 * time.Hour
	}

	return &Config{
		Provider:      backend,
		Model:         getEnvOrDefault("EMBEDDING_MODEL", defaultModel),
		Dimensions:    DefaultDimensions(backend),
		APIKey:        apiKey,
		Endpoint:      endpoint,
		APIVersion:    getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		CacheAddr:     getEnv("REDIS_ADDR"),
		CachePassword: getEnv("REDIS_PASSWORD"),
		CacheTTL:      ttl,
	}
}

// New constructs the embedder selected by cfg, without the cache.
func New(cfg *Config) (rag.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		host := cfg.Endpoint
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaEmbedder(&OllamaConfig{Host: host, Model: cfg.Model}), nil

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai requires EMBEDDING_API_KEY or MODEL_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil

	case "azure":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure requires EMBEDDING_API_KEY or MODEL_API_KEY")
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires EMBEDDING_ENDPOINT or MODEL_BASE_URL")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: ollama, openai, azure", cfg.Provider)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
