// Package config provides YAML-based configuration for cqa.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so a .env file or exported variables
// override anything in the file.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. CQA_CONFIG environment variable
//  3. ~/.cqa/config.yaml
//  4. ./cqa.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the answer generation backend.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the query embedder and its cache.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Store configures the on-disk vector store.
	Store StoreConfig `yaml:"store"`

	// Qdrant configures the optional Qdrant search backend.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Retrieval configures top-k and the relevance gate.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// QueryLog configures query log persistence.
	QueryLog QueryLogConfig `yaml:"query_log"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds generation backend settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini, template.
	Provider string `yaml:"provider"`
	// Name is the model (or Azure deployment) name.
	Name string `yaml:"name"`
	// BaseURL is the backend endpoint.
	BaseURL string `yaml:"base_url"`
	// APIKey authenticates the backend. Prefer env var MODEL_API_KEY.
	APIKey string `yaml:"api_key"`
	// MaxTokens is the maximum number of tokens in the answer.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls answer randomness.
	Temperature float32 `yaml:"temperature"`
	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// EmbeddingConfig holds query embedder settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// Cache configures the Redis embedding cache.
	Cache CacheConfig `yaml:"cache"`
}

// CacheConfig holds Redis embedding cache settings.
type CacheConfig struct {
	// Addr is host:port of the Redis server. Empty disables the cache.
	Addr string `yaml:"addr"`
	// Password is the Redis AUTH password. Prefer env var REDIS_PASSWORD.
	Password string `yaml:"password"`
	// TTL is the cached vector lifetime, e.g. "24h".
	TTL string `yaml:"ttl"`
}

// StoreConfig holds vector store settings.
type StoreConfig struct {
	// Dir is the directory holding the index and metadata files.
	Dir string `yaml:"dir"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Empty keeps search on the local index.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// RetrievalConfig holds retrieval and relevance gate settings.
type RetrievalConfig struct {
	// TopK is the default number of results per query.
	TopK int `yaml:"top_k"`
	// Threshold is the minimum similarity for evidence.
	Threshold float32 `yaml:"threshold"`
	// CategoryMinMatches is the narrowing cutoff.
	CategoryMinMatches int `yaml:"category_min_matches"`
	// ReferenceLimit caps low-confidence reference results.
	ReferenceLimit int `yaml:"reference_limit"`
	// QuestionMinLength is the shortest accepted question.
	QuestionMinLength int `yaml:"question_min_length"`
	// PromptMaxTokens trims context to fit; zero disables trimming.
	PromptMaxTokens int `yaml:"prompt_max_tokens"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var CQA_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// QueryLogConfig holds query log settings.
type QueryLogConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_NAME", func(c *Config) string { return c.Model.Name }},
	{"MODEL_BASE_URL", func(c *Config) string { return c.Model.BaseURL }},
	{"MODEL_API_KEY", func(c *Config) string { return c.Model.APIKey }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"REDIS_ADDR", func(c *Config) string { return c.Embedding.Cache.Addr }},
	{"REDIS_PASSWORD", func(c *Config) string { return c.Embedding.Cache.Password }},
	{"EMBEDDING_CACHE_TTL", func(c *Config) string { return c.Embedding.Cache.TTL }},
	{"CQA_STORE_DIR", func(c *Config) string { return c.Store.Dir }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RELEVANCE_THRESHOLD", func(c *Config) string { return float32Str(c.Retrieval.Threshold) }},
	{"RELEVANCE_CATEGORY_MIN_MATCHES", func(c *Config) string { return intStr(c.Retrieval.CategoryMinMatches) }},
	{"RELEVANCE_REFERENCE_LIMIT", func(c *Config) string { return intStr(c.Retrieval.ReferenceLimit) }},
	{"QUESTION_MIN_LENGTH", func(c *Config) string { return intStr(c.Retrieval.QuestionMinLength) }},
	{"PROMPT_MAX_TOKENS", func(c *Config) string { return intStr(c.Retrieval.PromptMaxTokens) }},
	{"CQA_HOST", func(c *Config) string { return c.Server.Host }},
	{"CQA_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"CQA_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"CQA_QUERY_LOG", func(c *Config) string { return c.QueryLog.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set: do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("CQA_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".cqa", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("cqa.yaml"); err == nil {
		return "cqa.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
