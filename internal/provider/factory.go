package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
)

// ErrNoModel is returned by New for BackendTemplate.
var ErrNoModel = errors.New("provider: template backend has no chat model")

// Default model names per backend when MODEL_NAME is unset.
var defaultModels = map[Backend]string{
	BackendOllama: "llama3",
	BackendOpenAI: "gpt-4o-mini",
	BackendGemini: "gemini-1.5-flash",
}

// ConfigFromEnv resolves a Config from environment variables.
//
//	MODEL_PROVIDER           = ollama | openai | azure | ark | gemini | template (default: ollama)
//	MODEL_NAME               model name (default per backend)
//	MODEL_BASE_URL           endpoint override (Azure endpoint for azure)
//	MODEL_API_KEY            credential
//	AZURE_OPENAI_DEPLOYMENT  deployment name (azure)
//	AZURE_OPENAI_API_VERSION REST API version (default: 2024-02-01)
//	MODEL_MAX_TOKENS         answer token cap (default: 512)
//	MODEL_TEMPERATURE        sampling temperature (default: 0.2)
func ConfigFromEnv() *Config {
	backend := Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendOllama)))
	return &Config{
		Backend:         backend,
		Model:           getEnvOrDefault("MODEL_NAME", defaultModels[backend]),
		BaseURL:         os.Getenv("MODEL_BASE_URL"),
		APIKey:          os.Getenv("MODEL_API_KEY"),
		AzureDeployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
		AzureAPIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		MaxTokens:       getEnvInt("MODEL_MAX_TOKENS", 512),
		Temperature:     getEnvFloat32("MODEL_TEMPERATURE", 0.2),
	}
}

// New constructs a chat model from an explicit Config, delegating to the
// appropriate backend constructor. It validates the config first so callers
// get a clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendTemplate:
		return nil, ErrNoModel
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendArk:
		return newArk(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q", cfg.Backend)
	}
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

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
