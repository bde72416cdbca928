// Package provider selects and constructs the chat model backend used for
// answer generation. Supported backends: Ollama, OpenAI, Azure OpenAI,
// Volcengine Ark, Google Gemini. The "template" backend builds no model and
// tells the caller to answer from the deterministic template generator.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcengine Ark model runtime.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendTemplate selects no model at all.
	BackendTemplate Backend = "template"
)

// Backends lists every accepted backend value.
var Backends = []Backend{BackendOllama, BackendOpenAI, BackendAzure, BackendArk, BackendGemini, BackendTemplate}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Model is the model name to use (e.g. "gpt-4o", "llama3").
	Model string

	// BaseURL overrides the default API endpoint (required for Azure).
	BaseURL string

	// APIKey is the authentication credential for the selected provider.
	APIKey string

	// AzureDeployment is the Azure OpenAI deployment name (Azure only).
	AzureDeployment string

	// AzureAPIVersion is the Azure OpenAI REST API version (Azure only).
	AzureAPIVersion string

	// MaxTokens caps the number of tokens the model may generate per answer.
	MaxTokens int

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Validate reports missing settings for the selected backend, naming the
// environment variable that supplies each one.
func (c *Config) Validate() error {
	var missing []string
	switch c.Backend {
	case BackendTemplate:
		return nil
	case BackendOllama:
		if c.Model == "" {
			missing = append(missing, "MODEL_NAME")
		}
	case BackendOpenAI, BackendArk, BackendGemini:
		if c.APIKey == "" {
			missing = append(missing, "MODEL_API_KEY")
		}
		if c.Model == "" {
			missing = append(missing, "MODEL_NAME")
		}
	case BackendAzure:
		if c.APIKey == "" {
			missing = append(missing, "MODEL_API_KEY")
		}
		if c.BaseURL == "" {
			missing = append(missing, "MODEL_BASE_URL")
		}
		if c.AzureDeployment == "" {
			missing = append(missing, "AZURE_OPENAI_DEPLOYMENT")
		}
	default:
		valid := make([]string, len(Backends))
		for i, b := range Backends {
			valid[i] = string(b)
		}
		return fmt.Errorf("provider: unknown backend %q, valid values: %s", c.Backend, strings.Join(valid, ", "))
	}
	if len(missing) > 0 {
		return fmt.Errorf("provider: %s backend requires %s", c.Backend, strings.Join(missing, ", "))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("provider: MODEL_TEMPERATURE %.2f outside [0, 2]", c.Temperature)
	}
	return nil
}
