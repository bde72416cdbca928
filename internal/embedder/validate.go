package embedder

import (
	"log/slog"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"vicuna",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate warns about an embedder configuration that will load but is
// unlikely to retrieve well: a chat model used for embeddings, or a query
// model that differs from the one the store was built with. storeModel may
// be empty when unknown. It returns the warnings it logged.
func Validate(cfg *Config, storeModel string, log *slog.Logger) []string {
	if log == nil {
		log = slog.Default()
	}
	var warnings []string

	if looksLikeChatModel(cfg.Model) {
		w := "EMBEDDING_MODEL looks like a chat model, not an embedding model"
		log.Warn("embedder: "+w,
			slog.String("model", cfg.Model),
			slog.String("hint", "use a dedicated embedding model e.g. all-minilm, text-embedding-3-small"),
		)
		warnings = append(warnings, w)
	}

	if storeModel != "" && !sameModel(storeModel, cfg.Model) {
		w := "query embedding model differs from the model the store was built with"
		log.Warn("embedder: "+w,
			slog.String("query_model", cfg.Model),
			slog.String("store_model", storeModel),
			slog.String("hint", "rebuild the store with `cqa index` or set EMBEDDING_MODEL"),
		)
		warnings = append(warnings, w)
	}

	return warnings
}

// sameModel compares model names ignoring case, an Ollama ":tag" suffix and
// a "sentence-transformers/" style namespace.
func sameModel(a, b string) bool {
	norm := func(s string) string {
		s = strings.ToLower(s)
		if i := strings.LastIndex(s, "/"); i >= 0 {
			s = s[i+1:]
		}
		s, _, _ = strings.Cut(s, ":")
		return s
	}
	return norm(a) == norm(b)
}
