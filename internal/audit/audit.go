// Package audit writes one structured log line per CLI invocation recording
// the command, the config file, the complaint store it will read and the
// environment that shapes retrieval and generation. Secret values are
// reduced to "set" or "unset".
package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/54b3r/complaintqa/internal/rag"
)

// envGroup is one concern's environment variables. Names listed in secret
// are logged by presence only.
type envGroup struct {
	name   string
	keys   []string
	secret map[string]bool
}

// envGroups is the ordered audit layout.
var envGroups = []envGroup{
	{
		name:   "generation",
		keys:   []string{"MODEL_PROVIDER", "MODEL_NAME", "MODEL_BASE_URL", "MODEL_API_KEY", "AZURE_OPENAI_DEPLOYMENT"},
		secret: map[string]bool{"MODEL_API_KEY": true},
	},
	{
		name:   "embedding",
		keys:   []string{"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS", "EMBEDDING_API_KEY", "REDIS_ADDR", "REDIS_PASSWORD"},
		secret: map[string]bool{"EMBEDDING_API_KEY": true, "REDIS_PASSWORD": true},
	},
	{
		name: "retrieval",
		keys: []string{"RETRIEVAL_TOP_K", "RELEVANCE_THRESHOLD", "RELEVANCE_CATEGORY_MIN_MATCHES"},
	},
	{
		name:   "storage",
		keys:   []string{"CQA_STORE_DIR", "QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION", "QDRANT_API_KEY", "CQA_QUERY_LOG"},
		secret: map[string]bool{"QDRANT_API_KEY": true},
	},
	{
		name:   "server",
		keys:   []string{"CQA_API_KEY", "LOG_LEVEL", "LOG_FORMAT"},
		secret: map[string]bool{"CQA_API_KEY": true},
	},
	{
		name:   "tracing",
		keys:   []string{"LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY"},
		secret: map[string]bool{"LANGFUSE_PUBLIC_KEY": true, "LANGFUSE_SECRET_KEY": true},
	},
}

// LogCommandStart logs the audit line for command. configPath is the YAML
// file that was loaded, if any; storeDir is the complaint store directory
// the command will use.
func LogCommandStart(log *slog.Logger, command, configPath, storeDir string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", homeRelative(configPath, "none")),
		storeAttr(storeDir),
	}
	for _, g := range envGroups {
		values := make([]any, 0, len(g.keys))
		for _, key := range g.keys {
			values = append(values, slog.String(key, redact(os.Getenv(key), g.secret[key])))
		}
		attrs = append(attrs, slog.Group(g.name, values...))
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// storeAttr reports which store artifacts exist in dir.
func storeAttr(dir string) slog.Attr {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}
	return slog.Group("store",
		slog.String("dir", homeRelative(dir, "unset")),
		slog.Bool("index", exists(rag.IndexFileName)),
		slog.Bool("metadata", exists(rag.MetadataFileName)),
	)
}

// redact returns "set" or "unset" for secrets and the value, or "unset",
// otherwise.
func redact(v string, secret bool) string {
	switch {
	case v == "":
		return "unset"
	case secret:
		return "set"
	default:
		return v
	}
}

// homeRelative shortens paths under the home directory to "~/...". An empty
// p is logged as the placeholder empty.
func homeRelative(p, empty string) string {
	if p == "" {
		return empty
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
