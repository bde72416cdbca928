package audit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/54b3r/complaintqa/internal/rag"
)

func TestRedact(t *testing.T) {
	t.Parallel()
	cases := []struct {
		value  string
		secret bool
		want   string
	}{
		{"sk-abc123", true, "set"},
		{"", true, "unset"},
		{"openai", false, "openai"},
		{"", false, "unset"},
	}
	for _, tc := range cases {
		if got := redact(tc.value, tc.secret); got != tc.want {
			t.Errorf("redact(%q, %v) = %q, want %q", tc.value, tc.secret, got, tc.want)
		}
	}
}

func TestHomeRelative(t *testing.T) {
	t.Parallel()
	if got := homeRelative("", "none"); got != "none" {
		t.Errorf("empty path: got %q, want none", got)
	}
	if got := homeRelative("/tmp/config.yaml", "none"); got != "/tmp/config.yaml" {
		t.Errorf("got %q, want /tmp/config.yaml", got)
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		if got := homeRelative(filepath.Join(home, ".cqa", "config.yaml"), "none"); got != "~/.cqa/config.yaml" {
			t.Errorf("got %q, want ~/.cqa/config.yaml", got)
		}
	}
}

func TestEnvGroups_SecretsAreListed(t *testing.T) {
	t.Parallel()
	for _, g := range envGroups {
		for key := range g.secret {
			found := false
			for _, k := range g.keys {
				found = found || k == key
			}
			if !found {
				t.Errorf("group %s marks %s secret but does not log it", g.name, key)
			}
		}
	}
}

func TestLogCommandStart(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, rag.MetadataFileName), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("MODEL_API_KEY", "sk-very-secret")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("RELEVANCE_THRESHOLD", "0.4")

	var buf bytes.Buffer
	LogCommandStart(slog.New(slog.NewJSONHandler(&buf, nil)), "ask", "", dir)

	out := buf.String()
	if strings.Contains(out, "sk-very-secret") || strings.Contains(out, "hunter2") {
		t.Fatalf("secret value leaked into audit log: %s", out)
	}

	var entry struct {
		Command    string            `json:"command"`
		ConfigFile string            `json:"config_file"`
		Generation map[string]string `json:"generation"`
		Embedding  map[string]string `json:"embedding"`
		Retrieval  map[string]string `json:"retrieval"`
		Store      struct {
			Index    bool `json:"index"`
			Metadata bool `json:"metadata"`
		} `json:"store"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if entry.Command != "ask" || entry.ConfigFile != "none" {
		t.Errorf("command=%q config_file=%q", entry.Command, entry.ConfigFile)
	}
	if entry.Generation["MODEL_PROVIDER"] != "openai" || entry.Generation["MODEL_API_KEY"] != "set" {
		t.Errorf("generation group = %v", entry.Generation)
	}
	if entry.Embedding["REDIS_PASSWORD"] != "set" {
		t.Errorf("embedding group = %v", entry.Embedding)
	}
	if entry.Retrieval["RELEVANCE_THRESHOLD"] != "0.4" {
		t.Errorf("retrieval group = %v", entry.Retrieval)
	}
	if entry.Store.Index || !entry.Store.Metadata {
		t.Errorf("store = %+v, want metadata only", entry.Store)
	}
}
