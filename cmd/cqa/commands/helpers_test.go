package commands

import (
	"testing"
)

func TestParseThresholds(t *testing.T) {
	t.Parallel()

	got, err := parseThresholds(" 0.25, 0.3,,0.35 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{0.25, 0.3, 0.35}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("threshold[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"", " , ", "abc", "0.3,1.5", "-0.1"} {
		if _, err := parseThresholds(bad); err == nil {
			t.Errorf("parseThresholds(%q): want error, got nil", bad)
		}
	}
}

func TestEnvIntOrDefault(t *testing.T) {
	t.Setenv("CQA_TEST_PORT", "9090")
	if got := envIntOrDefault("CQA_TEST_PORT", 8080); got != 9090 {
		t.Errorf("got %d, want 9090", got)
	}
	t.Setenv("CQA_TEST_PORT", "nine")
	if got := envIntOrDefault("CQA_TEST_PORT", 8080); got != 8080 {
		t.Errorf("malformed value: got %d, want fallback 8080", got)
	}
	if got := envOrDefault("CQA_TEST_UNSET_HOST", "127.0.0.1"); got != "127.0.0.1" {
		t.Errorf("got %q, want fallback", got)
	}
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	t.Parallel()
	root := NewRootCmd()
	for _, name := range []string{"ask", "serve", "index", "info", "calibrate", "version"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}
}
