package tracing

import "testing"

func TestSetup_DisabledWithoutKeys(t *testing.T) {
	t.Parallel()
	for _, cfg := range []*Config{nil, {}, {PublicKey: "pk"}, {SecretKey: "sk"}} {
		h, flush, ok := Setup(cfg)
		if ok || h != nil || flush != nil {
			t.Errorf("Setup(%+v): want disabled", cfg)
		}
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "https://cloud.langfuse.com")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-lf")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	cfg := ConfigFromEnv()
	if cfg.Host != "https://cloud.langfuse.com" || cfg.PublicKey != "pk-lf" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Enabled() {
		t.Error("want disabled without secret key")
	}
}
