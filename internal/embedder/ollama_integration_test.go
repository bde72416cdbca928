//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/54b3r/complaintqa/internal/rag"
)

// TestOllamaEmbedder_SeparatesProducts embeds complaint narratives with a
// local Ollama model and checks that two credit card complaints land closer
// together than a credit card complaint and a money transfer complaint.
// Retrieval and the relevance gate both depend on that separation.
//
//	ollama pull all-minilm
//	go test -tags=integration -run TestOllamaEmbedder_SeparatesProducts ./internal/embedder/
//
// OLLAMA_HOST and EMBEDDING_MODEL override the defaults.
func TestOllamaEmbedder_SeparatesProducts(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}
	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := emb.Ping(ctx); err != nil {
		t.Skipf("ollama not reachable at %s: %v", host, err)
	}

	narratives := []string{
		"I was charged a late fee on my credit card even though I paid before the due date.",
		"My credit card company added interest charges and a late fee after my payment posted on time.",
		"My international money transfer to Kampala has been pending for two weeks and the recipient has nothing.",
	}
	vecs, err := emb.Embed(ctx, narratives)
	if err != nil {
		t.Fatalf("Embed: %v (is %q pulled?)", err, model)
	}
	if len(vecs) != len(narratives) {
		t.Fatalf("got %d embeddings for %d narratives", len(vecs), len(narratives))
	}
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) != dim || dim == 0 {
			t.Fatalf("embedding %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	similarity := func(a, b []float32) float32 {
		na, nb := rag.Normalize(a), rag.Normalize(b)
		var dot float32
		for i := range na {
			dot += na[i] * nb[i]
		}
		return dot
	}
	sameProduct := similarity(vecs[0], vecs[1])
	crossProduct := similarity(vecs[0], vecs[2])
	if sameProduct <= crossProduct {
		t.Errorf("card/card similarity %.3f should exceed card/transfer similarity %.3f", sameProduct, crossProduct)
	}
	t.Logf("model=%s dim=%d card/card=%.3f card/transfer=%.3f", model, dim, sameProduct, crossProduct)
}
