package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// candidateMultiplier widens the search pool before category filtering.
const candidateMultiplier = 3

// ErrEmptyEmbedding is returned when the embedder yields no vector for a query.
var ErrEmptyEmbedding = errors.New("rag: embedder returned empty result for query")

// Retriever embeds a query, normalizes it, and searches a VectorStore. It
// holds no mutable state and is safe for concurrent use when its embedder
// and store are.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a Retriever from the given Embedder and VectorStore.
// defaultTopK sets the fallback result count when k is 0.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Retriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// DefaultTopK reports the result count used when k is 0.
func (r *Retriever) DefaultTopK() int {
	return r.defaultTopK
}

// Retrieve returns up to k results ranked by descending similarity. An empty
// store yields an empty slice without calling the embedder. Search positions
// with no chunk or metadata are skipped.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]RetrievalResult, error) {
	if k <= 0 {
		k = r.defaultTopK
	}
	hits, err := r.search(ctx, query, r.pool(k, 1))
	if err != nil {
		return nil, err
	}
	return r.resolve(hits, "", k), nil
}

// RetrieveWithFilter returns up to k results whose product category equals
// category exactly. It searches candidateMultiplier*k candidates to absorb
// the filtering loss and never pads a short result. An empty category
// behaves like Retrieve.
func (r *Retriever) RetrieveWithFilter(ctx context.Context, query, category string, k int) ([]RetrievalResult, error) {
	if category == "" {
		return r.Retrieve(ctx, query, k)
	}
	if k <= 0 {
		k = r.defaultTopK
	}
	hits, err := r.search(ctx, query, r.pool(k, candidateMultiplier))
	if err != nil {
		return nil, err
	}
	return r.resolve(hits, category, k), nil
}

// pool sizes a search request as k*multiplier candidates, bounded by the
// number of indexed chunks or vectors, whichever is larger. k is clamped
// before multiplying so the request can neither overflow nor exceed what
// the index holds.
func (r *Retriever) pool(k, multiplier int) int {
	n := max(r.store.ChunkCount(), r.store.index.Len())
	return min(min(k, n)*multiplier, n)
}

func (r *Retriever) search(ctx context.Context, query string, k int) ([]Hit, error) {
	if r.store.ChunkCount() == 0 {
		return nil, nil
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}

	hits, err := r.store.Search(ctx, Normalize(embeddings[0]), k)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return hits, nil
}

// resolve maps hits to results, dropping out-of-range positions and, when
// category is set, non-matching chunks. Ranks are contiguous from 1.
func (r *Retriever) resolve(hits []Hit, category string, k int) []RetrievalResult {
	results := make([]RetrievalResult, 0, min(len(hits), k))
	for _, h := range hits {
		if len(results) == k {
			break
		}
		chunk, ok := r.store.Chunk(h.Position)
		if !ok {
			continue
		}
		if category != "" && chunk.Metadata.ProductCategory != category {
			continue
		}
		results = append(results, RetrievalResult{
			Chunk: chunk,
			Score: h.Score,
			Rank:  len(results) + 1,
		})
	}
	return results
}

// Normalize returns a unit-length copy of v. A zero vector is returned
// unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	copy(out, v)
	if sum == 0 {
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i := range out {
		out[i] /= norm
	}
	return out
}
