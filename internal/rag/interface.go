// Package rag holds the retrieval core: the chunk and result types, the
// vector store contract, the on-disk flat index, the Qdrant-backed index, and
// the Retriever that turns a question into ranked complaint evidence.
// Concrete backends satisfy the interfaces here so the pipeline never depends
// on a specific index implementation.
package rag

import (
	"context"
)

// ChunkMetadata is the per-chunk record stored alongside each complaint
// passage. The JSON field names match the metadata file written by the index
// build.
type ChunkMetadata struct {
	// ComplaintID is the identifier of the complaint the chunk was cut from.
	ComplaintID string `json:"complaint_id"`

	// ProductCategory is the normalized product category, e.g. "Credit Cards".
	// Category filtering is exact string equality against this field.
	ProductCategory string `json:"product_category"`

	// Issue is the issue label filed with the complaint.
	Issue string `json:"issue"`

	// DateReceived is the date the complaint was received, as recorded.
	DateReceived string `json:"date_received"`
}

// Chunk is one immutable unit of retrievable complaint text.
type Chunk struct {
	// Position is the stable integer position of the chunk in the index.
	Position int

	// Text is the full chunk text.
	Text string

	// Metadata is the record describing the chunk's source complaint.
	Metadata ChunkMetadata
}

// RetrievalResult is a chunk matched for one query. It is built by the
// Retriever and is never persisted.
type RetrievalResult struct {
	// Chunk is the matched chunk.
	Chunk Chunk

	// Score is the cosine similarity between the query and the chunk.
	Score float32

	// Rank is the 1-indexed position of the result within its batch.
	Rank int
}

// Hit is a raw nearest-neighbour match returned by an Index: a chunk position
// and its inner-product similarity to the query vector.
type Hit struct {
	// Position is the index position of the matched vector.
	Position int

	// Score is the inner product between the query and the stored vector.
	Score float32
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is an exact inner-product nearest-neighbour index over L2-normalized
// vectors. Search results are ordered largest-similarity first, and the same
// query against an unmodified index always yields the same order.
type Index interface {
	// Search returns at most k hits for the query vector. A k larger than Len
	// returns every stored vector.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Len reports the number of vectors held by the index.
	Len() int

	// Dimension reports the vector dimension of the index.
	Dimension() int
}

// VectorStore is the contract the Retriever consumes: nearest-neighbour
// search plus random access to chunk text and metadata by position.
// Implementations are read-only after load and safe for concurrent use.
type VectorStore interface {
	// Search returns up to k (position, score) pairs, largest score first.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// ChunkCount reports the number of chunks in the store.
	ChunkCount() int

	// Dimension reports the dimension of the stored vectors.
	Dimension() int

	// Chunk returns the chunk at position. The boolean is false when the
	// position is out of range for the chunk or metadata arrays.
	Chunk(position int) (Chunk, bool)
}
