// Package ingestion builds the on-disk vector store from a CFPB complaints
// export. It reads the CSV, keeps complaints whose product maps onto the
// category vocabulary, chunks each narrative, embeds the chunks in batches,
// and writes the store directory. An optional Qdrant collection can be
// synced from the same vectors. This pipeline is invoked by `cqa index`.
package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/54b3r/complaintqa/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per narrative chunk.
	// Defaults to 500 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	// Defaults to 50 if zero.
	ChunkOverlap int

	// BatchSize is the number of chunks sent to the embedder per call.
	// Defaults to 64 if zero.
	BatchSize int

	// ModelName is recorded in the store metadata so query-time embedder
	// mismatches can be detected.
	ModelName string
}

// Syncer mirrors built vectors into a remote index. *rag.QdrantIndex
// satisfies it.
type Syncer interface {
	// Reset empties the remote index.
	Reset(ctx context.Context) error
	// Upsert writes vectors under their positions with metadata as payload.
	Upsert(ctx context.Context, vectors [][]float32, metadata []rag.ChunkMetadata) error
}

// Pipeline orchestrates the chunk → embed → normalize flow for a set of
// complaints.
type Pipeline struct {
	// embedder converts chunk texts into dense vector embeddings.
	embedder rag.Embedder

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided embedder and config.
func NewPipeline(embedder rag.Embedder, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 500
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 50
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}

	return &Pipeline{embedder: embedder, cfg: &c}, nil
}

// Build chunks and embeds complaints and returns the store contents ready
// for rag.Save. Progress is reported via the optional progress callback.
func (p *Pipeline) Build(ctx context.Context, complaints []Complaint, stats ReadStats, progress func(msg string)) (*rag.SaveInput, error) {
	if progress == nil {
		progress = func(string) {}
	}
	if len(complaints) == 0 {
		return nil, fmt.Errorf("ingestion: no complaints to index")
	}

	var chunks []string
	var metadata []rag.ChunkMetadata
	perCategory := make(map[string]int)
	for _, c := range complaints {
		for _, text := range p.chunk(c.Narrative) {
			chunks = append(chunks, text)
			metadata = append(metadata, rag.ChunkMetadata{
				ComplaintID:     c.ID,
				ProductCategory: c.Category,
				Issue:           c.Issue,
				DateReceived:    c.DateReceived,
			})
		}
		perCategory[c.Category]++
	}
	progress(fmt.Sprintf("chunked %d complaints into %d chunks", len(complaints), len(chunks)))

	vectors := make([][]float32, 0, len(chunks))
	dim := 0
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(chunks))
		embeddings, err := p.embedder.Embed(ctx, chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("ingestion: embedding failed for chunks %d-%d: %w", start, end-1, err)
		}
		if len(embeddings) != end-start {
			return nil, fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks", len(embeddings), end-start)
		}
		for i, e := range embeddings {
			if dim == 0 {
				dim = len(e)
			}
			if len(e) == 0 || len(e) != dim {
				return nil, fmt.Errorf("ingestion: chunk %d has dimension %d, want %d: %w", start+i, len(e), dim, rag.ErrDimensionMismatch)
			}
			vectors = append(vectors, rag.Normalize(e))
		}
		progress(fmt.Sprintf("embedded %d/%d chunks", end, len(chunks)))
	}

	return &rag.SaveInput{
		ModelName: p.cfg.ModelName,
		Dimension: dim,
		Chunks:    chunks,
		Metadata:  metadata,
		Vectors:   vectors,
		Summary: map[string]any{
			"built_at":                  time.Now().UTC().Format(time.RFC3339),
			"model_name":                p.cfg.ModelName,
			"embedding_dimension":       dim,
			"chunk_size":                p.cfg.ChunkSize,
			"chunk_overlap":             p.cfg.ChunkOverlap,
			"complaints":                len(complaints),
			"chunks":                    len(chunks),
			"complaints_by_category":    perCategory,
			"rows_read":                 stats.Rows,
			"rows_skipped_no_narrative": stats.NoNarrative,
			"rows_skipped_product":      stats.OtherProduct,
		},
	}, nil
}

// Sync replaces the contents of the remote index with in's vectors.
func (p *Pipeline) Sync(ctx context.Context, s Syncer, in *rag.SaveInput) error {
	if err := s.Reset(ctx); err != nil {
		return fmt.Errorf("ingestion: reset remote index: %w", err)
	}
	if err := s.Upsert(ctx, in.Vectors, in.Metadata); err != nil {
		return fmt.Errorf("ingestion: sync remote index: %w", err)
	}
	return nil
}

// chunk splits text into overlapping windows of cfg.ChunkSize characters.
// Windows end on a space where one falls in the second half of the window
// and the overlap starts on a word boundary, so words are rarely cut.
func (p *Pipeline) chunk(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	size := p.cfg.ChunkSize
	overlap := p.cfg.ChunkOverlap

	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			for i := end; i > start+size/2; i-- {
				if runes[i] == ' ' {
					end = i
					break
				}
			}
		}
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}
		next := max(end-overlap, start+1)
		for next < end && runes[next-1] != ' ' {
			next++
		}
		start = next
	}

	return chunks
}
