package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// On-disk artifact names inside a store directory.
const (
	// IndexFileName holds the flat vector index.
	IndexFileName = "complaint_embeddings.index"

	// MetadataFileName holds chunk texts, metadata records, model name and dimension.
	MetadataFileName = "chunk_metadata.json"

	// SummaryFileName holds the optional build summary.
	SummaryFileName = "sampling_summary.json"
)

// StoreUnavailableError reports that a store directory cannot back a
// pipeline. It is fatal for pipeline construction.
type StoreUnavailableError struct {
	// Dir is the store directory that was loaded.
	Dir string

	// Missing lists required artifacts that do not exist.
	Missing []string

	// Corrupt lists artifacts that exist but could not be decoded.
	Corrupt []string

	// Err is the first underlying decode or I/O error, if any.
	Err error
}

// Error names every missing or corrupt artifact and the remediation.
func (e *StoreUnavailableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rag: vector store at %s is unavailable", e.Dir)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing: %s", strings.Join(e.Missing, ", "))
	}
	if len(e.Corrupt) > 0 {
		fmt.Fprintf(&b, "; corrupt: %s", strings.Join(e.Corrupt, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " (%v)", e.Err)
	}
	b.WriteString("; rebuild the store with `cqa index`")
	return b.String()
}

// Unwrap exposes the underlying error.
func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// metadataFile is the JSON document stored in MetadataFileName.
type metadataFile struct {
	ModelName          string          `json:"model_name"`
	EmbeddingDimension int             `json:"embedding_dimension"`
	Chunks             []string        `json:"chunks"`
	Metadata           []ChunkMetadata `json:"metadata"`
}

// LoadOptions tunes Load. The zero value loads the local flat index.
type LoadOptions struct {
	// Index replaces the local flat index, e.g. with a Qdrant collection
	// mirroring the store. When set, IndexFileName is not required.
	Index Index

	// EmbedderDimension is the output dimension of the query embedder.
	// Zero skips the embedder dimension check.
	EmbedderDimension int

	// Logger receives consistency warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store is the loaded, read-only vector store: an Index plus the parallel
// chunk text and metadata arrays.
type Store struct {
	// index answers nearest-neighbour queries.
	index Index

	// chunks holds chunk texts by position.
	chunks []string

	// metadata holds chunk metadata by position.
	metadata []ChunkMetadata

	// modelName is the embedding model the store was built with.
	modelName string

	// dimension is the embedding dimension recorded in the metadata file.
	dimension int

	// summary is the decoded build summary, or a synthesized one.
	summary map[string]any

	// warnings collects the consistency problems found at load time.
	warnings []string
}

// Load opens the store in dir. Missing or undecodable artifacts return a
// *StoreUnavailableError. Count and dimension mismatches are logged as
// warnings and recorded in Warnings; the store remains usable.
func Load(dir string, opts *LoadOptions) (*Store, error) {
	if opts == nil {
		opts = &LoadOptions{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	unavailable := &StoreUnavailableError{Dir: dir}
	metaPath := filepath.Join(dir, MetadataFileName)
	indexPath := filepath.Join(dir, IndexFileName)

	if !exists(metaPath) {
		unavailable.Missing = append(unavailable.Missing, metaPath)
	}
	if opts.Index == nil && !exists(indexPath) {
		unavailable.Missing = append(unavailable.Missing, indexPath)
	}
	if len(unavailable.Missing) > 0 {
		return nil, unavailable
	}

	meta, err := readMetadata(metaPath)
	if err != nil {
		unavailable.Corrupt = append(unavailable.Corrupt, metaPath)
		unavailable.Err = err
		return nil, unavailable
	}

	idx := opts.Index
	if idx == nil {
		flat, err := readFlatIndexFile(indexPath)
		if err != nil {
			unavailable.Corrupt = append(unavailable.Corrupt, indexPath)
			unavailable.Err = err
			return nil, unavailable
		}
		idx = flat
	}

	s := &Store{
		index:     idx,
		chunks:    meta.Chunks,
		metadata:  meta.Metadata,
		modelName: meta.ModelName,
		dimension: meta.EmbeddingDimension,
	}
	s.checkConsistency(opts.EmbedderDimension)
	for _, w := range s.warnings {
		log.Warn("vector store inconsistent", slog.String("dir", dir), slog.String("problem", w))
	}

	s.summary = readSummary(filepath.Join(dir, SummaryFileName))
	if s.summary == nil {
		s.summary = map[string]any{
			"total_chunks":        len(s.chunks),
			"total_vectors":       s.index.Len(),
			"embedding_model":     s.modelName,
			"embedding_dimension": s.dimension,
		}
	}

	log.Info("vector store loaded",
		slog.String("dir", dir),
		slog.Int("chunks", len(s.chunks)),
		slog.Int("vectors", s.index.Len()),
		slog.Int("dimension", s.index.Dimension()),
		slog.String("model", s.modelName),
	)
	return s, nil
}

// NewStore assembles a Store from an index and parallel in-memory arrays.
// Consistency problems are recorded in Warnings.
func NewStore(idx Index, chunks []string, metadata []ChunkMetadata) *Store {
	s := &Store{
		index:     idx,
		chunks:    chunks,
		metadata:  metadata,
		dimension: idx.Dimension(),
	}
	s.checkConsistency(0)
	s.summary = map[string]any{
		"total_chunks":        len(chunks),
		"total_vectors":       idx.Len(),
		"embedding_dimension": idx.Dimension(),
	}
	return s
}

// checkConsistency records count and dimension mismatches as warnings.
func (s *Store) checkConsistency(embedderDim int) {
	n := s.index.Len()
	if len(s.chunks) != len(s.metadata) || len(s.chunks) != n {
		s.warnings = append(s.warnings, fmt.Sprintf(
			"count mismatch: %d chunks, %d metadata records, %d vectors", len(s.chunks), len(s.metadata), n))
	}
	if s.dimension != 0 && s.dimension != s.index.Dimension() {
		s.warnings = append(s.warnings, fmt.Sprintf(
			"dimension mismatch: metadata records %d, index holds %d", s.dimension, s.index.Dimension()))
	}
	if embedderDim != 0 && embedderDim != s.index.Dimension() {
		s.warnings = append(s.warnings, fmt.Sprintf(
			"dimension mismatch: embedder produces %d, index holds %d", embedderDim, s.index.Dimension()))
	}
}

// Search delegates to the underlying index.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	return s.index.Search(ctx, query, k)
}

// ChunkCount reports the number of chunk texts in the store.
func (s *Store) ChunkCount() int {
	return len(s.chunks)
}

// Dimension reports the dimension of the underlying index.
func (s *Store) Dimension() int {
	return s.index.Dimension()
}

// Chunk returns the chunk at position, or false when position is out of
// range for either the chunk or metadata array.
func (s *Store) Chunk(position int) (Chunk, bool) {
	if position < 0 || position >= len(s.chunks) || position >= len(s.metadata) {
		return Chunk{}, false
	}
	return Chunk{Position: position, Text: s.chunks[position], Metadata: s.metadata[position]}, true
}

// ModelName reports the embedding model the store was built with.
func (s *Store) ModelName() string {
	return s.modelName
}

// Warnings returns the consistency problems found at load time.
func (s *Store) Warnings() []string {
	return slices.Clone(s.warnings)
}

// Summary returns the build summary.
func (s *Store) Summary() map[string]any {
	return maps.Clone(s.summary)
}

// SaveInput is everything Save needs to write a store directory.
type SaveInput struct {
	// ModelName is the embedding model identifier.
	ModelName string

	// Dimension is the embedding dimension.
	Dimension int

	// Chunks holds chunk texts by position.
	Chunks []string

	// Metadata holds metadata records parallel to Chunks.
	Metadata []ChunkMetadata

	// Vectors holds L2-normalized embeddings parallel to Chunks.
	Vectors [][]float32

	// Summary is written to SummaryFileName when non-nil.
	Summary map[string]any
}

// Save writes a store directory that Load can open.
func Save(dir string, in *SaveInput) error {
	if len(in.Chunks) != len(in.Metadata) || len(in.Chunks) != len(in.Vectors) {
		return fmt.Errorf("rag: save: %d chunks, %d metadata records, %d vectors must match",
			len(in.Chunks), len(in.Metadata), len(in.Vectors))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("rag: save: create %s: %w", dir, err)
	}

	flat, err := NewFlatIndex(in.Dimension, in.Vectors)
	if err != nil {
		return fmt.Errorf("rag: save: %w", err)
	}
	if err := writeFile(filepath.Join(dir, IndexFileName), func(f *os.File) error {
		_, err := flat.WriteTo(f)
		return err
	}); err != nil {
		return err
	}

	meta := metadataFile{
		ModelName:          in.ModelName,
		EmbeddingDimension: in.Dimension,
		Chunks:             in.Chunks,
		Metadata:           in.Metadata,
	}
	if err := writeJSON(filepath.Join(dir, MetadataFileName), meta); err != nil {
		return err
	}
	if in.Summary != nil {
		if err := writeJSON(filepath.Join(dir, SummaryFileName), in.Summary); err != nil {
			return err
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

func readMetadata(path string) (*metadataFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rag: read %s: %w", path, err)
	}
	var meta metadataFile
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("rag: decode %s: %w", path, err)
	}
	return &meta, nil
}

func readFlatIndexFile(path string) (*FlatIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rag: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadFlatIndex(f)
}

// readSummary returns nil when the summary is absent or unreadable.
func readSummary(path string) map[string]any {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var summary map[string]any
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil
	}
	return summary
}

func writeJSON(path string, v any) error {
	return writeFile(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// writeFile writes through a temp file and renames it into place.
func writeFile(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("rag: create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("rag: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rag: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rag: rename into %s: %w", path, err)
	}
	return nil
}
