package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize bounds the number of points sent per Qdrant upsert call.
const upsertBatchSize = 256

// QdrantConfig holds connection parameters for a Qdrant collection that
// mirrors a local store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Index on a Qdrant collection. Point IDs are the
// numeric chunk positions of the local store, and the collection uses dot
// product distance over normalized vectors so scores match FlatIndex.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig

	// count is the number of points in the collection, read at open time.
	count int
}

// NewQdrantIndex connects to Qdrant, ensures the collection exists (creating
// it if necessary), and records its point count.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name must not be empty")
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be positive")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	q := &QdrantIndex{client: client, cfg: cfg}
	if err := q.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	if err := q.refreshCount(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

// ensureCollection creates the collection if it does not already exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	return q.createCollection(ctx)
}

func (q *QdrantIndex) createCollection(ctx context.Context) error {
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Dot,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}
	return nil
}

func (q *QdrantIndex) refreshCount(ctx context.Context) error {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: count points in %q: %w", q.cfg.Collection, err)
	}
	q.count = int(n)
	return nil
}

// Reset drops and recreates the collection so a rebuild starts empty.
func (q *QdrantIndex) Reset(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.cfg.Collection); err != nil {
		return fmt.Errorf("qdrant: failed to delete collection %q: %w", q.cfg.Collection, err)
	}
	if err := q.createCollection(ctx); err != nil {
		return err
	}
	q.count = 0
	return nil
}

// Upsert writes vectors under their positions, with the chunk metadata as
// payload. vectors and metadata must be parallel.
func (q *QdrantIndex) Upsert(ctx context.Context, vectors [][]float32, metadata []ChunkMetadata) error {
	if len(vectors) != len(metadata) {
		return fmt.Errorf("qdrant: %d vectors and %d metadata records must match", len(vectors), len(metadata))
	}

	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(vectors))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			m := metadata[i]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(i)),
				Vectors: qdrant.NewVectors(vectors[i]...),
				Payload: qdrant.NewValueMap(map[string]any{
					"complaint_id":     m.ComplaintID,
					"product_category": m.ProductCategory,
					"issue":            m.Issue,
					"date_received":    m.DateReceived,
				}),
			})
		}

		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.cfg.Collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert points %d-%d failed: %w", start, end-1, err)
		}
	}

	return q.refreshCount(ctx)
}

// Search runs an exact (non-HNSW) dot product query and returns the hits by
// descending score.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if uint64(len(query)) != q.cfg.VectorSize {
		return nil, fmt.Errorf("qdrant: query has dimension %d, collection has %d: %w", len(query), q.cfg.VectorSize, ErrDimensionMismatch)
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	limit := uint64(k)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		Params:         &qdrant.SearchParams{Exact: qdrant.PtrOf(true)},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{Position: int(r.GetId().GetNum()), Score: r.GetScore()})
	}
	return hits, nil
}

// Len reports the point count read at open time or after the last upsert.
func (q *QdrantIndex) Len() int {
	return q.count
}

// Dimension reports the configured vector size.
func (q *QdrantIndex) Dimension() int {
	return int(q.cfg.VectorSize)
}

// Ping checks that the Qdrant server is reachable.
func (q *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
