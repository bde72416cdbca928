package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/complaintqa/internal/config"
	"github.com/54b3r/complaintqa/internal/embedder"
	"github.com/54b3r/complaintqa/internal/ingestion"
	"github.com/54b3r/complaintqa/internal/logging"
	"github.com/54b3r/complaintqa/internal/rag"
)

// NewIndexCmd constructs the `cqa index` command, which builds the vector
// store from a CFPB complaints export.
func NewIndexCmd() *cobra.Command {
	var csvPath string
	var limit int
	var batchSize int
	var chunkSize int
	var chunkOverlap int
	var syncQdrant bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the complaint vector store from a CFPB CSV export",
		Long: `Build the complaint vector store from a CFPB complaints CSV export.

Rows are kept when they carry a narrative and their product maps onto one of
Credit Cards, Personal Loans, Savings Accounts or Money Transfers. Narratives
are cleaned of XXXX redaction masks, chunked, embedded in batches and written
to CQA_STORE_DIR (default ./vector_store) together with sampling_summary.json.

With --qdrant the same vectors are also written to the Qdrant collection named
by QDRANT_COLLECTION; the collection is emptied first.

Environment:
  CQA_STORE_DIR        Output directory (default: ./vector_store)
  EMBEDDING_PROVIDER   ollama, openai or azure (default: ollama)
  EMBEDDING_MODEL      Embedding model name
  QDRANT_HOST          Qdrant host, required with --qdrant
  REDIS_ADDR           Optional embedding cache

Examples:
  cqa index --csv complaints.csv
  cqa index --csv complaints.csv --limit 20000 --batch-size 128
  QDRANT_HOST=localhost cqa index --csv complaints.csv --qdrant`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if csvPath == "" {
				return fmt.Errorf("index: --csv is required")
			}
			if limit < 0 {
				return fmt.Errorf("index: --limit must not be negative")
			}

			f, err := os.Open(csvPath)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer func() { _ = f.Close() }()

			complaints, stats, err := ingestion.ReadComplaints(f, limit)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			log.Info("complaints read",
				slog.String("csv", csvPath),
				slog.Int("rows", stats.Rows),
				slog.Int("kept", stats.Kept),
				slog.Int("no_narrative", stats.NoNarrative),
				slog.Int("other_product", stats.OtherProduct),
			)

			// Only closers are used; pingers are irrelevant to a one-shot build.
			res := &app{}
			defer res.Close()

			embCfg := embedder.ConfigFromEnv()
			emb, err := buildEmbedder(ctx, embCfg, log, res)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			p, err := ingestion.NewPipeline(emb, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
				BatchSize:    batchSize,
				ModelName:    embCfg.Model,
			})
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			in, err := p.Build(ctx, complaints, stats, func(msg string) { log.Info(msg) })
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			dir := config.StoreDir()
			if err := rag.Save(dir, in); err != nil {
				return fmt.Errorf("index: %w", err)
			}
			log.Info("vector store written",
				slog.String("dir", dir),
				slog.Int("chunks", len(in.Chunks)),
				slog.Int("dimension", in.Dimension),
				slog.String("model", in.ModelName),
			)

			if !syncQdrant {
				return nil
			}
			qcfg, err := config.QdrantFromEnv(in.Dimension)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			if qcfg == nil {
				return fmt.Errorf("index: --qdrant requires QDRANT_HOST")
			}
			idx, err := rag.NewQdrantIndex(ctx, qcfg)
			if err != nil {
				return fmt.Errorf("index: failed to connect to Qdrant at %s:%d: %w", qcfg.Host, qcfg.Port, err)
			}
			defer func() { _ = idx.Close() }()

			if err := p.Sync(ctx, idx, in); err != nil {
				return fmt.Errorf("index: %w", err)
			}
			log.Info("qdrant collection synced",
				slog.String("collection", qcfg.Collection),
				slog.Int("points", len(in.Vectors)),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "Path to the CFPB complaints CSV export")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of CSV rows to read (0 = all)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 64, "Chunks per embedding request")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 500, "Maximum characters per narrative chunk")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 50, "Characters shared by consecutive chunks")
	cmd.Flags().BoolVar(&syncQdrant, "qdrant", false, "Also upsert the vectors into the Qdrant collection")

	return cmd
}
