package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/complaintqa/internal/config"
	"github.com/54b3r/complaintqa/internal/logging"
	"github.com/54b3r/complaintqa/internal/relevance"
	"github.com/54b3r/complaintqa/internal/store"
)

// NewCalibrateCmd constructs the `cqa calibrate` command, which replays the
// query log against candidate relevance thresholds.
func NewCalibrateCmd() *cobra.Command {
	var thresholds string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Replay logged queries against candidate relevance thresholds",
		Long: `Replay the top similarity score of every logged query against a list of
candidate thresholds and report how many queries would have been answered
confidently, with low confidence, or with no evidence at each one.

Only queries asked without a product category replay exactly; category
narrowing depends on per-result categories that the log does not keep.

Examples:
  cqa calibrate
  cqa calibrate --thresholds 0.3,0.35,0.4 --limit 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			ts, err := parseThresholds(thresholds)
			if err != nil {
				return fmt.Errorf("calibrate: %w", err)
			}

			path, err := config.QueryLogPath()
			if err != nil {
				return fmt.Errorf("calibrate: %w", err)
			}
			if path == "" {
				return fmt.Errorf("calibrate: query log is disabled (CQA_QUERY_LOG=%s)", config.QueryLogDisabled)
			}
			qs, err := store.Open(path)
			if err != nil {
				return fmt.Errorf("calibrate: %w", err)
			}
			defer func() { _ = qs.Close() }()

			records, err := qs.Recent(ctx, limit)
			if err != nil {
				return fmt.Errorf("calibrate: %w", err)
			}
			if len(records) == 0 {
				return fmt.Errorf("calibrate: no queries logged in %s yet; run `cqa ask` or `cqa serve` first", path)
			}

			samples := make([]relevance.Sample, 0, len(records))
			withCategory := 0
			for _, r := range records {
				if r.Category != "" {
					withCategory++
				}
				samples = append(samples, relevance.Sample{Retrieved: r.Retrieved, TopScore: r.TopScore})
			}
			if withCategory > 0 {
				log.Warn("calibrate: some queries used a category filter; their replay ignores category narrowing",
					slog.Int("with_category", withCategory),
					slog.Int("total", len(records)),
				)
			}

			results := relevance.Replay(samples, ts)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			fmt.Fprintf(out, "Replayed %d logged queries from %s\n\n", len(samples), path)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "THRESHOLD\tCONFIDENT\tLOW_CONFIDENCE\tNO_EVIDENCE\tCONFIDENT %")
			for _, c := range results {
				fmt.Fprintf(tw, "%.2f\t%d\t%d\t%d\t%.1f\n",
					c.Threshold, c.Confident, c.LowConfidence, c.NoEvidence, 100*c.ConfidentRate())
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&thresholds, "thresholds", "0.25,0.30,0.35,0.40", "Comma-separated thresholds to replay")
	cmd.Flags().IntVar(&limit, "limit", 1000, "Most recent queries to replay (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}
