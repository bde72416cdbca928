package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/54b3r/complaintqa/internal/logging"
	"github.com/54b3r/complaintqa/internal/pipeline"
)

// NewInfoCmd constructs the `cqa info` command, which describes the loaded
// vector store and the relevance policy.
func NewInfoCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Describe the vector store and relevance policy",
		Long: `Load the vector store and print its summary, the default top-k, the
generator in use and the relevance gate thresholds. Consistency warnings found
while loading are listed last.

Examples:
  cqa info
  cqa info --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx, logging.FromContext(ctx), appOptions{})
			if err != nil {
				return fmt.Errorf("info: %w", err)
			}
			defer a.Close()

			info := a.pipeline.Info()
			warnings := a.vectors.Warnings()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Info     pipeline.Info `json:"info"`
					Warnings []string      `json:"warnings,omitempty"`
				}{info, warnings})
			}

			fmt.Fprintf(out, "Generator:        %s\n", info.Generator)
			fmt.Fprintf(out, "Chunks:           %d\n", info.ChunkCount)
			fmt.Fprintf(out, "Embedding model:  %s\n", a.vectors.ModelName())
			fmt.Fprintf(out, "Dimension:        %d\n", a.vectors.Dimension())
			fmt.Fprintf(out, "Default top-k:    %d\n", info.DefaultTopK)
			fmt.Fprintf(out, "Min question len: %d\n", info.MinLength)
			fmt.Fprintf(out, "Threshold:        %.2f\n", info.Policy.Threshold)
			fmt.Fprintf(out, "Tiers:            high >= %.2f, moderate >= %.2f\n", info.Policy.HighScore, info.Policy.ModerateScore)

			if len(info.Store) > 0 {
				fmt.Fprintln(out, "\nStore summary:")
				keys := make([]string, 0, len(info.Store))
				for k := range info.Store {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "  %s: %v\n", k, info.Store[k])
				}
			}
			if len(warnings) > 0 {
				fmt.Fprintln(out, "\nWarnings:")
				for _, w := range warnings {
					fmt.Fprintf(out, "  - %s\n", w)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}
