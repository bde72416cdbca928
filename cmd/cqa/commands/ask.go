package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/complaintqa/internal/logging"
	"github.com/54b3r/complaintqa/internal/pipeline"
	"github.com/54b3r/complaintqa/internal/report"
	"github.com/54b3r/complaintqa/internal/scope"
)

// NewAskCmd constructs the `cqa ask` command, which answers a single
// question from the complaint store and prints the answer with its sources.
func NewAskCmd() *cobra.Command {
	var category string
	var topK int
	var noInfer bool
	var showPrompt bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about consumer complaints",
		Long: `Answer a natural language question from the complaint narratives.

The answer is grounded in the retrieved complaints only. When no complaint
clears the relevance threshold the closest matches are shown as reference
material and the answer says the evidence is insufficient.

When --category is omitted the category is inferred from product names in the
question ("credit card", "loan", "savings", "transfer"); --no-infer searches
every category.

Examples:
  cqa ask "What are the most common issues with credit cards?"
  cqa ask --category "Money Transfers" "Why are transfers delayed?"
  cqa ask --top-k 10 --show-prompt "What fees do customers complain about?"
  cqa ask --json "Are there complaints about frozen savings accounts?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if topK < 0 {
				return fmt.Errorf("ask: --top-k must not be negative")
			}

			a, err := buildApp(ctx, log, appOptions{queryLog: true, tracing: true})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()

			question := strings.Join(args, " ")
			if category == "" && !noInfer {
				category = scope.InferCategory(question)
				if category != "" {
					log.Debug("category inferred from question", slog.String("category", category))
				}
			} else if category != "" && !scope.KnownCategory(category) {
				log.Warn("unknown product category, filtering anyway",
					slog.String("category", category),
					slog.String("known", strings.Join(scope.Categories, ", ")),
				)
			}

			resp, err := a.pipeline.Query(ctx, pipeline.Request{
				Question: question,
				Category: category,
				TopK:     topK,
			})
			if err != nil {
				if errors.Is(err, pipeline.ErrRetrieval) {
					return fmt.Errorf("ask: %s: %w", pipeline.RetrievalMessage, err)
				}
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report.NewDocument(resp, a.retrieval.Policy))
			}
			if err := report.Write(out, resp, a.retrieval.Policy); err != nil {
				return err
			}
			if showPrompt {
				return report.WritePrompt(out, resp)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Restrict retrieval to one product category (e.g. \"Credit Cards\")")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of complaint chunks to retrieve (default: RETRIEVAL_TOP_K)")
	cmd.Flags().BoolVar(&noInfer, "no-infer", false, "Do not infer the category from the question")
	cmd.Flags().BoolVar(&showPrompt, "show-prompt", false, "Print the exact prompt sent to the generator")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the response as JSON")

	return cmd
}
