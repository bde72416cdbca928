// Package commands defines all Cobra CLI commands for the cqa binary.
package commands

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/complaintqa/internal/audit"
	"github.com/54b3r/complaintqa/internal/config"
	"github.com/54b3r/complaintqa/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cqa",
		Short: "Complaint QA: ask questions about consumer financial complaints",
		Long: `cqa answers questions about CFPB consumer complaint narratives.

Each question is embedded, matched against the complaint vector store, and
answered from the retrieved narratives only. A relevance gate decides whether
the evidence is strong enough to answer; weak matches are shown as reference
material with a warning instead of being passed off as evidence.

Build the vector store first with 'cqa index', then use 'cqa ask' or
'cqa serve'. The generation backend is selected via MODEL_PROVIDER or a YAML
config file (~/.cqa/config.yaml).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env never overrides variables already exported.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("dotenv: failed to load .env", slog.Any("error", err))
			}

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Rebuild with the final LOG_LEVEL / LOG_FORMAT and make it the
			// default for packages that log without a context.
			log = logging.New()
			slog.SetDefault(log)
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath, config.StoreDir())

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.cqa/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIndexCmd(),
		NewInfoCmd(),
		NewCalibrateCmd(),
		NewVersionCmd(),
	)

	return root
}
