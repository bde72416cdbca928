package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/complaintqa/internal/logging"
	"github.com/54b3r/complaintqa/internal/server"
)

// NewServeCmd constructs the `cqa serve` command, which starts the HTTP API
// over the complaint store.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the complaint QA HTTP server",
		Long: `Start the complaint QA HTTP server.

Routes:
  POST /api/query   answer a question (Bearer auth, rate limited)
  GET  /api/info    store summary and relevance policy (Bearer auth)
  GET  /api/health  liveness
  GET  /api/ready   dependency checks (store, Qdrant, Redis, query log, generator)
  GET  /metrics     Prometheus metrics

Set CQA_API_KEY to require a Bearer token on /api/query and /api/info.

Examples:
  cqa serve
  cqa serve --port 9090
  MODEL_PROVIDER=openai cqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Env (and YAML bridged into env) applies unless the flag was given.
			if !cmd.Flags().Changed("host") {
				host = envOrDefault("CQA_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = envIntOrDefault("CQA_PORT", port)
			}

			log := logging.FromContext(ctx)
			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			a, err := buildApp(ctx, log, appOptions{queryLog: true, tracing: true})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()

			srv, err := server.New(a.pipeline, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: a.pingers,
				APIKey:  os.Getenv("CQA_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: CQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env: CQA_PORT)")

	return cmd
}
