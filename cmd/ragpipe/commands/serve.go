package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/ragpipe-go/internal/config"
	"github.com/54b3r/ragpipe-go/internal/embedder"
	"github.com/54b3r/ragpipe-go/internal/logging"
	"github.com/54b3r/ragpipe-go/internal/server"
	"github.com/54b3r/ragpipe-go/internal/tracing"
	"github.com/54b3r/ragpipe-go/internal/vectorstore"
)

// NewServeCmd constructs the `ragpipe serve` command, which starts the HTTP
// server in front of the pipeline.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragpipe HTTP server",
		Long: `Start the ragpipe HTTP server.

The server exposes:
  POST   /api/retrieve    stream a retrieval session as Server-Sent Events
  POST   /api/documents   embed a chunked document and upsert its vectors
  DELETE /api/documents   delete a document's vectors by name or url
  GET    /api/health      liveness
  GET    /api/ready       readiness (embedding backend, qdrant)
  GET    /metrics         Prometheus metrics

Set RAGPIPE_API_KEY to require a Bearer token on the /api routes.

Examples:
  ragpipe serve
  ragpipe serve --port 9090
  VECTOR_STORE_PROVIDER=memory ragpipe serve`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Flags win; otherwise env and YAML, loaded after flag parsing.
			if !cmd.Flags().Changed("host") {
				host = config.String("RAGPIPE_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = config.Int("RAGPIPE_PORT", port)
			}

			log.Info("serve starting", slog.String("embedding_provider", embedder.Backend()))

			// Langfuse tracing is opt-in and only sees LLM reranker calls.
			if flush, ok := tracing.Install(tracing.ConfigFromEnv()); ok {
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			reg := prometheus.DefaultRegisterer
			c, err := buildComponents(ctx, log, reg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeWith(c, &err)

			orch, err := buildOrchestrator(ctx, c, reg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			var pingers []server.Pinger
			if hc, ok := c.provider.(embedder.HealthChecker); ok {
				pingers = append(pingers, server.NewEmbeddingPinger(hc, c.backend))
			}
			if qs, ok := c.store.(*vectorstore.QdrantStore); ok {
				pingers = append(pingers, server.NewQdrantPinger(qs.Client()))
			}

			srv, err := server.New(server.Deps{
				Retriever:      orch,
				Embedder:       c.coordinator,
				Store:          c.store,
				EmbeddingModel: c.provider.Model(),
			}, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				RateLimit: float64(config.Float32("RAGPIPE_RATE_LIMIT", 0)),
				RateBurst: config.Int("RAGPIPE_RATE_BURST", 0),
				APIKey:    config.String("RAGPIPE_API_KEY", ""),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
