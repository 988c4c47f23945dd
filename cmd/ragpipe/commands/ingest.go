package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragpipe-go/internal/config"
	"github.com/54b3r/ragpipe-go/internal/ingestion"
	"github.com/54b3r/ragpipe-go/internal/logging"
)

// NewIngestCmd constructs the `ragpipe ingest` command, which reads, chunks,
// embeds and stores documents for one user.
func NewIngestCmd() *cobra.Command {
	var userID string
	var files []string
	var urls []string
	var name string
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed documents into a user's vector namespace",
		Long: `Read local files or fetch URLs, split them into chunks, embed every chunk
under the shared rate limit and upsert the vectors into the user's namespace.

Chunks that fail to embed are logged and skipped; the rest are still stored.
Re-ingesting an unchanged document overwrites its points in place.

Relevant environment variables:
  EMBEDDING_PROVIDER       ollama, openai, azure, gemini (default: MODEL_PROVIDER)
  VECTOR_STORE_PROVIDER    qdrant, memory, sqlite (default: qdrant)
  LIMITER_*                shared embedding rate limit
  INGEST_CHUNK_SIZE        characters per chunk (default: 1000)
  INGEST_CHUNK_OVERLAP     overlapping characters (default: 100)

Examples:
  ragpipe ingest --user u1 --file ./handbook.md
  ragpipe ingest --user u1 --url https://example.com/policy.txt --name policy
  VECTOR_STORE_PROVIDER=sqlite ragpipe ingest --user u1 --file a.txt --file b.txt`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if !cmd.Flags().Changed("chunk-size") {
				chunkSize = config.Int("INGEST_CHUNK_SIZE", chunkSize)
			}
			if !cmd.Flags().Changed("chunk-overlap") {
				chunkOverlap = config.Int("INGEST_CHUNK_OVERLAP", chunkOverlap)
			}

			if userID == "" {
				return fmt.Errorf("ingest: --user is required")
			}
			if len(files)+len(urls) == 0 {
				return fmt.Errorf("ingest: at least one --file or --url is required")
			}
			if name != "" && len(files)+len(urls) > 1 {
				return fmt.Errorf("ingest: --name only applies to a single document")
			}

			c, err := buildComponents(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeWith(c, &err)

			pipeline, err := ingestion.NewPipeline(c.coordinator, c.store, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			sources := make([]ingestion.Source, 0, len(files)+len(urls))
			for _, f := range files {
				sources = append(sources, ingestion.Source{Path: f, Name: name})
			}
			for _, u := range urls {
				sources = append(sources, ingestion.Source{URL: u, Name: name})
			}

			log.Info("starting ingestion", slog.String("user_id", userID), slog.Int("sources", len(sources)))

			var failed int
			for _, src := range sources {
				res, err := pipeline.Ingest(ctx, userID, src)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				failed += res.Report.Failed()
				log.Info("document ingested",
					slog.String("document", res.Report.File.Name),
					slog.String("key", res.Report.File.Key),
					slog.Int("chunks", res.Report.Total),
					slog.Int("failed", res.Report.Failed()),
					slog.Int("upserted", res.Upserted),
				)
			}

			log.Info("ingestion complete", slog.Int("sources", len(sources)), slog.Int("failed_chunks", failed))
			if failed > 0 {
				return fmt.Errorf("ingest: %d chunks could not be embedded", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User namespace to write into (required)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Local document to ingest (repeatable)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Document URL to ingest (repeatable)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Document name override (single document only)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "Maximum characters per chunk")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 100, "Characters shared by consecutive chunks")

	return cmd
}
