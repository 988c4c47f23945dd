// Package commands defines all Cobra CLI commands for the ragpipe binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/ragpipe-go/internal/audit"
	"github.com/54b3r/ragpipe-go/internal/config"
	"github.com/54b3r/ragpipe-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragpipe",
		Short: "ragpipe: embed documents, store vectors, retrieve ranked context",
		Long: `ragpipe is a knowledge retrieval pipeline.

It splits documents into chunks, embeds them under a shared provider rate
limit, stores the vectors in a per-user namespace, and answers queries with
a reranked context block streamed as ordered stage events.

The embedding backend is selected via EMBEDDING_PROVIDER (or MODEL_PROVIDER),
the vector store via VECTOR_STORE_PROVIDER, and the reranker via
RERANK_PROVIDER. Every setting can also come from a YAML config file
(~/.ragpipe/config.yaml).
See 'ragpipe --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragpipe/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewQueryCmd(),
		NewDeleteCmd(),
		NewVersionCmd(),
	)

	return root
}
