package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragpipe-go/internal/logging"
	"github.com/54b3r/ragpipe-go/internal/retrieval"
	"github.com/54b3r/ragpipe-go/internal/tracing"
)

// NewQueryCmd constructs the `ragpipe query` command, which runs one
// retrieval session and prints its stage events as they arrive.
func NewQueryCmd() *cobra.Command {
	var userID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query [message]",
		Short: "Retrieve reranked context for a question",
		Long: `Run one retrieval session for a user: embed the question, search the
user's namespace, rerank the passages and print the resulting context.

Stage events are printed in order as they arrive; the last one is always
"done". Use --json for one JSON event per line.

Examples:
  ragpipe query --user u1 "what is the refund policy?"
  ragpipe query --user u1 --json "who approves travel?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if flush, ok := tracing.Install(tracing.ConfigFromEnv()); ok {
				defer flush()
			}

			c, err := buildComponents(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer closeWith(c, &err)

			orch, err := buildOrchestrator(ctx, c, nil)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			events, err := orch.Stream(ctx, retrieval.Request{UserID: userID, Message: args[0]})
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			out := cmd.OutOrStdout()
			var failed bool
			for e := range events {
				if e.Status == retrieval.StatusError {
					failed = true
				}
				if err := printEvent(out, e, asJSON); err != nil {
					return fmt.Errorf("query: %w", err)
				}
			}
			if failed {
				return fmt.Errorf("query: retrieval failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User namespace to search (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON event per line")

	return cmd
}

// printEvent writes e as a JSON line or a "[status] message" line. The done
// event's context is printed in full.
func printEvent(w io.Writer, e retrieval.Event, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(e)
	}
	switch e.Status {
	case retrieval.StatusReranked:
		_, err := fmt.Fprintf(w, "[%s]\n", e.Status)
		return err
	case retrieval.StatusDone:
		if e.Context == "" {
			_, err := fmt.Fprintf(w, "[%s] %s\n", e.Status, e.Message)
			return err
		}
		_, err := fmt.Fprintf(w, "[%s] %s\n\n%s\n", e.Status, e.Message, e.Context)
		return err
	default:
		_, err := fmt.Fprintf(w, "[%s] %s\n", e.Status, e.Message)
		return err
	}
}
