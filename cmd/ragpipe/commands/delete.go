package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragpipe-go/internal/logging"
	"github.com/54b3r/ragpipe-go/internal/rag"
)

// NewDeleteCmd constructs the `ragpipe delete` command, which removes a
// document's points from a user's namespace.
func NewDeleteCmd() *cobra.Command {
	var userID string
	var name string
	var url string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a document's vectors by name or url",
		Long: `Delete every point of a user's document. Points match when their document
name equals --name or their document url equals --url; at least one is
required. Other users' points are never touched.

Examples:
  ragpipe delete --user u1 --name handbook.md
  ragpipe delete --user u1 --url https://example.com/policy.txt`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if userID == "" {
				return fmt.Errorf("delete: --user is required")
			}
			if name == "" && url == "" {
				return fmt.Errorf("delete: --name or --url is required")
			}

			c, err := buildComponents(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			defer closeWith(c, &err)

			n, err := c.store.Delete(ctx, userID, rag.File{Name: name, URL: url})
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			log.Info("document deleted", slog.String("user_id", userID), slog.Int("points", n))
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d points\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User namespace (required)")
	cmd.Flags().StringVar(&name, "name", "", "Document name to delete")
	cmd.Flags().StringVar(&url, "url", "", "Document url to delete")

	return cmd
}
