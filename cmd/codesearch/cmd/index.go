package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codesearch/internal/output"
)

type indexOptions struct {
	offline bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build or incrementally refresh the index for a project",
		Long: `index scans a project tree, chunks every source and markdown
file, embeds the chunks that changed since the last run, and updates the
BM25 and vector stores to match.

Unchanged chunks are not re-embedded: their prior embedding is carried
forward, which is what makes repeated runs on a mostly-unchanged tree
fast.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(cmd.Context(), cmd, path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.offline, "offline", false, "use static embeddings (skip network calls)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, opts indexOptions) error {
	out := output.New(cmd.OutOrStdout())
	root := resolveRoot(path)

	out.Statusf("", "indexing %s", root)

	oi, err := openIndex(ctx, root, openIndexOptions{offline: opts.offline, forWriting: true})
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer oi.Close()

	summary, err := oi.manager.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	if summary.FilesAdded == 0 && summary.FilesModified == 0 && summary.FilesDeleted == 0 {
		out.Success("index already up to date")
		return nil
	}

	out.Successf("indexed %d added, %d modified, %d deleted files (%d chunks embedded, %d reused)",
		summary.FilesAdded, summary.FilesModified, summary.FilesDeleted,
		summary.ChunksEmbedded, summary.ChunksReused)
	return nil
}
