package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codesearch/internal/output"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd)
		},
	}
}

func runStats(ctx context.Context, cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	root := resolveRoot(".")

	oi, err := openIndex(ctx, root, openIndexOptions{offline: true})
	if err != nil {
		return fmt.Errorf("open index (run 'codesearch index' first): %w", err)
	}
	defer oi.Close()

	stats := oi.engine.Stats()
	out.Status("", fmt.Sprintf("root: %s", root))
	if stats.BM25Stats != nil {
		out.Status("", fmt.Sprintf("bm25 documents: %d", stats.BM25Stats.DocumentCount))
		out.Status("", fmt.Sprintf("bm25 terms: %d", stats.BM25Stats.TermCount))
		out.Status("", fmt.Sprintf("average doc length: %.1f", stats.BM25Stats.AvgDocLength))
	}
	out.Status("", fmt.Sprintf("vectors: %d", stats.VectorCount))
	return nil
}
