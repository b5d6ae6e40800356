// Package cmd provides the CLI commands for codesearch.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codesearch/internal/logging"
	"github.com/Aman-CERP/codesearch/pkg/version"
)

// Debug logging flag, wired through PersistentPreRun/PostRun like the
// corpus's other CLI entrypoints so every subcommand gets it for free.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the codesearch CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codesearch",
		Short: "Local hybrid code search (BM25 + semantic)",
		Long: `codesearch indexes a codebase and answers queries with hybrid
search: BM25 keyword matching fused with semantic (embedding) similarity
via Reciprocal Rank Fusion, then re-ranked with a metadata-aware boost
pass (path, visibility, conformance, symbol rarity).

It runs entirely locally. Start with:

  codesearch index .
  codesearch search "retry with backoff"`,
		Version: version.Version,
	}

	root.SetVersionTemplate("codesearch version {{.Version}}\n")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to ~/.codesearch/logs/")
	root.PersistentPreRunE = startLogging
	root.PersistentPostRunE = stopLogging

	root.AddCommand(newIndexCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
