package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codesearch/internal/output"
	"github.com/Aman-CERP/codesearch/internal/search"
)

type searchOptions struct {
	limit         int
	filter        string
	language      string
	symbolType    string
	format        string
	scopes        []string
	bm25Only      bool
	offline       bool
	explain       bool
	pathFilter    string
	extensions    []string
	rrfK          int
	multiHop      bool
	multiHopDepth int
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `search runs hybrid search over an already-built index: BM25
keyword matching and semantic similarity are fused with Reciprocal Rank
Fusion, then re-ranked with the path/visibility/conformance/rarity boost
pass.

Examples:
  codesearch search "retry with backoff"
  codesearch search "handleRequest" --type code --limit 5
  codesearch search "what implements Comparable" --explain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().StringVarP(&opts.filter, "type", "t", "all", "filter by type: all, code, docs")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "filter by language (e.g., go, python)")
	cmd.Flags().StringVar(&opts.symbolType, "symbol-type", "", "filter by symbol type (e.g., function, class)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format: text, json")
	cmd.Flags().StringSliceVarP(&opts.scopes, "scope", "s", nil, "restrict results to a path prefix (repeatable)")
	cmd.Flags().BoolVar(&opts.bm25Only, "bm25-only", false, "keyword search only (skip semantic search)")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "use static embeddings (skip network calls)")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "show BM25/vector ranks and fusion weights")
	cmd.Flags().StringVar(&opts.pathFilter, "path", "", "restrict results to paths matching a glob (e.g. internal/**/*.go)")
	cmd.Flags().StringSliceVar(&opts.extensions, "ext", nil, "restrict results to file extensions (repeatable, e.g. --ext go --ext ts)")
	cmd.Flags().IntVar(&opts.rrfK, "rrf-k", 0, "override the RRF fusion smoothing constant (0 = engine default)")
	cmd.Flags().BoolVar(&opts.multiHop, "multi-hop", false, "follow call references to pull in related chunks")
	cmd.Flags().IntVar(&opts.multiHopDepth, "multi-hop-depth", 1, "number of reference hops to follow when --multi-hop is set")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())
	root := resolveRoot(".")

	oi, err := openIndex(ctx, root, openIndexOptions{offline: opts.offline || opts.bm25Only})
	if err != nil {
		return fmt.Errorf("open index (run 'codesearch index' first): %w", err)
	}
	defer oi.Close()

	results, err := oi.engine.Search(ctx, query, search.SearchOptions{
		Limit:           opts.limit,
		Filter:          opts.filter,
		Language:        opts.language,
		SymbolType:      opts.symbolType,
		Scopes:          opts.scopes,
		BM25Only:        opts.bm25Only,
		Explain:         opts.explain,
		PathFilter:      opts.pathFilter,
		ExtensionFilter: opts.extensions,
		RRFK:            opts.rrfK,
		MultiHop:        opts.multiHop,
		MultiHopDepth:   opts.multiHopDepth,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		out.Status("", fmt.Sprintf("no results for %q", query))
		return nil
	}

	if opts.format == "json" {
		return formatJSON(cmd, results)
	}
	return formatText(out, query, results)
}

func formatText(out *output.Writer, query string, results []*search.SearchResult) error {
	if results[0].Explain != nil {
		formatExplainHeader(out, results[0].Explain)
	}

	out.Statusf("🔍", "found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		if r.Chunk == nil {
			continue
		}
		location := r.Chunk.FilePath
		if r.Chunk.StartLine > 0 {
			location = fmt.Sprintf("%s:%d", r.Chunk.FilePath, r.Chunk.StartLine)
		}

		switch {
		case r.Explain != nil:
			out.Statusf("", "%d. %s (score: %.3f)", i+1, location, r.Score)
			out.Status("", fmt.Sprintf("      bm25: rank %d (score: %.3f) | vector: rank %d (score: %.3f)",
				r.BM25Rank, r.BM25Score, r.VecRank, r.VecScore))
		case r.IsMultiHop:
			out.Statusf("", "%d. %s (score: %.2f, multi-hop depth %d)", i+1, location, r.Score, r.HopDepth)
		default:
			out.Statusf("", "%d. %s (score: %.2f)", i+1, location, r.Score)
		}

		for _, line := range snippet(r.Chunk.Content, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}
	return nil
}

func formatExplainHeader(out *output.Writer, explain *search.ExplainData) {
	out.Status("", strings.Repeat("=", 40))
	out.Status("", "search explanation")
	out.Status("", fmt.Sprintf("query: %q", explain.Query))
	out.Newline()

	switch {
	case explain.BM25Only:
		out.Status("", "mode: bm25-only")
	case explain.DimensionMismatch:
		out.Status("", "mode: bm25-only (dimension mismatch, run 'codesearch index --offline' or 'codesearch index' to rebuild)")
	case explain.MultiQueryDecomposed:
		out.Status("", "mode: multi-query decomposition")
		for _, sq := range explain.SubQueries {
			out.Status("", fmt.Sprintf("  - %q", sq))
		}
	default:
		out.Status("", "mode: hybrid (bm25 + vector)")
	}
	out.Newline()

	out.Status("", fmt.Sprintf("bm25 results: %d (weight %.2f)", explain.BM25ResultCount, explain.Weights.BM25))
	out.Status("", fmt.Sprintf("vector results: %d (weight %.2f)", explain.VectorResultCount, explain.Weights.Semantic))
	out.Status("", fmt.Sprintf("rrf constant: k=%d", explain.RRFConstant))
	out.Status("", strings.Repeat("=", 40))
	out.Newline()
}

func formatJSON(cmd *cobra.Command, results []*search.SearchResult) error {
	type jsonResult struct {
		FilePath   string  `json:"file_path"`
		StartLine  int     `json:"start_line"`
		EndLine    int     `json:"end_line"`
		Score      float64 `json:"score"`
		Content    string  `json:"content"`
		Language   string  `json:"language,omitempty"`
		IsMultiHop bool    `json:"is_multi_hop,omitempty"`
		HopDepth   int     `json:"hop_depth,omitempty"`
	}

	var out []jsonResult
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		out = append(out, jsonResult{
			FilePath:   r.Chunk.FilePath,
			StartLine:  r.Chunk.StartLine,
			EndLine:    r.Chunk.EndLine,
			Score:      r.Score,
			Content:    r.Chunk.Content,
			Language:   r.Chunk.Language,
			IsMultiHop: r.IsMultiHop,
			HopDepth:   r.HopDepth,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
