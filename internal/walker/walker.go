// Package walker discovers indexable files under a project root as a lazy
// sequence, honoring include/exclude globs, extension filters, a max file
// size, and nested .gitignore files.
//
// Grounded on internal/scanner/scanner.go's directory-walk and gitignore
// integration, adapted from a channel-fed Scan call into the stdlib iter
// iterator shape the pipeline now expects.
package walker

import (
	"context"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Aman-CERP/codesearch/internal/gitignore"
)

// WalkOptions configures a Walk call. Exclude wins over Include on conflict.
type WalkOptions struct {
	// Include, when non-empty, restricts results to paths matching at least
	// one glob (github.com/gobwas/glob syntax, matched against the path
	// relative to root).
	Include []string

	// Exclude globs are checked before Include; a match skips the path
	// (and, for directories, the whole subtree).
	Exclude []string

	// Extensions, when non-empty, restricts results to files with one of
	// these extensions (e.g. ".go", ".ts"); matched case-insensitively.
	Extensions []string

	// MaxFileSize skips files larger than this many bytes. Zero means no
	// limit beyond the package default.
	MaxFileSize int64

	// FollowSymlinks controls whether symlinked files are visited.
	FollowSymlinks bool

	// RespectGitignore honors nested .gitignore files under root, same as
	// the scanner's existing behavior.
	RespectGitignore bool
}

// DefaultMaxFileSize is used when WalkOptions.MaxFileSize is zero.
const DefaultMaxFileSize = 5 * 1024 * 1024

// WalkStats accumulates counters as a Walk progresses, readable once the
// iterator has been fully drained.
type WalkStats struct {
	FilesVisited int
	FilesSkipped int
	OversizeSkipped int
}

// Walk lazily visits every indexable file under root in stable
// lexicographic order per directory, yielding (path, nil) for indexable
// files and (path, err) for an unrecoverable per-file error. The walk
// itself never mutates shared state, so Walk is safe to call concurrently
// on disjoint roots.
//
// stats, if non-nil, is updated as the sequence is consumed; its values are
// only meaningful after the returned iterator has been fully drained (or
// abandoned early, in which case they reflect partial progress).
func Walk(ctx context.Context, root string, opts WalkOptions, stats *WalkStats) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			yield("", err)
			return
		}

		maxSize := opts.MaxFileSize
		if maxSize <= 0 {
			maxSize = DefaultMaxFileSize
		}

		includeGlobs, err := compileGlobs(opts.Include)
		if err != nil {
			yield("", err)
			return
		}
		excludeGlobs, err := compileGlobs(opts.Exclude)
		if err != nil {
			yield("", err)
			return
		}

		gi := newGitignoreWalker(absRoot, opts.RespectGitignore)

		walkDir(ctx, absRoot, absRoot, "", opts, maxSize, includeGlobs, excludeGlobs, gi, stats, yield)
	}
}

func walkDir(ctx context.Context, absRoot, dir, relDir string, opts WalkOptions, maxSize int64, include, exclude []glob.Glob, gi *gitignoreWalker, stats *WalkStats, yield func(string, error) bool) bool {
	if err := ctx.Err(); err != nil {
		return yield(relDir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return yield(relDir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		childRel := name
		if relDir != "" {
			childRel = filepath.Join(relDir, name)
		}
		childAbs := filepath.Join(dir, name)

		if entry.IsDir() {
			if matchesAny(exclude, childRel) || gi.isIgnored(childRel, true) {
				continue
			}
			if !walkDir(ctx, absRoot, childAbs, childRel, opts, maxSize, include, exclude, gi, stats, yield) {
				return false
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if !yield(childRel, err) {
				return false
			}
			continue
		}

		if info.Mode()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			continue
		}

		if matchesAny(exclude, childRel) || gi.isIgnored(childRel, false) {
			continue
		}
		if len(include) > 0 && !matchesAny(include, childRel) {
			continue
		}
		if len(opts.Extensions) > 0 && !matchesExtension(childRel, opts.Extensions) {
			continue
		}
		if info.Size() > maxSize {
			if stats != nil {
				stats.OversizeSkipped++
				stats.FilesSkipped++
			}
			slog.Warn("walker_skip_oversize_file",
				slog.String("path", childRel),
				slog.Int64("size", info.Size()),
				slog.Int64("max_size", maxSize))
			continue
		}

		if stats != nil {
			stats.FilesVisited++
		}
		if !yield(childRel, nil) {
			return false
		}
	}

	return true
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchesAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func matchesExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range extensions {
		if strings.ToLower(want) == ext {
			return true
		}
	}
	return false
}

// gitignoreWalker lazily loads .gitignore files as the walk descends,
// mirroring scanner.Scanner's per-directory matcher cache but scoped to a
// single Walk call instead of a package-level LRU.
type gitignoreWalker struct {
	absRoot  string
	enabled  bool
	matchers map[string]*gitignore.Matcher
}

func newGitignoreWalker(absRoot string, enabled bool) *gitignoreWalker {
	return &gitignoreWalker{absRoot: absRoot, enabled: enabled, matchers: make(map[string]*gitignore.Matcher)}
}

func (g *gitignoreWalker) isIgnored(relPath string, isDir bool) bool {
	if !g.enabled {
		return false
	}

	dir := g.absRoot
	base := ""
	if m := g.matcherFor(dir, base); m != nil && m.Match(relPath, isDir) {
		return true
	}

	parts := strings.Split(filepath.Dir(relPath), string(filepath.Separator))
	for _, part := range parts {
		if part == "." || part == "" {
			continue
		}
		dir = filepath.Join(dir, part)
		if base == "" {
			base = part
		} else {
			base = filepath.Join(base, part)
		}
		if m := g.matcherFor(dir, base); m != nil && m.Match(relPath, isDir) {
			return true
		}
	}

	return false
}

func (g *gitignoreWalker) matcherFor(dir, base string) *gitignore.Matcher {
	if m, ok := g.matchers[dir]; ok {
		return m
	}

	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		g.matchers[dir] = nil
		return nil
	}

	m := gitignore.New()
	if err := m.AddFromFile(path, base); err != nil {
		g.matchers[dir] = nil
		return nil
	}
	g.matchers[dir] = m
	return m
}
