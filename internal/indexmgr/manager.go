// Package indexmgr coordinates scanning, chunking, embedding, and persistence
// into a single incremental indexing pipeline. It is the top-level entry
// point used by the CLI to build and refresh an index.
package indexmgr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Aman-CERP/codesearch/internal/chunk"
	"github.com/Aman-CERP/codesearch/internal/errors"
	"github.com/Aman-CERP/codesearch/internal/scanner"
	"github.com/Aman-CERP/codesearch/internal/search"
	"github.com/Aman-CERP/codesearch/internal/store"
)

// ChangeType classifies a detected file difference between the filesystem
// and the persisted index state.
type ChangeType int

const (
	ChangeAdded ChangeType = iota
	ChangeModified
	ChangeDeleted
)

func (c ChangeType) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileChange represents a single file that needs indexing work.
type FileChange struct {
	Path string
	Type ChangeType
}

// Config configures a Manager.
type Config struct {
	ProjectID   string
	RootPath    string
	Engine      *search.Engine
	Metadata    store.MetadataStore
	CodeChunker    chunk.Chunker
	MDChunker      chunk.Chunker
	GenericChunker chunk.Chunker
	Scanner        *scanner.Scanner

	ExcludePatterns []string
	MaxFileSize     int64 // 0 uses DefaultMaxFileSize

	// ReadOnly disables all mutating operations; Reindex returns
	// errors.ErrCodeReadOnly instead of touching storage.
	ReadOnly bool
}

// DefaultMaxFileSize caps individual file size to avoid memory blowups
// when chunking accidentally-included binary or generated files.
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// Manager drives the incremental indexing protocol: scan the tree, diff
// against stored file hashes, re-chunk only what changed, reuse embeddings
// for chunks whose content hash is unchanged, and update the BM25 and
// vector stores to match.
type Manager struct {
	cfg Config
	mu  sync.Mutex
}

// New creates a Manager from cfg.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

func (m *Manager) maxFileSize() int64 {
	if m.cfg.MaxFileSize > 0 {
		return m.cfg.MaxFileSize
	}
	return DefaultMaxFileSize
}

// Reindex performs a full incremental sync: it scans the project tree,
// diffs the result against persisted file records, and applies the
// minimal set of chunk/embedding/index updates needed to converge.
//
// Chunks whose content hash matches a chunk already on disk are not
// re-embedded; their stored embedding is carried forward unchanged. This
// is what makes repeated Reindex calls on a mostly-unchanged tree cheap.
func (m *Manager) Reindex(ctx context.Context) (Summary, error) {
	if m.cfg.ReadOnly {
		return Summary{}, errors.New(errors.ErrCodeReadOnly, "index is read-only", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Scanner == nil {
		return Summary{}, errors.New(errors.ErrCodeInternal, "scanner not configured", nil)
	}

	indexed, err := m.cfg.Metadata.GetFilesForReconciliation(ctx, m.cfg.ProjectID)
	if err != nil {
		return Summary{}, fmt.Errorf("load indexed files: %w", err)
	}

	current, err := m.scanCurrentFiles(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("scan project tree: %w", err)
	}

	changes := detectChanges(indexed, current)
	if len(changes) == 0 {
		slog.Debug("reindex: no changes detected")
		return Summary{}, nil
	}

	slog.Info("reindex: applying changes", slog.Int("count", len(changes)))
	return m.applyChanges(ctx, changes)
}

// Summary reports what a Reindex call did.
type Summary struct {
	FilesAdded     int
	FilesModified  int
	FilesDeleted   int
	ChunksReused   int // chunks whose embedding was carried forward unchanged
	ChunksEmbedded int
}

func (m *Manager) scanCurrentFiles(ctx context.Context) (map[string]*scanner.FileInfo, error) {
	resultChan, err := m.cfg.Scanner.Scan(ctx, &scanner.ScanOptions{
		RootDir:          m.cfg.RootPath,
		RespectGitignore: true,
		ExcludePatterns:  m.cfg.ExcludePatterns,
	})
	if err != nil {
		return nil, err
	}

	current := make(map[string]*scanner.FileInfo)
	for result := range resultChan {
		if result.Error != nil || result.File == nil {
			continue
		}
		// json and yaml have the config content type but are chunked by the
		// generic chunker in indexFile, so they are kept with code and markdown.
		lang := result.File.Language
		if result.File.ContentType != scanner.ContentTypeCode && result.File.ContentType != scanner.ContentTypeMarkdown &&
			lang != "json" && lang != "yaml" {
			continue
		}
		current[result.File.Path] = result.File
	}
	return current, nil
}

func detectChanges(indexed map[string]*store.File, current map[string]*scanner.FileInfo) []FileChange {
	var changes []FileChange

	for path, prev := range indexed {
		cur, ok := current[path]
		if !ok {
			changes = append(changes, FileChange{Path: path, Type: ChangeDeleted})
			continue
		}
		if !cur.ModTime.Truncate(1e9).Equal(prev.ModTime.Truncate(1e9)) || cur.Size != prev.Size {
			changes = append(changes, FileChange{Path: path, Type: ChangeModified})
		}
	}
	for path := range current {
		if _, ok := indexed[path]; !ok {
			changes = append(changes, FileChange{Path: path, Type: ChangeAdded})
		}
	}

	// Deterministic order: deletions, then modifications, then additions.
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Type != changes[j].Type {
			return changes[i].Type > changes[j].Type
		}
		return changes[i].Path < changes[j].Path
	})
	return changes
}

func (m *Manager) applyChanges(ctx context.Context, changes []FileChange) (Summary, error) {
	var sum Summary

	for _, ch := range changes {
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		default:
		}

		switch ch.Type {
		case ChangeDeleted:
			if err := m.removeFile(ctx, ch.Path); err != nil {
				slog.Warn("reindex: failed to remove file", slog.String("path", ch.Path), slog.String("error", err.Error()))
				continue
			}
			sum.FilesDeleted++
		case ChangeModified, ChangeAdded:
			reused, embedded, err := m.indexFile(ctx, ch.Path)
			if err != nil {
				slog.Warn("reindex: failed to index file", slog.String("path", ch.Path), slog.String("error", err.Error()))
				continue
			}
			sum.ChunksReused += reused
			sum.ChunksEmbedded += embedded
			if ch.Type == ChangeAdded {
				sum.FilesAdded++
			} else {
				sum.FilesModified++
			}
		}
	}

	if err := m.cfg.Metadata.RefreshProjectStats(ctx, m.cfg.ProjectID); err != nil {
		slog.Warn("reindex: failed to refresh project stats", slog.String("error", err.Error()))
	}

	return sum, nil
}

// indexFile chunks and (re-)indexes a single file, reusing embeddings for
// any chunk whose content hash is unchanged from the previous index state.
// It returns the number of chunks whose embedding was reused vs. newly
// computed.
func (m *Manager) indexFile(ctx context.Context, relPath string) (reused, embedded int, err error) {
	absPath := filepath.Join(m.cfg.RootPath, relPath)

	info, err := os.Lstat(absPath)
	if err != nil {
		return 0, 0, fmt.Errorf("stat: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return 0, 0, nil
	}
	if info.Size() > m.maxFileSize() {
		slog.Warn("indexFile: skipping oversized file", slog.String("path", relPath), slog.Int64("size", info.Size()))
		return 0, 0, nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return 0, 0, fmt.Errorf("read: %w", err)
	}
	if isBinary(content) {
		return 0, 0, nil
	}

	language := scanner.DetectLanguage(relPath)
	contentType := scanner.DetectContentType(language)

	var chunker chunk.Chunker
	switch {
	case language == "c" || language == "objc" || language == "json" || language == "yaml":
		chunker = m.cfg.GenericChunker
	case contentType == scanner.ContentTypeCode:
		chunker = m.cfg.CodeChunker
	case contentType == scanner.ContentTypeMarkdown:
		chunker = m.cfg.MDChunker
	default:
		return 0, 0, nil
	}
	if chunker == nil {
		return 0, 0, nil
	}

	fileID := generateFileID(m.cfg.ProjectID, relPath)
	fileHash := hashContent(content)

	// Existing chunks, keyed by content hash, let us tell the engine which
	// chunk IDs are untouched so their embeddings are not recomputed.
	existing, err := m.cfg.Metadata.GetChunksByFile(ctx, fileID)
	if err != nil {
		existing = nil
	}
	existingByHash := make(map[string]*store.Chunk, len(existing))
	for _, c := range existing {
		if c.ContentHash != "" {
			existingByHash[c.ContentHash] = c
		}
	}

	rawChunks, err := chunker.Chunk(ctx, &chunk.FileInput{Path: relPath, Content: content, Language: language})
	if err != nil {
		return 0, 0, fmt.Errorf("chunk: %w", err)
	}

	file := &store.File{
		ID:          fileID,
		ProjectID:   m.cfg.ProjectID,
		Path:        relPath,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentHash: fileHash,
		Language:    language,
		ContentType: string(contentType),
	}
	if err := m.cfg.Metadata.SaveFiles(ctx, []*store.File{file}); err != nil {
		return 0, 0, fmt.Errorf("save file record: %w", err)
	}

	if len(rawChunks) == 0 {
		// File now produces no chunks (e.g. emptied out); drop any stale ones.
		if len(existing) > 0 {
			ids := make([]string, len(existing))
			for i, c := range existing {
				ids[i] = c.ID
			}
			if err := m.cfg.Engine.Delete(ctx, ids); err != nil {
				return 0, 0, fmt.Errorf("delete stale chunks: %w", err)
			}
		}
		return 0, 0, nil
	}

	storeChunks := make([]*store.Chunk, len(rawChunks))
	var toEmbed []*store.Chunk
	for i, ch := range rawChunks {
		contentHash := hashContent([]byte(ch.Content))
		id := contentChunkID(relPath, contentHash)

		sc := &store.Chunk{
			ID:           id,
			FileID:       fileID,
			FilePath:     relPath,
			Content:      ch.Content,
			RawContent:   ch.RawContent,
			Context:      ch.Context,
			ContentType:  store.ContentType(ch.ContentType),
			Kind:         store.Kind(ch.Kind),
			Language:     ch.Language,
			StartLine:    ch.StartLine,
			EndLine:      ch.EndLine,
			References:   ch.References,
			Breadcrumb:   ch.Breadcrumb,
			Conformances: ch.Conformances,
			FileHash:     fileHash,
			ContentHash:  contentHash,
		}
		for _, sym := range ch.Symbols {
			sc.Symbols = append(sc.Symbols, &store.Symbol{
				Name:       sym.Name,
				Type:       store.SymbolType(sym.Type),
				StartLine:  sym.StartLine,
				EndLine:    sym.EndLine,
				Signature:  sym.Signature,
				DocComment: sym.DocComment,
			})
			if sc.Signature == "" {
				sc.Signature = sym.Signature
			}
			if sc.DocComment == "" {
				sc.DocComment = sym.DocComment
			}
		}
		storeChunks[i] = sc

		if prev, ok := existingByHash[contentHash]; ok && prev.ID == id {
			reused++
			continue
		}
		toEmbed = append(toEmbed, sc)
	}
	embedded = len(toEmbed)

	// Drop chunks that existed before but vanished from this revision.
	keep := make(map[string]bool, len(storeChunks))
	for _, c := range storeChunks {
		keep[c.ID] = true
	}
	var stale []string
	for _, c := range existing {
		if !keep[c.ID] {
			stale = append(stale, c.ID)
		}
	}
	if len(stale) > 0 {
		if err := m.cfg.Engine.Delete(ctx, stale); err != nil {
			return reused, embedded, fmt.Errorf("delete superseded chunks: %w", err)
		}
	}

	// Only new or changed chunks go through the engine (and so the embedder);
	// reused chunks keep their BM25 entry, vector and stored embedding, and
	// only their metadata (line numbers, symbols) is refreshed.
	if err := m.cfg.Engine.Index(ctx, toEmbed); err != nil {
		return reused, embedded, fmt.Errorf("index chunks: %w", err)
	}
	if reused > 0 {
		if err := m.cfg.Metadata.SaveChunks(ctx, storeChunks); err != nil {
			return reused, embedded, fmt.Errorf("save reused chunks: %w", err)
		}
	}

	return reused, embedded, nil
}

func (m *Manager) removeFile(ctx context.Context, relPath string) error {
	fileID := generateFileID(m.cfg.ProjectID, relPath)

	chunks, err := m.cfg.Metadata.GetChunksByFile(ctx, fileID)
	if err != nil || len(chunks) == 0 {
		_ = m.cfg.Metadata.DeleteFile(ctx, fileID)
		return nil
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := m.cfg.Engine.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete from index: %w", err)
	}
	return m.cfg.Metadata.DeleteFile(ctx, fileID)
}

func generateFileID(projectID, path string) string {
	h := sha256.Sum256([]byte(projectID + ":" + path))
	return hex.EncodeToString(h[:])[:16]
}

func hashContent(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// contentChunkID derives a chunk ID from its file path and content hash so
// that an unchanged chunk keeps the same ID across re-indexing even if
// surrounding lines shifted.
func contentChunkID(path, contentHash string) string {
	h := sha256.Sum256([]byte(path + ":" + contentHash))
	return hex.EncodeToString(h[:])[:24]
}

func isBinary(content []byte) bool {
	n := len(content)
	if n > 512 {
		n = 512
	}
	for i := 0; i < n; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
