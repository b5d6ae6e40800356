package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteStore implements MetadataStore on top of a single SQLite database
// file. It is the source of truth for files, chunks, symbols, and
// conformance relationships; the BM25 and vector stores are derived
// indices that can always be rebuilt from it.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if necessary) the metadata database at path.
// An empty path opens an in-memory database, used in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer: modernc.org/sqlite serializes through one connection,
	// so a larger pool just adds lock contention against itself.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// DB returns the underlying *sql.DB so other on-disk components (query
// telemetry) can share this store's single connection instead of opening
// their own.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		root_path TEXT NOT NULL,
		project_type TEXT,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		file_count INTEGER NOT NULL DEFAULT 0,
		indexed_at TIMESTAMP,
		version TEXT
	);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		mod_time TIMESTAMP NOT NULL,
		content_hash TEXT NOT NULL,
		language TEXT,
		content_type TEXT,
		indexed_at TIMESTAMP NOT NULL,
		UNIQUE(project_id, path)
	);
	CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		file_path TEXT NOT NULL,
		content TEXT NOT NULL,
		raw_content TEXT,
		context TEXT,
		content_type TEXT,
		kind TEXT,
		language TEXT,
		start_line INTEGER,
		end_line INTEGER,
		doc_comment TEXT,
		signature TEXT,
		breadcrumb TEXT,
		file_hash TEXT,
		content_hash TEXT,
		token_count INTEGER,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_content_hash ON chunks(content_hash);

	CREATE TABLE IF NOT EXISTS symbols (
		chunk_id TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		type TEXT,
		start_line INTEGER,
		end_line INTEGER,
		signature TEXT,
		doc_comment TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
	CREATE INDEX IF NOT EXISTS idx_symbols_chunk ON symbols(chunk_id);

	-- Protocol/interface conformance edges: which chunk's type satisfies
	-- which named protocol. Indexed on protocol_name so a query for a
	-- conformance can fan out to every conforming type in one lookup.
	CREATE TABLE IF NOT EXISTS chunk_conformances (
		chunk_id TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
		protocol_name TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conformances_protocol ON chunk_conformances(protocol_name);
	CREATE INDEX IF NOT EXISTS idx_conformances_chunk ON chunk_conformances(chunk_id);

	CREATE TABLE IF NOT EXISTS chunk_references (
		chunk_id TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
		reference TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_references_chunk ON chunk_references(chunk_id);

	CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
		vector BLOB NOT NULL,
		model TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checkpoint (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		stage TEXT NOT NULL,
		total INTEGER NOT NULL,
		embedded_count INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		embedder_model TEXT
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (2);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---- Project operations ----

func (s *SQLiteStore) SaveProject(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, root_path, project_type, chunk_count, file_count, indexed_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, root_path=excluded.root_path, project_type=excluded.project_type,
			chunk_count=excluded.chunk_count, file_count=excluded.file_count,
			indexed_at=excluded.indexed_at, version=excluded.version`,
		p.ID, p.Name, p.RootPath, p.ProjectType, p.ChunkCount, p.FileCount, p.IndexedAt, p.Version)
	return err
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, name, root_path, project_type, chunk_count, file_count, indexed_at, version FROM projects WHERE id = ?`, id)
	p := &Project{}
	if err := row.Scan(&p.ID, &p.Name, &p.RootPath, &p.ProjectType, &p.ChunkCount, &p.FileCount, &p.IndexedAt, &p.Version); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) UpdateProjectStats(ctx context.Context, id string, fileCount, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET file_count = ?, chunk_count = ?, indexed_at = ? WHERE id = ?`,
		fileCount, chunkCount, time.Now(), id)
	return err
}

func (s *SQLiteStore) RefreshProjectStats(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fileCount, chunkCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE project_id = ?`, id).Scan(&fileCount); err != nil {
		return err
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks c JOIN files f ON c.file_id = f.id WHERE f.project_id = ?`, id).Scan(&chunkCount); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET file_count = ?, chunk_count = ?, indexed_at = ? WHERE id = ?`,
		fileCount, chunkCount, time.Now(), id)
	return err
}

// ---- File operations ----

func (s *SQLiteStore) SaveFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			size=excluded.size, mod_time=excluded.mod_time, content_hash=excluded.content_hash,
			language=excluded.language, content_type=excluded.content_type, indexed_at=excluded.indexed_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, f.ID, f.ProjectID, f.Path, f.Size, f.ModTime, f.ContentHash, f.Language, f.ContentType, now); err != nil {
			return fmt.Errorf("save file %s: %w", f.Path, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetFileByPath(ctx context.Context, projectID, path string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ? AND path = ?`, projectID, path)
	return scanFile(row)
}

func scanFile(row *sql.Row) (*File, error) {
	f := &File{}
	if err := row.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Size, &f.ModTime, &f.ContentHash, &f.Language, &f.ContentType, &f.IndexedAt); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *SQLiteStore) GetChangedFiles(ctx context.Context, projectID string, since time.Time) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ? AND mod_time > ? ORDER BY path`, projectID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Size, &f.ModTime, &f.ContentHash, &f.Language, &f.ContentType, &f.IndexedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListFiles(ctx context.Context, projectID string, cursor string, limit int) ([]*File, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ? AND path > ? ORDER BY path LIMIT ?`, projectID, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Size, &f.ModTime, &f.ContentHash, &f.Language, &f.ContentType, &f.IndexedAt); err != nil {
			return nil, "", err
		}
		out = append(out, f)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].Path
	}
	return out, next, rows.Err()
}

func (s *SQLiteStore) GetFilePathsByProject(ctx context.Context, projectID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) GetFilesForReconciliation(ctx context.Context, projectID string) (map[string]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at
		FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*File)
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Size, &f.ModTime, &f.ContentHash, &f.Language, &f.ContentType, &f.IndexedAt); err != nil {
			return nil, err
		}
		out[f.Path] = f
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListFilePathsUnder(ctx context.Context, projectID, dirPrefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM files WHERE project_id = ? AND (path = ? OR path LIKE ?)`,
		projectID, dirPrefix, dirPrefix+"/%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	return err
}

func (s *SQLiteStore) DeleteFilesByProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, projectID)
	return err
}

// ---- Chunk operations ----

func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file_id, file_path, content, raw_content, context, content_type, kind,
			language, start_line, end_line, doc_comment, signature, breadcrumb, file_hash, content_hash,
			token_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content=excluded.content, raw_content=excluded.raw_content, context=excluded.context,
			content_type=excluded.content_type, kind=excluded.kind, language=excluded.language,
			start_line=excluded.start_line, end_line=excluded.end_line, doc_comment=excluded.doc_comment,
			signature=excluded.signature, breadcrumb=excluded.breadcrumb, file_hash=excluded.file_hash,
			content_hash=excluded.content_hash, token_count=excluded.token_count, updated_at=excluded.updated_at`)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()

	symStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (chunk_id, name, type, start_line, end_line, signature, doc_comment)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer symStmt.Close()

	clearSymStmt, err := tx.PrepareContext(ctx, `DELETE FROM symbols WHERE chunk_id = ?`)
	if err != nil {
		return err
	}
	defer clearSymStmt.Close()

	confStmt, err := tx.PrepareContext(ctx, `INSERT INTO chunk_conformances (chunk_id, protocol_name) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer confStmt.Close()

	clearConfStmt, err := tx.PrepareContext(ctx, `DELETE FROM chunk_conformances WHERE chunk_id = ?`)
	if err != nil {
		return err
	}
	defer clearConfStmt.Close()

	refStmt, err := tx.PrepareContext(ctx, `INSERT INTO chunk_references (chunk_id, reference) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer refStmt.Close()

	clearRefStmt, err := tx.PrepareContext(ctx, `DELETE FROM chunk_references WHERE chunk_id = ?`)
	if err != nil {
		return err
	}
	defer clearRefStmt.Close()

	now := time.Now()
	for _, c := range chunks {
		if _, err := chunkStmt.ExecContext(ctx, c.ID, c.FileID, c.FilePath, c.Content, c.RawContent, c.Context,
			string(c.ContentType), string(c.Kind), c.Language, c.StartLine, c.EndLine, c.DocComment,
			c.Signature, c.Breadcrumb, c.FileHash, c.ContentHash, c.TokenCount, now, now); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}

		if _, err := clearSymStmt.ExecContext(ctx, c.ID); err != nil {
			return err
		}
		for _, sym := range c.Symbols {
			if _, err := symStmt.ExecContext(ctx, c.ID, sym.Name, string(sym.Type), sym.StartLine, sym.EndLine, sym.Signature, sym.DocComment); err != nil {
				return err
			}
		}

		if _, err := clearConfStmt.ExecContext(ctx, c.ID); err != nil {
			return err
		}
		for _, proto := range c.Conformances {
			if _, err := confStmt.ExecContext(ctx, c.ID, proto); err != nil {
				return err
			}
		}

		if _, err := clearRefStmt.ExecContext(ctx, c.ID); err != nil {
			return err
		}
		for _, ref := range c.References {
			if _, err := refStmt.ExecContext(ctx, c.ID, ref); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getChunk(ctx, id)
}

func (s *SQLiteStore) getChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_id, file_path, content, raw_content, context, content_type, kind, language,
			start_line, end_line, doc_comment, signature, breadcrumb, file_hash, content_hash,
			token_count, created_at, updated_at
		FROM chunks WHERE id = ?`, id)

	c, err := scanChunk(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachChunkExtras(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func scanChunk(row *sql.Row) (*Chunk, error) {
	c := &Chunk{}
	var contentType, kind string
	if err := row.Scan(&c.ID, &c.FileID, &c.FilePath, &c.Content, &c.RawContent, &c.Context, &contentType, &kind,
		&c.Language, &c.StartLine, &c.EndLine, &c.DocComment, &c.Signature, &c.Breadcrumb, &c.FileHash,
		&c.ContentHash, &c.TokenCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ContentType = ContentType(contentType)
	c.Kind = Kind(kind)
	return c, nil
}

func (s *SQLiteStore) attachChunkExtras(ctx context.Context, c *Chunk) error {
	symRows, err := s.db.QueryContext(ctx, `SELECT name, type, start_line, end_line, signature, doc_comment FROM symbols WHERE chunk_id = ?`, c.ID)
	if err != nil {
		return err
	}
	defer symRows.Close()
	for symRows.Next() {
		sym := &Symbol{}
		var symType string
		if err := symRows.Scan(&sym.Name, &symType, &sym.StartLine, &sym.EndLine, &sym.Signature, &sym.DocComment); err != nil {
			return err
		}
		sym.Type = SymbolType(symType)
		c.Symbols = append(c.Symbols, sym)
	}
	if err := symRows.Err(); err != nil {
		return err
	}

	confRows, err := s.db.QueryContext(ctx, `SELECT protocol_name FROM chunk_conformances WHERE chunk_id = ?`, c.ID)
	if err != nil {
		return err
	}
	defer confRows.Close()
	for confRows.Next() {
		var p string
		if err := confRows.Scan(&p); err != nil {
			return err
		}
		c.Conformances = append(c.Conformances, p)
	}
	if err := confRows.Err(); err != nil {
		return err
	}

	refRows, err := s.db.QueryContext(ctx, `SELECT reference FROM chunk_references WHERE chunk_id = ?`, c.ID)
	if err != nil {
		return err
	}
	defer refRows.Close()
	for refRows.Next() {
		var r string
		if err := refRows.Scan(&r); err != nil {
			return err
		}
		c.References = append(c.References, r)
	}
	return refRows.Err()
}

func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		c, err := s.getChunk(ctx, id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SQLiteStore) GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		c, err := s.getChunk(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteChunksByFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID)
	return err
}

// ---- Symbol operations ----

func (s *SQLiteStore) SearchSymbols(ctx context.Context, name string, limit int) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, start_line, end_line, signature, doc_comment
		FROM symbols WHERE name LIKE ? ORDER BY name LIMIT ?`, "%"+name+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Symbol
	for rows.Next() {
		sym := &Symbol{}
		var symType string
		if err := rows.Scan(&sym.Name, &symType, &sym.StartLine, &sym.EndLine, &sym.Signature, &sym.DocComment); err != nil {
			return nil, err
		}
		sym.Type = SymbolType(symType)
		out = append(out, sym)
	}
	return out, rows.Err()
}

// ---- Conformance lookups ----

// GetChunkIDsByConformance returns chunk IDs whose type conforms to protocolName.
func (s *SQLiteStore) GetChunkIDsByConformance(ctx context.Context, protocolName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunk_conformances WHERE protocol_name = ?`, protocolName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetChunkIDsBySymbolName returns the IDs of chunks that declare a symbol
// with exactly this name. Used by multi-hop search expansion to follow a
// chunk's References to the chunks that define them.
func (s *SQLiteStore) GetChunkIDsBySymbolName(ctx context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT chunk_id FROM symbols WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---- State operations ----

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// ---- Embedding operations ----

func (s *SQLiteStore) SaveChunkEmbeddings(ctx context.Context, chunkIDs []string, embeddings [][]float32, model string) error {
	if len(chunkIDs) != len(embeddings) {
		return fmt.Errorf("chunkIDs and embeddings length mismatch: %d vs %d", len(chunkIDs), len(embeddings))
	}
	if len(chunkIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (chunk_id, vector, model) VALUES (?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET vector = excluded.vector, model = excluded.model`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, id, encodeVector(embeddings[i]), model); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetAllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, vector FROM embeddings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		out[id] = decodeVector(blob)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetEmbeddingStats(ctx context.Context) (withEmbedding, withoutEmbedding int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&withEmbedding); err != nil {
		return 0, 0, err
	}
	var total int
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&total); err != nil {
		return 0, 0, err
	}
	withoutEmbedding = total - withEmbedding
	if withoutEmbedding < 0 {
		withoutEmbedding = 0
	}
	return withEmbedding, withoutEmbedding, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// ---- Checkpoint operations ----

func (s *SQLiteStore) SaveIndexCheckpoint(ctx context.Context, stage string, total, embeddedCount int, embedderModel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoint (id, stage, total, embedded_count, timestamp, embedder_model) VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET stage=excluded.stage, total=excluded.total,
			embedded_count=excluded.embedded_count, timestamp=excluded.timestamp, embedder_model=excluded.embedder_model`,
		stage, total, embeddedCount, time.Now(), embedderModel)
	return err
}

func (s *SQLiteStore) LoadIndexCheckpoint(ctx context.Context) (*IndexCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := &IndexCheckpoint{}
	err := s.db.QueryRowContext(ctx, `SELECT stage, total, embedded_count, timestamp, embedder_model FROM checkpoint WHERE id = 1`).
		Scan(&cp.Stage, &cp.Total, &cp.EmbeddedCount, &cp.Timestamp, &cp.EmbedderModel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *SQLiteStore) ClearIndexCheckpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoint WHERE id = 1`)
	return err
}

// ---- Lifecycle ----

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
