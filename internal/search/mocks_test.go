package search

import (
	"context"
	"time"

	"github.com/Aman-CERP/codesearch/internal/store"
)

// MockBM25Index is a function-field stand-in for store.BM25Index.
// Unset Fn fields return a zero value so tests only override what they need.
type MockBM25Index struct {
	IndexFn  func(ctx context.Context, docs []*store.Document) error
	SearchFn func(ctx context.Context, query string, limit int) ([]*store.BM25Result, error)
	DeleteFn func(ctx context.Context, docIDs []string) error
	AllIDsFn func() ([]string, error)
	StatsFn  func() *store.IndexStats
	SaveFn   func(path string) error
	LoadFn   func(path string) error
	CloseFn  func() error
}

func (m *MockBM25Index) Index(ctx context.Context, docs []*store.Document) error {
	if m.IndexFn != nil {
		return m.IndexFn(ctx, docs)
	}
	return nil
}

func (m *MockBM25Index) Search(ctx context.Context, query string, limit int) ([]*store.BM25Result, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, limit)
	}
	return nil, nil
}

func (m *MockBM25Index) Delete(ctx context.Context, docIDs []string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, docIDs)
	}
	return nil
}

func (m *MockBM25Index) AllIDs() ([]string, error) {
	if m.AllIDsFn != nil {
		return m.AllIDsFn()
	}
	return nil, nil
}

func (m *MockBM25Index) Stats() *store.IndexStats {
	if m.StatsFn != nil {
		return m.StatsFn()
	}
	return &store.IndexStats{}
}

func (m *MockBM25Index) Save(path string) error {
	if m.SaveFn != nil {
		return m.SaveFn(path)
	}
	return nil
}

func (m *MockBM25Index) Load(path string) error {
	if m.LoadFn != nil {
		return m.LoadFn(path)
	}
	return nil
}

func (m *MockBM25Index) Close() error {
	if m.CloseFn != nil {
		return m.CloseFn()
	}
	return nil
}

// MockVectorStore is a function-field stand-in for store.VectorStore.
type MockVectorStore struct {
	AddFn      func(ctx context.Context, ids []string, vectors [][]float32) error
	SearchFn   func(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error)
	DeleteFn   func(ctx context.Context, ids []string) error
	AllIDsFn   func() []string
	ContainsFn func(id string) bool
	CountFn    func() int
	SaveFn     func(path string) error
	LoadFn     func(path string) error
	CloseFn    func() error
}

func (m *MockVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if m.AddFn != nil {
		return m.AddFn(ctx, ids, vectors)
	}
	return nil
}

func (m *MockVectorStore) Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, k)
	}
	return nil, nil
}

func (m *MockVectorStore) Delete(ctx context.Context, ids []string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, ids)
	}
	return nil
}

func (m *MockVectorStore) AllIDs() []string {
	if m.AllIDsFn != nil {
		return m.AllIDsFn()
	}
	return nil
}

func (m *MockVectorStore) Contains(id string) bool {
	if m.ContainsFn != nil {
		return m.ContainsFn(id)
	}
	return false
}

func (m *MockVectorStore) Count() int {
	if m.CountFn != nil {
		return m.CountFn()
	}
	return 0
}

func (m *MockVectorStore) Save(path string) error {
	if m.SaveFn != nil {
		return m.SaveFn(path)
	}
	return nil
}

func (m *MockVectorStore) Load(path string) error {
	if m.LoadFn != nil {
		return m.LoadFn(path)
	}
	return nil
}

func (m *MockVectorStore) Close() error {
	if m.CloseFn != nil {
		return m.CloseFn()
	}
	return nil
}

// MockEmbedder is a function-field stand-in for embed.Embedder.
type MockEmbedder struct {
	EmbedFn         func(ctx context.Context, text string) ([]float32, error)
	EmbedBatchFn    func(ctx context.Context, texts []string) ([][]float32, error)
	DimensionsFn    func() int
	ModelNameFn     func() string
	AvailableFn     func(ctx context.Context) bool
	CloseFn         func() error
	SetBatchIndexFn func(idx int)
	SetFinalBatchFn func(isFinal bool)
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFn != nil {
		return m.EmbedFn(ctx, text)
	}
	return nil, nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedBatchFn != nil {
		return m.EmbedBatchFn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = m.Embed(ctx, texts[i])
	}
	return out, nil
}

func (m *MockEmbedder) Dimensions() int {
	if m.DimensionsFn != nil {
		return m.DimensionsFn()
	}
	return 0
}

func (m *MockEmbedder) ModelName() string {
	if m.ModelNameFn != nil {
		return m.ModelNameFn()
	}
	return "mock"
}

func (m *MockEmbedder) Available(ctx context.Context) bool {
	if m.AvailableFn != nil {
		return m.AvailableFn(ctx)
	}
	return true
}

func (m *MockEmbedder) Close() error {
	if m.CloseFn != nil {
		return m.CloseFn()
	}
	return nil
}

func (m *MockEmbedder) SetBatchIndex(idx int) {
	if m.SetBatchIndexFn != nil {
		m.SetBatchIndexFn(idx)
	}
}

func (m *MockEmbedder) SetFinalBatch(isFinal bool) {
	if m.SetFinalBatchFn != nil {
		m.SetFinalBatchFn(isFinal)
	}
}

// MockMetadataStore is an in-memory stand-in for store.MetadataStore, backed
// by plain maps rather than SQLite. symbolIndex supports
// GetChunkIDsBySymbolName for multi-hop expansion tests.
type MockMetadataStore struct {
	chunks      map[string]*store.Chunk
	symbolIndex map[string][]string // symbol name -> chunk IDs
	state       map[string]string
}

func NewMockMetadataStore() *MockMetadataStore {
	return &MockMetadataStore{
		chunks:      make(map[string]*store.Chunk),
		symbolIndex: make(map[string][]string),
		state:       make(map[string]string),
	}
}

// indexSymbols registers every symbol declared by c so GetChunkIDsBySymbolName
// can find it; used by tests wiring up multi-hop fixtures.
func (m *MockMetadataStore) indexSymbols(c *store.Chunk) {
	for _, sym := range c.Symbols {
		m.symbolIndex[sym.Name] = append(m.symbolIndex[sym.Name], c.ID)
	}
}

func (m *MockMetadataStore) SaveProject(ctx context.Context, project *store.Project) error {
	return nil
}
func (m *MockMetadataStore) GetProject(ctx context.Context, id string) (*store.Project, error) {
	return nil, nil
}
func (m *MockMetadataStore) UpdateProjectStats(ctx context.Context, id string, fileCount, chunkCount int) error {
	return nil
}
func (m *MockMetadataStore) RefreshProjectStats(ctx context.Context, id string) error { return nil }
func (m *MockMetadataStore) SaveFiles(ctx context.Context, files []*store.File) error { return nil }
func (m *MockMetadataStore) GetFileByPath(ctx context.Context, projectID, path string) (*store.File, error) {
	return nil, nil
}
func (m *MockMetadataStore) GetChangedFiles(ctx context.Context, projectID string, since time.Time) ([]*store.File, error) {
	return nil, nil
}
func (m *MockMetadataStore) ListFiles(ctx context.Context, projectID string, cursor string, limit int) ([]*store.File, string, error) {
	return nil, "", nil
}
func (m *MockMetadataStore) GetFilePathsByProject(ctx context.Context, projectID string) ([]string, error) {
	return nil, nil
}
func (m *MockMetadataStore) GetFilesForReconciliation(ctx context.Context, projectID string) (map[string]*store.File, error) {
	return nil, nil
}
func (m *MockMetadataStore) ListFilePathsUnder(ctx context.Context, projectID, dirPrefix string) ([]string, error) {
	return nil, nil
}
func (m *MockMetadataStore) DeleteFile(ctx context.Context, fileID string) error    { return nil }
func (m *MockMetadataStore) DeleteFilesByProject(ctx context.Context, projectID string) error {
	return nil
}

func (m *MockMetadataStore) SaveChunks(ctx context.Context, chunks []*store.Chunk) error {
	for _, c := range chunks {
		m.chunks[c.ID] = c
		m.indexSymbols(c)
	}
	return nil
}

func (m *MockMetadataStore) GetChunk(ctx context.Context, id string) (*store.Chunk, error) {
	c, ok := m.chunks[id]
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (m *MockMetadataStore) GetChunks(ctx context.Context, ids []string) ([]*store.Chunk, error) {
	out := make([]*store.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockMetadataStore) GetChunksByFile(ctx context.Context, fileID string) ([]*store.Chunk, error) {
	var out []*store.Chunk
	for _, c := range m.chunks {
		if c.FileID == fileID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockMetadataStore) DeleteChunks(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(m.chunks, id)
	}
	return nil
}

func (m *MockMetadataStore) DeleteChunksByFile(ctx context.Context, fileID string) error {
	for id, c := range m.chunks {
		if c.FileID == fileID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *MockMetadataStore) SearchSymbols(ctx context.Context, name string, limit int) ([]*store.Symbol, error) {
	return nil, nil
}

func (m *MockMetadataStore) GetChunkIDsBySymbolName(ctx context.Context, name string) ([]string, error) {
	return m.symbolIndex[name], nil
}

func (m *MockMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	return m.state[key], nil
}

func (m *MockMetadataStore) SetState(ctx context.Context, key, value string) error {
	m.state[key] = value
	return nil
}

func (m *MockMetadataStore) SaveChunkEmbeddings(ctx context.Context, chunkIDs []string, embeddings [][]float32, model string) error {
	return nil
}
func (m *MockMetadataStore) GetAllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	return nil, nil
}
func (m *MockMetadataStore) GetEmbeddingStats(ctx context.Context) (int, int, error) {
	return 0, 0, nil
}
func (m *MockMetadataStore) SaveIndexCheckpoint(ctx context.Context, stage string, total, embeddedCount int, embedderModel string) error {
	return nil
}
func (m *MockMetadataStore) LoadIndexCheckpoint(ctx context.Context) (*store.IndexCheckpoint, error) {
	return nil, nil
}
func (m *MockMetadataStore) ClearIndexCheckpoint(ctx context.Context) error { return nil }
func (m *MockMetadataStore) Close() error                                  { return nil }
