package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/codesearch/internal/chunk"
	"github.com/Aman-CERP/codesearch/internal/config"
	"github.com/Aman-CERP/codesearch/internal/embed"
	"github.com/Aman-CERP/codesearch/internal/embedbatch"
	"github.com/Aman-CERP/codesearch/internal/indexmgr"
	"github.com/Aman-CERP/codesearch/internal/scanner"
	"github.com/Aman-CERP/codesearch/internal/search"
	"github.com/Aman-CERP/codesearch/internal/store"
	"github.com/Aman-CERP/codesearch/internal/telemetry"
)

// dataDirName is the per-project directory holding the index's on-disk
// state: metadata.db, bm25/, vectors.hnsw(.mapping), and the writer lock.
const dataDirName = ".codesearch"

// openedIndex bundles every store/engine a subcommand needs, plus their
// cleanup in one place so each command can defer a single Close.
type openedIndex struct {
	root       string
	dataDir    string
	metadata   *store.SQLiteStore
	bm25       store.BM25Index
	vector     *store.HNSWStore
	embedder   embed.Embedder
	engine     *search.Engine
	manager    *indexmgr.Manager
	metrics    *telemetry.QueryMetrics
	lock       *flock.Flock
	forWriting bool
}

// openIndexOptions controls how openIndex resolves the embedder and
// whether it takes the cross-process writer lock.
type openIndexOptions struct {
	offline    bool
	forWriting bool
}

// openIndex opens (creating on first use) the on-disk index rooted at
// dataDir and wires up the engine and index manager the same way every
// subcommand needs them.
//
// When opts.forWriting is set, it takes an exclusive flock on the data
// directory first and returns an error immediately if another process
// already holds it — the index is single-writer, per the corpus's own
// embed.FileLock idiom (used there to guard concurrent model downloads;
// here it guards concurrent index writers instead).
func openIndex(ctx context.Context, root string, opts openIndexOptions) (*openedIndex, error) {
	dataDir := filepath.Join(root, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	oi := &openedIndex{root: root, dataDir: dataDir, forWriting: opts.forWriting}

	if opts.forWriting {
		lk := flock.New(filepath.Join(dataDir, ".index.lock"))
		acquired, err := lk.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire index lock: %w", err)
		}
		if !acquired {
			return nil, fmt.Errorf("index at %s is locked by another process", dataDir)
		}
		oi.lock = lk
	}

	metadata, err := store.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		oi.releaseLock()
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	oi.metadata = metadata

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	bm25, err := store.NewBM25IndexWithBackend(filepath.Join(dataDir, "bm25"), store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		oi.Close()
		return nil, fmt.Errorf("open BM25 index: %w", err)
	}
	oi.bm25 = bm25

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	existingDims, _ := store.ReadHNSWStoreDimensions(vectorPath)

	var embedder embed.Embedder
	if opts.offline {
		embedder = embed.NewStaticEmbedder768()
	} else {
		provider := embed.ParseProvider(cfg.Embeddings.Provider)
		embedder, err = embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
		if err != nil {
			oi.Close()
			return nil, fmt.Errorf("create embedder: %w", err)
		}
	}
	dimensions := embedder.Dimensions()
	if existingDims > 0 && existingDims != dimensions {
		_ = embedder.Close()
		embedder = embed.NewStaticEmbedder768()
		dimensions = embedder.Dimensions()
	}
	oi.embedder = embedbatch.NewCoalescingEmbedder(embedder, embedbatch.DefaultConfig())

	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dimensions))
	if err != nil {
		oi.Close()
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		_ = vector.Load(vectorPath) // best-effort; a missing/corrupt side file just starts empty
	}
	oi.vector = vector

	engineConfig := search.DefaultConfig()
	if cfg.Search.MaxResults > 0 {
		engineConfig.DefaultLimit = cfg.Search.MaxResults
	}
	if cfg.Search.BM25Weight > 0 || cfg.Search.SemanticWeight > 0 {
		engineConfig.DefaultWeights = search.Weights{BM25: cfg.Search.BM25Weight, Semantic: cfg.Search.SemanticWeight}
	}
	if err := telemetry.InitTelemetrySchema(metadata.DB()); err != nil {
		oi.Close()
		return nil, fmt.Errorf("init telemetry schema: %w", err)
	}
	metricsStore, err := telemetry.NewSQLiteMetricsStore(metadata.DB())
	if err != nil {
		oi.Close()
		return nil, fmt.Errorf("open metrics store: %w", err)
	}
	oi.metrics = telemetry.NewQueryMetrics(metricsStore)

	engineOpts := []search.EngineOption{
		search.WithMultiQuerySearch(search.NewPatternDecomposer()),
		search.WithMetrics(oi.metrics),
	}
	if termFreq, ok := bm25.(search.TermFrequencyLookup); ok {
		engineOpts = append(engineOpts, search.WithBoostReranker(search.NewBoostReranker(termFreq)))
	}

	engine, err := search.NewEngine(bm25, vector, oi.embedder, metadata, engineConfig, engineOpts...)
	if err != nil {
		oi.Close()
		return nil, fmt.Errorf("create search engine: %w", err)
	}
	oi.engine = engine

	sc, err := scanner.New()
	if err != nil {
		oi.Close()
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	projectID := projectID(root)
	if _, err := metadata.GetProject(ctx, projectID); err != nil {
		_ = metadata.SaveProject(ctx, &store.Project{
			ID:          projectID,
			Name:        filepath.Base(root),
			RootPath:    root,
			ProjectType: string(config.DetectProjectType(root)),
			Version:     "1",
		})
	}

	oi.manager = indexmgr.New(indexmgr.Config{
		ProjectID:       projectID,
		RootPath:        root,
		Engine:          engine,
		Metadata:        metadata,
		CodeChunker:     chunk.NewCodeChunker(),
		MDChunker:       chunk.NewMarkdownChunker(),
		GenericChunker:  chunk.NewGenericChunker(),
		Scanner:         sc,
		ExcludePatterns: cfg.Paths.Exclude,
		ReadOnly:        !opts.forWriting,
	})

	return oi, nil
}

// Close releases every store the index opened, in reverse-acquisition
// order, and finally the writer lock if one was taken.
func (oi *openedIndex) Close() {
	if oi.metrics != nil {
		_ = oi.metrics.Close()
	}
	if oi.vector != nil {
		if oi.forWriting {
			_ = oi.vector.Save(filepath.Join(oi.dataDir, "vectors.hnsw")) // best-effort; nothing more useful to do at shutdown
		}
		_ = oi.vector.Close()
	}
	if oi.embedder != nil {
		_ = oi.embedder.Close()
	}
	if oi.bm25 != nil {
		_ = oi.bm25.Close()
	}
	if oi.metadata != nil {
		_ = oi.metadata.Close()
	}
	oi.releaseLock()
}

func (oi *openedIndex) releaseLock() {
	if oi.lock != nil {
		_ = oi.lock.Unlock()
		oi.lock = nil
	}
}

// projectID derives a stable identifier for root so repeated runs against
// the same directory reuse the same project row in metadata.db.
func projectID(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	h := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(h[:])
}

// resolveRoot finds the project root starting from the given path, falling
// back to the working directory when no project markers are found.
func resolveRoot(path string) string {
	root, err := config.FindProjectRoot(path)
	if err != nil {
		if wd, wdErr := os.Getwd(); wdErr == nil {
			return wd
		}
		return path
	}
	return root
}
