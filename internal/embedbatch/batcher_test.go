package embedbatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codesearch/internal/embed"
)

// countingEmbedder wraps a real embedder to record how many EmbedBatch calls
// were made, so tests can assert coalescing actually happened.
type countingEmbedder struct {
	embed.Embedder
	mu    sync.Mutex
	calls int
	fail  bool
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	shouldFail := c.fail
	c.mu.Unlock()
	if shouldFail {
		return nil, assert.AnError
	}
	return c.Embedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestEmbedder() *countingEmbedder {
	return &countingEmbedder{Embedder: embed.NewStaticEmbedder768()}
}

func TestBatcher_SingleRequest_ReturnsVectorsInOrder(t *testing.T) {
	ce := newTestEmbedder()
	b := New(ce, DefaultConfig())
	defer b.Close()

	vectors, err := b.Embed(context.Background(), []string{"func Foo()", "func Bar()"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	want, err := ce.Embedder.EmbedBatch(context.Background(), []string{"func Foo()", "func Bar()"})
	require.NoError(t, err)
	assert.Equal(t, Vector(want[0]), vectors[0])
	assert.Equal(t, Vector(want[1]), vectors[1])
}

func TestBatcher_ConcurrentCallersCoalesceIntoOneCall(t *testing.T) {
	ce := newTestEmbedder()
	cfg := DefaultConfig()
	cfg.BatchSize = 10
	cfg.BatchTimeout = time.Hour // never fires on its own; count triggers the flush
	b := New(ce, cfg)
	defer b.Close()

	var wg sync.WaitGroup
	results := make([][]Vector, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vecs, err := b.Embed(context.Background(), []string{"text"})
			require.NoError(t, err)
			results[i] = vecs
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.Len(t, r, 1)
	}
	assert.Equal(t, 1, ce.callCount())
}

func TestBatcher_TimeoutFlushesPartialBatch(t *testing.T) {
	ce := newTestEmbedder()
	cfg := DefaultConfig()
	cfg.BatchSize = 100
	cfg.BatchTimeout = 20 * time.Millisecond
	b := New(ce, cfg)
	defer b.Close()

	vectors, err := b.Embed(context.Background(), []string{"only one request"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, 1, ce.callCount())
}

func TestBatcher_ExplicitFlush(t *testing.T) {
	ce := newTestEmbedder()
	cfg := DefaultConfig()
	cfg.BatchSize = 100
	cfg.BatchTimeout = time.Hour
	b := New(ce, cfg)
	defer b.Close()

	done := make(chan struct{})
	go func() {
		_, _ = b.Embed(context.Background(), []string{"flush me"})
		close(done)
	}()

	time.Sleep(10 * time.Millisecond) // let the request reach the batcher goroutine
	b.Flush()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Flush did not unblock pending request")
	}
}

func TestBatcher_ProviderErrorFailsOnlyThatBatch(t *testing.T) {
	ce := newTestEmbedder()
	cfg := DefaultConfig()
	cfg.BatchSize = 1
	b := New(ce, cfg)
	defer b.Close()

	ce.mu.Lock()
	ce.fail = true
	ce.mu.Unlock()

	_, err := b.Embed(context.Background(), []string{"will fail"})
	require.Error(t, err)

	ce.mu.Lock()
	ce.fail = false
	ce.mu.Unlock()

	vectors, err := b.Embed(context.Background(), []string{"will succeed"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
}

func TestBatcher_ContextCancellationUnblocksCaller(t *testing.T) {
	ce := newTestEmbedder()
	cfg := DefaultConfig()
	cfg.BatchTimeout = time.Hour
	cfg.BatchSize = 100
	b := New(ce, cfg)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Embed(ctx, []string{"canceled"})
	require.Error(t, err)
}
