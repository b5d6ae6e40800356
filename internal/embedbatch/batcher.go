// Package embedbatch coalesces concurrent embedding requests into batches
// before handing them to a single embedding provider call, trading a small
// amount of added latency per request for far fewer round trips under
// concurrent indexing load.
//
// The teacher calls embed.Embedder per chunk batch already sized by the
// caller; this package adds the missing coalescing layer in front of it,
// grounded on the goroutine+channel coordination shape of
// internal/async/indexer.go and the retry/backoff idiom of
// internal/embed/retry.go.
package embedbatch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/codesearch/internal/embed"
)

// Defaults per the batching policy: flush on whichever of count, timeout,
// or memory limit is hit first.
const (
	DefaultBatchSize      = 32
	DefaultBatchTimeout    = 150 * time.Millisecond
	DefaultBatchMemoryMB   = 10
)

// Vector is a single embedding result.
type Vector []float32

// Config configures a Batcher's flush policy.
type Config struct {
	BatchSize      int
	BatchTimeout   time.Duration
	BatchMemoryMB  int
}

// DefaultConfig returns the spec's default flush thresholds.
func DefaultConfig() Config {
	return Config{
		BatchSize:     DefaultBatchSize,
		BatchTimeout:  DefaultBatchTimeout,
		BatchMemoryMB: DefaultBatchMemoryMB,
	}
}

// pendingRequest is one caller's Embed call, still waiting for a batch flush.
type pendingRequest struct {
	texts  []string
	result chan embedResult
}

type embedResult struct {
	vectors []Vector
	err     error
}

// submission is how callers hand a request to the batcher goroutine.
type submission struct {
	req *pendingRequest
}

// Batcher owns a single goroutine that accumulates pending requests and
// flushes them to the underlying embedder as one batched call. Safe for
// concurrent use by multiple callers.
type Batcher struct {
	embedder embed.Embedder
	config   Config

	submit chan submission
	flush  chan chan struct{}
	done   chan struct{}
}

// New starts the batcher's background goroutine. Call Close to stop it.
func New(embedder embed.Embedder, config Config) *Batcher {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = DefaultBatchTimeout
	}
	if config.BatchMemoryMB <= 0 {
		config.BatchMemoryMB = DefaultBatchMemoryMB
	}

	b := &Batcher{
		embedder: embedder,
		config:   config,
		submit:   make(chan submission),
		flush:    make(chan chan struct{}),
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

// Embed submits texts as one logical request and blocks until that
// request's batch has been embedded (or the context is canceled). Vectors
// are returned in the same order as texts, regardless of how other
// concurrent callers' requests were interleaved into the same batch.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := &pendingRequest{
		texts:  texts,
		result: make(chan embedResult, 1),
	}

	select {
	case b.submit <- submission{req: req}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, fmt.Errorf("batcher closed")
	}

	select {
	case res := <-req.result:
		return res.vectors, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Flush forces any pending, not-yet-full batch to embed immediately and
// waits for that flush to complete.
func (b *Batcher) Flush() {
	ack := make(chan struct{})
	select {
	case b.flush <- ack:
		<-ack
	case <-b.done:
	}
}

// Close stops the batcher's goroutine, failing any request it never got to
// submit. Pending in-flight batches are allowed to complete first.
func (b *Batcher) Close() {
	close(b.done)
}

// run is the single writer owning all batcher state: pending requests,
// accumulated byte size, and the flush timer.
func (b *Batcher) run() {
	var pending []*pendingRequest
	var pendingBytes int
	memLimit := b.config.BatchMemoryMB * 1024 * 1024

	var timer *time.Timer
	var timerC <-chan time.Time

	resetTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.NewTimer(b.config.BatchTimeout)
		timerC = timer.C
	}

	flushNow := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		pendingBytes = 0
		if timer != nil {
			timer.Stop()
			timerC = nil
		}
		dispatch(b.embedder, batch)
	}

	for {
		select {
		case sub := <-b.submit:
			if len(pending) == 0 {
				resetTimer()
			}
			pending = append(pending, sub.req)
			for _, t := range sub.req.texts {
				pendingBytes += len(t)
			}
			if len(pending) >= b.config.BatchSize || pendingBytes >= memLimit {
				flushNow()
			}

		case <-timerC:
			flushNow()

		case ack := <-b.flush:
			flushNow()
			close(ack)

		case <-b.done:
			flushNow()
			return
		}
	}
}

// dispatch embeds every text across every request in batch with one
// provider call and slices the flat response back apart in original order.
// A provider error fails every request in this batch with the same wrapped
// error; it does not affect batches dispatched before or after it.
func dispatch(embedder embed.Embedder, batch []*pendingRequest) {
	var allTexts []string
	boundaries := make([]int, 0, len(batch)+1)
	boundaries = append(boundaries, 0)
	for _, req := range batch {
		allTexts = append(allTexts, req.texts...)
		boundaries = append(boundaries, len(allTexts))
	}

	timeout := embed.DefaultWarmTimeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var flat [][]float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		flat, err = embedder.EmbedBatch(gctx, allTexts)
		return err
	})

	err := g.Wait()
	if err != nil {
		wrapped := fmt.Errorf("batch embedding failed: %w", err)
		for _, req := range batch {
			req.result <- embedResult{err: wrapped}
		}
		return
	}

	for i, req := range batch {
		start, end := boundaries[i], boundaries[i+1]
		vectors := make([]Vector, 0, end-start)
		for _, v := range flat[start:end] {
			vectors = append(vectors, Vector(v))
		}
		req.result <- embedResult{vectors: vectors}
	}
}
