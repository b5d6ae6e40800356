package embedbatch

import (
	"context"

	"github.com/Aman-CERP/codesearch/internal/embed"
)

// CoalescingEmbedder wraps an embed.Embedder so every EmbedBatch call from
// concurrent callers is coalesced through a single Batcher before reaching
// the underlying provider. It implements embed.Embedder itself, so it can
// be passed anywhere the underlying embedder was used directly.
type CoalescingEmbedder struct {
	underlying embed.Embedder
	batcher    *Batcher
}

// NewCoalescingEmbedder starts a Batcher in front of underlying and returns
// an Embedder that routes every call through it.
func NewCoalescingEmbedder(underlying embed.Embedder, config Config) *CoalescingEmbedder {
	return &CoalescingEmbedder{
		underlying: underlying,
		batcher:    New(underlying, config),
	}
}

// Embed embeds a single text by submitting a one-element batch.
func (c *CoalescingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.batcher.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return []float32(vectors[0]), nil
}

// EmbedBatch submits texts to the batcher and waits for the flush covering
// this request to complete.
func (c *CoalescingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := c.batcher.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = []float32(v)
	}
	return out, nil
}

func (c *CoalescingEmbedder) Dimensions() int                    { return c.underlying.Dimensions() }
func (c *CoalescingEmbedder) ModelName() string                  { return c.underlying.ModelName() }
func (c *CoalescingEmbedder) Available(ctx context.Context) bool { return c.underlying.Available(ctx) }
func (c *CoalescingEmbedder) SetBatchIndex(idx int)               { c.underlying.SetBatchIndex(idx) }
func (c *CoalescingEmbedder) SetFinalBatch(isFinal bool)          { c.underlying.SetFinalBatch(isFinal) }

// Close flushes any pending batch, stops the batcher goroutine, then closes
// the underlying embedder.
func (c *CoalescingEmbedder) Close() error {
	c.batcher.Flush()
	c.batcher.Close()
	return c.underlying.Close()
}
