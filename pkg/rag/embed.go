package rag

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aingdesk/daemon/pkg/provider"
)

const (
	defaultBatchSize      = 50
	defaultMaxConcurrency = 5
)

// Embedder batches chunk text into bounded-concurrency embedding calls,
// grounded on the teacher's pkg/rag/embed.Embedder.embedBatchOptimized
// (errgroup.WithContext + SetLimit).
type Embedder struct {
	prov           provider.EmbeddingProvider
	model          string
	batchSize      int
	maxConcurrency int
}

func NewEmbedder(prov provider.EmbeddingProvider, model string) *Embedder {
	return &Embedder{
		prov:           prov,
		model:          model,
		batchSize:      defaultBatchSize,
		maxConcurrency: defaultMaxConcurrency,
	}
}

// EmbedAll computes one embedding per input text, preserving order.
func (e *Embedder) EmbedAll(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= e.batchSize {
		return e.prov.Embed(ctx, e.model, texts)
	}

	results := make([][]float64, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			batch, err := e.prov.Embed(ctx, e.model, texts[start:end])
			if err != nil {
				return err
			}
			copy(results[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
