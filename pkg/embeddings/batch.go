package embeddings

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultGenerateBatchEmbeddings calls GenerateEmbedding for each text in turn.
func DefaultGenerateBatchEmbeddings(ctx context.Context, p Provider, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := p.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = embedding
	}
	return results, nil
}

// ParallelGenerateBatchEmbeddings calls GenerateEmbedding concurrently, with at
// most maxConcurrency requests in flight. The first error cancels the rest.
func ParallelGenerateBatchEmbeddings(ctx context.Context, p Provider, texts []string, maxConcurrency int) ([][]float32, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	results := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			embedding, err := p.GenerateEmbedding(ctx, text)
			if err != nil {
				return err
			}
			results[i] = embedding
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// chunk splits texts into slices of at most size elements.
func chunk(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var ret [][]string
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		ret = append(ret, texts[start:end])
	}
	return ret
}
