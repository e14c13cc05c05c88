package embeddings

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// mockProvider embeds a text as {len(text), 1, 2} and counts calls.
type mockProvider struct {
	mu      sync.Mutex
	calls   []string
	failFor string
}

func newMockProvider() *mockProvider {
	return &mockProvider{}
}

func (m *mockProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.mu.Unlock()
	if text == m.failFor {
		return nil, errors.Errorf("cannot embed %q", text)
	}
	return []float32{float32(len(text)), 1.0, 2.0}, nil
}

func (m *mockProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return DefaultGenerateBatchEmbeddings(ctx, m, texts)
}

func (m *mockProvider) GetModel() EmbeddingModel {
	return EmbeddingModel{Name: "mock", Dimensions: 3}
}
