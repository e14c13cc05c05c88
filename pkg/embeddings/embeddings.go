package embeddings

import "context"

// EmbeddingModel contains metadata about the embedding model
type EmbeddingModel struct {
	Name       string
	Dimensions int
}

// Provider turns text into vectors. Implementations must return one vector
// per input text, in input order.
type Provider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() EmbeddingModel
}
