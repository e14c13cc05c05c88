package embeddings

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"
)

const DefaultOllamaURL = "http://localhost:11434"

type OllamaProvider struct {
	client     *api.Client
	model      string
	dimensions int
}

var _ Provider = &OllamaProvider{}

func NewOllamaProvider(baseURL string, model string, dimensions int, httpClient *http.Client) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = "all-minilm"
	}
	if dimensions <= 0 {
		dimensions = 384
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid ollama url %s", baseURL)
	}

	return &OllamaProvider{
		client:     api.NewClient(u, httpClient),
		model:      model,
		dimensions: dimensions,
	}, nil
}

func (p *OllamaProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ret, err := p.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return ret[0], nil
}

func (p *OllamaProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: p.model,
		Input: texts,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create embeddings")
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, errors.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}

func (p *OllamaProvider) GetModel() EmbeddingModel {
	return EmbeddingModel{
		Name:       p.model,
		Dimensions: p.dimensions,
	}
}
