package embeddings

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenAIBatchSize = 512

type OpenAIProvider struct {
	client     *go_openai.Client
	model      go_openai.EmbeddingModel
	dimensions int
	batchSize  int
}

var _ Provider = &OpenAIProvider{}

type OpenAIOption func(*OpenAIProvider)

func WithOpenAIBatchSize(size int) OpenAIOption {
	return func(p *OpenAIProvider) {
		if size > 0 {
			p.batchSize = size
		}
	}
}

// WithOpenAIClientConfig replaces the client, used for custom base URLs and
// HTTP clients.
func WithOpenAIClientConfig(config go_openai.ClientConfig) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.client = go_openai.NewClientWithConfig(config)
	}
}

func NewOpenAIProvider(apiKey string, model go_openai.EmbeddingModel, dimensions int, options ...OpenAIOption) *OpenAIProvider {
	if model == "" {
		model = go_openai.SmallEmbedding3
	}
	if dimensions <= 0 {
		dimensions = 1536
	}

	ret := &OpenAIProvider{
		client:     go_openai.NewClient(apiKey),
		model:      model,
		dimensions: dimensions,
		batchSize:  DefaultOpenAIBatchSize,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// NewOpenAIProviderWithBaseURL is NewOpenAIProvider against a custom endpoint.
func NewOpenAIProviderWithBaseURL(apiKey string, baseURL string, httpClient *http.Client, model go_openai.EmbeddingModel, dimensions int, options ...OpenAIOption) *OpenAIProvider {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}
	return NewOpenAIProvider(apiKey, model, dimensions, append([]OpenAIOption{WithOpenAIClientConfig(config)}, options...)...)
}

func supportsOpenAIDimensionsOverride(model go_openai.EmbeddingModel) bool {
	return strings.HasPrefix(string(model), "text-embedding-3")
}

func (p *OpenAIProvider) newRequest(texts []string) go_openai.EmbeddingRequest {
	req := go_openai.EmbeddingRequest{
		Input: texts,
		Model: p.model,
	}
	if supportsOpenAIDimensionsOverride(p.model) {
		req.Dimensions = p.dimensions
	}
	return req
}

func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ret, err := p.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return ret[0], nil
}

// GenerateBatchEmbeddings sends the texts in requests of at most batchSize
// inputs and reorders the returned vectors by index.
func (p *OpenAIProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	ret := make([][]float32, 0, len(texts))
	for _, batch := range chunk(texts, p.batchSize) {
		resp, err := p.client.CreateEmbeddings(ctx, p.newRequest(batch))
		if err != nil {
			return nil, errors.Wrap(err, "could not create embeddings")
		}
		if len(resp.Data) != len(batch) {
			return nil, errors.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Data))
		}

		data := resp.Data
		sort.Slice(data, func(i, j int) bool {
			return data[i].Index < data[j].Index
		})
		for _, d := range data {
			ret = append(ret, d.Embedding)
		}

		log.Debug().
			Str("model", string(p.model)).
			Int("inputs", len(batch)).
			Int("prompt_tokens", resp.Usage.PromptTokens).
			Msg("created embeddings")
	}
	return ret, nil
}

func (p *OpenAIProvider) GetModel() EmbeddingModel {
	return EmbeddingModel{
		Name:       string(p.model),
		Dimensions: p.dimensions,
	}
}
