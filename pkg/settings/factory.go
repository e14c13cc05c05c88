package settings

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/parley/pkg/catalog"
	"github.com/go-go-golems/parley/pkg/embeddings"
	"github.com/go-go-golems/parley/pkg/engine"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/image"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/providers/anthropic"
	"github.com/go-go-golems/parley/pkg/providers/offline"
	"github.com/go-go-golems/parley/pkg/providers/ollama"
	"github.com/go-go-golems/parley/pkg/providers/openai"
	"github.com/go-go-golems/parley/pkg/providers/router"
	"github.com/go-go-golems/parley/pkg/providers/xinference"
	"github.com/go-go-golems/parley/pkg/security"
	"github.com/go-go-golems/parley/pkg/usage"
	"github.com/go-go-golems/parley/pkg/vectorstore"
)

func (s *Settings) httpClient() *http.Client {
	return &http.Client{Timeout: s.Timeout}
}

// LoadCatalog returns the configured catalog, or the embedded one.
func (s *Settings) LoadCatalog() (*catalog.Catalog, error) {
	if s.CatalogFile == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFromFile(s.CatalogFile)
}

// NewBackend builds the provider backend for the settings.
func NewBackend(s *Settings, cat *catalog.Catalog) (providers.Backend, error) {
	s_ := s.Clone()
	client := s_.httpClient()

	switch s_.Provider {
	case ProviderOpenAI:
		return openai.NewBackend(openai.Settings{
			BaseURL:         s_.BaseURL,
			Model:           s_.Model,
			CorrectingModel: s_.CorrectingModel,
			Organization:    s_.Organization,
			HTTPClient:      client,
		}), nil

	case ProviderAzure:
		if s_.BaseURL == "" || s_.Deployment == "" {
			return nil, errors.New("azure needs base_url and deployment")
		}
		return openai.NewAzureBackend(openai.AzureSettings{
			Deployment:      s_.Deployment,
			BaseURL:         s_.BaseURL,
			APIVersion:      s_.APIVersion,
			Model:           s_.Model,
			CorrectingModel: s_.CorrectingModel,
			HTTPClient:      client,
		}), nil

	case ProviderAnthropic:
		return anthropic.NewBackend(anthropic.Settings{
			BaseURL:         s_.BaseURL,
			APIVersion:      s_.APIVersion,
			Model:           s_.Model,
			CorrectingModel: s_.CorrectingModel,
			MaxTokens:       s_.MaxTokens,
			HTTPClient:      client,
		}), nil

	case ProviderOllama:
		return ollama.NewBackend(ollama.Settings{
			BaseURL:         s_.BaseURL,
			Model:           s_.Model,
			CorrectingModel: s_.CorrectingModel,
			HTTPClient:      client,
		}), nil

	case ProviderXinference:
		return xinference.NewBackend(xinference.Settings{
			BaseURL:    s_.BaseURL,
			Model:      s_.Model,
			HTTPClient: client,
		}), nil

	case ProviderRouter:
		return router.NewBackend(router.Settings{
			BaseURL:    s_.BaseURL,
			Model:      s_.Model,
			HTTPClient: client,
		}, cat), nil

	case ProviderOffline:
		return offline.NewBackend(s_.Model), nil

	default:
		return nil, errors.Errorf("unknown provider %q", s_.Provider)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error {
	return nil
}

// NewUsageStats opens the configured usage sink. The returned closer releases
// its connection.
func NewUsageStats(ctx context.Context, s *Settings) (usage.Stats, io.Closer, error) {
	switch s.Usage.Sink {
	case SinkMemory, "":
		return usage.NewMemoryStats(), nopCloser{}, nil
	case SinkSQLite:
		if s.Usage.DSN == "" {
			return nil, nil, errors.New("sqlite usage sink needs a dsn")
		}
		stats, err := usage.NewSQLiteStats(s.Usage.DSN)
		if err != nil {
			return nil, nil, err
		}
		return stats, stats, nil
	case SinkRedis:
		stats, err := usage.NewRedisStats(ctx, usage.RedisOptions{
			Addr:     s.Usage.Addr,
			Password: s.Usage.Password,
			DB:       s.Usage.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return stats, stats, nil
	default:
		return nil, nil, errors.Errorf("unknown usage sink %q", s.Usage.Sink)
	}
}

func (s *Settings) NewImageEncoder() *image.Encoder {
	ret := image.NewEncoder()
	if s.Image.MaxSize > 0 {
		ret.MaxSize = s.Image.MaxSize
	}
	ret.TempDir = s.Image.TempDir
	ret.HTTPClient = s.httpClient()
	return ret
}

// NewConversation wires a conversation from the settings. Prompts are read
// from PromptsFile when set.
func NewConversation(s *Settings, cat *catalog.Catalog, accountant *usage.Accountant, sinks ...events.EventSink) (*engine.Conversation, error) {
	backend, err := NewBackend(s, cat)
	if err != nil {
		return nil, err
	}

	prompts := engine.Prompts{}
	if s.PromptsFile != "" {
		prompts, err = LoadPrompts(s.PromptsFile)
		if err != nil {
			return nil, err
		}
	}

	strategy, err := history.ParseStrategy(s.FlattenStrategy)
	if err != nil {
		return nil, err
	}

	options := []engine.Option{
		engine.WithCorrect(s.Correct),
		engine.WithSplitCorrection(s.SplitCorrection),
		engine.WithCorrectingModel(s.CorrectingModel),
		engine.WithFlattenStrategy(strategy),
		engine.WithImageEncoder(s.NewImageEncoder()),
		engine.WithCatalog(cat),
		engine.WithEventSink(sinks...),
	}
	if accountant != nil {
		options = append(options, engine.WithAccountant(accountant))
	}

	return engine.New(backend, s.Model, prompts, options...), nil
}

// NewEmbedder builds the embedding provider of the vector store.
func NewEmbedder(s *Settings) (embeddings.Provider, error) {
	vs := s.VectorStore
	var ret embeddings.Provider
	switch vs.EmbeddingProvider {
	case "openai", "":
		ret = embeddings.NewOpenAIProviderWithBaseURL(
			s.APIKey,
			vs.EmbeddingBaseURL,
			s.httpClient(),
			go_openai.EmbeddingModel(vs.EmbeddingModel),
			vs.EmbeddingDimensions,
		)
	case "ollama":
		p, err := embeddings.NewOllamaProvider(vs.EmbeddingBaseURL, vs.EmbeddingModel, vs.EmbeddingDimensions, s.httpClient())
		if err != nil {
			return nil, err
		}
		ret = p
	default:
		return nil, errors.Errorf("unknown embedding provider %q", vs.EmbeddingProvider)
	}

	if vs.CacheSize > 0 {
		ret = embeddings.NewCachedProvider(ret, vs.CacheSize)
	}
	return ret, nil
}

// NewVectorHost connects to the configured weaviate instance.
func NewVectorHost(ctx context.Context, s *Settings) (*vectorstore.Host, error) {
	endpoint := s.VectorStore.Scheme + "://" + s.VectorStore.Host
	if err := security.LocalPolicy.Validate(endpoint); err != nil {
		return nil, err
	}

	store, err := vectorstore.NewWeaviateStore(vectorstore.WeaviateSettings{
		Host:       s.VectorStore.Host,
		Scheme:     s.VectorStore.Scheme,
		Timeout:    s.Timeout,
		HTTPClient: s.httpClient(),
	})
	if err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(s)
	if err != nil {
		return nil, err
	}

	host := vectorstore.NewHost(store, embedder)
	if err := host.Connect(ctx); err != nil {
		return nil, err
	}
	return host, nil
}
