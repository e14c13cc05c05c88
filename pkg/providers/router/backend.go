// Package router binds conversations to a routing proxy that serves many
// providers' models behind one OpenAI compatible endpoint.
package router

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-go-golems/parley/pkg/catalog"
	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/providers/openai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const DefaultBaseURL = "http://localhost:4000"

type Settings struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Backend accepts any model of the catalog. Credentials are not checked up
// front, the first request does that.
type Backend struct {
	settings Settings
	catalog  *catalog.Catalog
}

var _ providers.Backend = (*Backend)(nil)

func NewBackend(settings Settings, c *catalog.Catalog) *Backend {
	if settings.BaseURL == "" {
		settings.BaseURL = DefaultBaseURL
	}
	if c == nil {
		c = catalog.Default()
	}
	return &Backend{settings: settings, catalog: c}
}

func (b *Backend) Name() string {
	return "router"
}

func (b *Backend) SupportsSystemRole() bool {
	return true
}

func (b *Backend) Authenticate(_ context.Context, creds providers.Credentials) (providers.Client, providers.Client, error) {
	if !b.catalog.HasModel(b.settings.Model) {
		return nil, nil, errors.Wrapf(providers.ErrUnsupportedModel, "unsupported model: %s", b.settings.Model)
	}

	config := go_openai.DefaultConfig(creds.APIKey)
	config.BaseURL = b.settings.BaseURL
	if b.settings.HTTPClient != nil {
		config.HTTPClient = b.settings.HTTPClient
	}

	c := &chatClient{
		client: go_openai.NewClientWithConfig(config),
		model:  b.settings.Model,
	}
	log.Debug().Str("model", b.settings.Model).Str("base_url", b.settings.BaseURL).Msg("router client ready")
	return c, c, nil
}

type chatClient struct {
	client *go_openai.Client
	model  string
}

// Generate leaves Usage empty, the usage is read from the raw response.
func (c *chatClient) Generate(ctx context.Context, turns []history.Turn) (*providers.Reply, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.MakeCompletionRequest(c.model, turns))
	if err != nil {
		return nil, openai.Classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Errorf("no choices in completion for model %s", c.model)
	}

	raw, err := toRaw(resp)
	if err != nil {
		return nil, err
	}

	return &providers.Reply{
		Text: resp.Choices[0].Message.Content,
		Raw:  raw,
	}, nil
}

func toRaw(resp go_openai.ChatCompletionResponse) (map[string]interface{}, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	ret := map[string]interface{}{}
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}
