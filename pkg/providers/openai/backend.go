// Package openai binds conversations to the hosted OpenAI API, directly or
// through an Azure deployment.
package openai

import (
	"context"
	"net/http"

	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Settings struct {
	BaseURL         string
	Model           string
	CorrectingModel string
	Organization    string
	HTTPClient      *http.Client
}

// Backend talks to the OpenAI API. Credentials are validated by listing models.
type Backend struct {
	settings Settings
}

var _ providers.Backend = (*Backend)(nil)

func NewBackend(settings Settings) *Backend {
	if settings.BaseURL == "" {
		settings.BaseURL = DefaultBaseURL
	}
	if settings.CorrectingModel == "" {
		settings.CorrectingModel = settings.Model
	}
	return &Backend{settings: settings}
}

func (b *Backend) Name() string {
	return "openai"
}

func (b *Backend) SupportsSystemRole() bool {
	return true
}

func (b *Backend) makeClient(apiKey string) *go_openai.Client {
	config := go_openai.DefaultConfig(apiKey)
	config.BaseURL = b.settings.BaseURL
	config.OrgID = b.settings.Organization
	if b.settings.HTTPClient != nil {
		config.HTTPClient = b.settings.HTTPClient
	}
	return go_openai.NewClientWithConfig(config)
}

func (b *Backend) Authenticate(ctx context.Context, creds providers.Credentials) (providers.Client, providers.Client, error) {
	if creds.APIKey == "" {
		return nil, nil, errors.Wrap(providers.ErrAuthentication, "empty API key")
	}

	client := b.makeClient(creds.APIKey)
	models, err := client.ListModels(ctx)
	if err != nil {
		return nil, nil, Classify(err)
	}
	log.Debug().Int("models", len(models.Models)).Str("base_url", b.settings.BaseURL).Msg("openai credentials valid")

	return NewChatClient(client, b.settings.Model), NewChatClient(client, b.settings.CorrectingModel), nil
}
