package openai

import (
	"context"
	"net/http"

	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const DefaultAzureAPIVersion = "2023-05-15"

type AzureSettings struct {
	// Deployment is the Azure deployment every model name is routed to.
	Deployment string
	BaseURL    string
	APIVersion string
	Model      string
	// CorrectingModel is sent to the same deployment.
	CorrectingModel string
	HTTPClient      *http.Client
}

// AzureBackend talks to an Azure OpenAI deployment. Credentials are validated
// with a one token completion against the deployment, so a missing deployment
// surfaces as providers.ErrProviderNotFound.
type AzureBackend struct {
	settings AzureSettings
}

var _ providers.Backend = (*AzureBackend)(nil)

func NewAzureBackend(settings AzureSettings) *AzureBackend {
	if settings.APIVersion == "" {
		settings.APIVersion = DefaultAzureAPIVersion
	}
	if settings.CorrectingModel == "" {
		settings.CorrectingModel = settings.Model
	}
	return &AzureBackend{settings: settings}
}

func (b *AzureBackend) Name() string {
	return "azure"
}

func (b *AzureBackend) SupportsSystemRole() bool {
	return true
}

func (b *AzureBackend) makeClient(apiKey string) *go_openai.Client {
	config := go_openai.DefaultAzureConfig(apiKey, b.settings.BaseURL)
	config.APIVersion = b.settings.APIVersion
	deployment := b.settings.Deployment
	config.AzureModelMapperFunc = func(model string) string {
		if deployment != "" {
			return deployment
		}
		return model
	}
	if b.settings.HTTPClient != nil {
		config.HTTPClient = b.settings.HTTPClient
	}
	return go_openai.NewClientWithConfig(config)
}

func (b *AzureBackend) Authenticate(ctx context.Context, creds providers.Credentials) (providers.Client, providers.Client, error) {
	if creds.APIKey == "" {
		return nil, nil, errors.Wrap(providers.ErrAuthentication, "empty API key")
	}
	if b.settings.BaseURL == "" {
		return nil, nil, errors.New("azure backend needs a base URL")
	}

	client := b.makeClient(creds.APIKey)
	check := &ChatClient{client: client, model: b.settings.Model, maxTokens: 1}
	if _, err := check.Generate(ctx, []history.Turn{{Role: history.RoleUser, Content: "Hello"}}); err != nil {
		return nil, nil, err
	}
	log.Debug().Str("deployment", b.settings.Deployment).Msg("azure credentials valid")

	return NewChatClient(client, b.settings.Model), NewChatClient(client, b.settings.CorrectingModel), nil
}
