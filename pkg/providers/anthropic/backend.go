// Package anthropic binds conversations to the Anthropic Messages API.
package anthropic

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/providers/anthropic/api"
	"github.com/go-go-golems/parley/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultMaxTokens = 1024

type Settings struct {
	BaseURL         string
	APIVersion      string
	Model           string
	CorrectingModel string
	MaxTokens       int
	HTTPClient      *http.Client
	// Policy defaults to security.HostedPolicy.
	Policy *security.URLPolicy
}

type Backend struct {
	settings Settings
}

var _ providers.Backend = (*Backend)(nil)

func NewBackend(settings Settings) *Backend {
	if settings.CorrectingModel == "" {
		settings.CorrectingModel = settings.Model
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = DefaultMaxTokens
	}
	return &Backend{settings: settings}
}

func (b *Backend) Name() string {
	return "anthropic"
}

// SupportsSystemRole is true, system turns are lifted into the request's
// system field.
func (b *Backend) SupportsSystemRole() bool {
	return true
}

func (b *Backend) makeClient(apiKey string) *api.Client {
	client := api.NewClient(apiKey, b.settings.BaseURL, b.settings.APIVersion)
	if b.settings.HTTPClient != nil {
		client.WithHTTPClient(b.settings.HTTPClient)
	}
	if b.settings.Policy != nil {
		client.Policy = *b.settings.Policy
	}
	return client
}

func (b *Backend) Authenticate(ctx context.Context, creds providers.Credentials) (providers.Client, providers.Client, error) {
	if creds.APIKey == "" {
		return nil, nil, errors.Wrap(providers.ErrAuthentication, "empty API key")
	}

	client := b.makeClient(creds.APIKey)
	models, err := client.ListModels(ctx)
	if err != nil {
		return nil, nil, classify(err)
	}
	log.Debug().Int("models", len(models.Data)).Msg("anthropic credentials valid")

	chat := &chatClient{client: client, model: b.settings.Model, maxTokens: b.settings.MaxTokens, user: creds.User}
	caChat := &chatClient{client: client, model: b.settings.CorrectingModel, maxTokens: b.settings.MaxTokens, user: creds.User}
	return chat, caChat, nil
}

type chatClient struct {
	client    *api.Client
	model     string
	maxTokens int
	user      string
}

func (c *chatClient) Generate(ctx context.Context, turns []history.Turn) (*providers.Reply, error) {
	req, err := makeMessageRequest(c.model, c.maxTokens, turns)
	if err != nil {
		return nil, err
	}
	if c.user != "" {
		req.Metadata = &api.Metadata{UserID: c.user}
	}

	resp, err := c.client.CreateMessage(ctx, req)
	if err != nil {
		return nil, classify(err)
	}

	return &providers.Reply{
		Text: resp.FullText(),
		Usage: map[string]interface{}{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
		Raw: resp,
	}, nil
}

func makeMessageRequest(model string, maxTokens int, turns []history.Turn) (*api.MessageRequest, error) {
	req := &api.MessageRequest{
		Model:     model,
		MaxTokens: maxTokens,
	}

	var system []string
	for _, t := range turns {
		if t.Role == history.RoleSystem {
			system = append(system, t.Content)
			continue
		}

		content := []api.Content{}
		for _, img := range t.Images {
			c, err := api.NewImageContentFromURL(img)
			if err != nil {
				return nil, err
			}
			content = append(content, c)
		}
		content = append(content, api.NewTextContent(t.Content))
		req.Messages = append(req.Messages, api.Message{Role: t.Role, Content: content})
	}
	req.System = strings.Join(system, "\n")

	return req, nil
}

func classify(err error) error {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		if sentinel := providers.ClassifyHTTPStatus(statusErr.StatusCode); sentinel != nil {
			return errors.Wrap(sentinel, statusErr.Error())
		}
		return err
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return errors.Wrap(providers.ErrConnectivity, err.Error())
	}
	return err
}
