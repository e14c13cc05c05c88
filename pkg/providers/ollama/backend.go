// Package ollama binds conversations to a local Ollama server.
package ollama

import (
	"context"
	"encoding/base64"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/security"
	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultBaseURL = "http://localhost:11434"

type Settings struct {
	BaseURL         string
	Model           string
	CorrectingModel string
	HTTPClient      *http.Client
	Options         map[string]interface{}
}

// Backend talks to a local-serving Ollama instance. There are no credentials,
// authentication checks that the server answers and serves the model.
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
	return "ollama"
}

func (b *Backend) SupportsSystemRole() bool {
	return true
}

func (b *Backend) Authenticate(ctx context.Context, _ providers.Credentials) (providers.Client, providers.Client, error) {
	if err := security.LocalPolicy.Validate(b.settings.BaseURL); err != nil {
		return nil, nil, err
	}
	base, err := url.Parse(b.settings.BaseURL)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid ollama URL %s", b.settings.BaseURL)
	}
	httpClient := b.settings.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	client := api.NewClient(base, httpClient)

	if err := client.Heartbeat(ctx); err != nil {
		return nil, nil, classify(err)
	}

	list, err := client.List(ctx)
	if err != nil {
		return nil, nil, classify(err)
	}
	for _, model := range []string{b.settings.Model, b.settings.CorrectingModel} {
		if !hasModel(list, model) {
			return nil, nil, errors.Wrapf(providers.ErrUnsupportedModel, "unsupported model: %s", model)
		}
	}
	log.Debug().Str("base_url", b.settings.BaseURL).Int("models", len(list.Models)).Msg("ollama server reachable")

	return &chatClient{client: client, model: b.settings.Model, options: b.settings.Options},
		&chatClient{client: client, model: b.settings.CorrectingModel, options: b.settings.Options},
		nil
}

func hasModel(list *api.ListResponse, model string) bool {
	for _, m := range list.Models {
		for _, name := range []string{m.Name, m.Model} {
			if name == model || strings.TrimSuffix(name, ":latest") == model {
				return true
			}
		}
	}
	return false
}

type chatClient struct {
	client  *api.Client
	model   string
	options map[string]interface{}
}

func (c *chatClient) Generate(ctx context.Context, turns []history.Turn) (*providers.Reply, error) {
	msgs := make([]api.Message, 0, len(turns))
	for _, t := range turns {
		msg := api.Message{Role: t.Role, Content: t.Content}
		for _, img := range t.Images {
			data, err := decodeDataURL(img)
			if err != nil {
				return nil, err
			}
			msg.Images = append(msg.Images, data)
		}
		msgs = append(msgs, msg)
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   &stream,
		Options:  c.options,
	}

	var final api.ChatResponse
	var text strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	return &providers.Reply{
		Text: text.String(),
		Usage: map[string]interface{}{
			"prompt_eval_count":    final.PromptEvalCount,
			"eval_count":           final.EvalCount,
			"total_duration":       final.TotalDuration.Nanoseconds(),
			"load_duration":        final.LoadDuration.Nanoseconds(),
			"prompt_eval_duration": final.PromptEvalDuration.Nanoseconds(),
			"eval_duration":        final.EvalDuration.Nanoseconds(),
		},
		Raw: final,
	}, nil
}

// decodeDataURL returns the raw bytes of a base64 data URL. Ollama only
// accepts inline images.
func decodeDataURL(u string) (api.ImageData, error) {
	if !strings.HasPrefix(u, "data:") {
		return nil, errors.Errorf("ollama only accepts inline images, got %.40s", u)
	}
	_, data, ok := strings.Cut(u, ";base64,")
	if !ok {
		return nil, errors.Errorf("unsupported data URL %.32s", u)
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base64 image")
	}
	return b, nil
}

func classify(err error) error {
	var statusErr api.StatusError
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
