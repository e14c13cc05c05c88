// Package xinference binds conversations to a local Xinference server through
// its OpenAI compatible endpoint. The served chat models have no system role,
// so histories are flattened before they are sent.
package xinference

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/providers/openai"
	"github.com/go-go-golems/parley/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const DefaultBaseURL = "http://localhost:9997"

type Settings struct {
	BaseURL string
	// Model is the model uid to use. When empty or not a served chat model,
	// the first served chat model is used.
	Model      string
	HTTPClient *http.Client
}

type Backend struct {
	settings Settings
	// model is the uid picked by the last Authenticate.
	model string
}

var _ providers.Backend = (*Backend)(nil)

func NewBackend(settings Settings) *Backend {
	if settings.BaseURL == "" {
		settings.BaseURL = DefaultBaseURL
	}
	return &Backend{settings: settings}
}

func (b *Backend) Name() string {
	return "xinference"
}

func (b *Backend) SupportsSystemRole() bool {
	return false
}

// Model returns the model uid chosen when authenticating.
func (b *Backend) Model() string {
	return b.model
}

func (b *Backend) Authenticate(ctx context.Context, creds providers.Credentials) (providers.Client, providers.Client, error) {
	if err := security.LocalPolicy.Validate(b.settings.BaseURL); err != nil {
		return nil, nil, err
	}

	httpClient := b.settings.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL := strings.TrimRight(b.settings.BaseURL, "/") + "/v1"

	served, err := listModels(ctx, httpClient, baseURL, creds.APIKey)
	if err != nil {
		return nil, nil, err
	}
	model, err := pickModel(served, b.settings.Model)
	if err != nil {
		return nil, nil, err
	}
	b.model = model
	log.Debug().Str("model", model).Int("served", len(served)).Msg("xinference model selected")

	config := go_openai.DefaultConfig(creds.APIKey)
	config.BaseURL = baseURL
	config.HTTPClient = httpClient
	chat := openai.NewChatClient(go_openai.NewClientWithConfig(config), model)
	return chat, chat, nil
}

// servedModel is an entry of xinference's model listing. Next to the OpenAI
// fields it reports what kind of model is running under the uid.
type servedModel struct {
	ID           string   `json:"id"`
	ModelName    string   `json:"model_name,omitempty"`
	ModelType    string   `json:"model_type,omitempty"`
	ModelAbility []string `json:"model_ability,omitempty"`
}

// canChat reports whether the model takes chat completions. Entries without
// type information are assumed to be chat models.
func (m servedModel) canChat() bool {
	if m.ModelType != "" && !strings.EqualFold(m.ModelType, "LLM") {
		return false
	}
	if len(m.ModelAbility) == 0 {
		return true
	}
	for _, a := range m.ModelAbility {
		if a == "chat" {
			return true
		}
	}
	return false
}

func listModels(ctx context.Context, client *http.Client, baseURL string, apiKey string) ([]servedModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not create model list request")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, openai.Classify(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if sentinel := providers.ClassifyHTTPStatus(resp.StatusCode); sentinel != nil {
			return nil, errors.Wrapf(sentinel, "xinference model list returned %d", resp.StatusCode)
		}
		return nil, errors.Errorf("xinference model list returned %d", resp.StatusCode)
	}

	var list struct {
		Data []servedModel `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errors.Wrap(err, "could not decode xinference model list")
	}
	return list.Data, nil
}

// pickModel returns the wanted uid when it is a served chat model, otherwise
// the first served chat model.
func pickModel(models []servedModel, wanted string) (string, error) {
	var first string
	for _, m := range models {
		if !m.canChat() {
			continue
		}
		if first == "" {
			first = m.ID
		}
		if wanted != "" && m.ID == wanted {
			return wanted, nil
		}
	}
	if first == "" {
		return "", errors.Wrapf(providers.ErrProviderNotFound, "xinference serves no chat model among %d models", len(models))
	}
	if wanted != "" {
		log.Warn().Str("model", wanted).Str("fallback", first).Msg("configured model is not a served chat model, using first chat model")
	}
	return first, nil
}
