package openai

import (
	"context"
	"net"
	"net/url"

	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// ChatClient generates completions for one model through an OpenAI compatible API.
type ChatClient struct {
	client    *go_openai.Client
	model     string
	maxTokens int
}

var _ providers.Client = (*ChatClient)(nil)

func NewChatClient(client *go_openai.Client, model string) *ChatClient {
	return &ChatClient{client: client, model: model}
}

func (c *ChatClient) Model() string {
	return c.model
}

func (c *ChatClient) Generate(ctx context.Context, turns []history.Turn) (*providers.Reply, error) {
	req := MakeCompletionRequest(c.model, turns)
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	log.Debug().Str("model", c.model).Int("turns", len(turns)).Msg("creating chat completion")
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, Classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Errorf("no choices in completion for model %s", c.model)
	}

	return &providers.Reply{
		Text:  resp.Choices[0].Message.Content,
		Usage: UsageToMap(resp.Usage),
		Raw:   resp,
	}, nil
}

func MakeCompletionRequest(model string, turns []history.Turn) go_openai.ChatCompletionRequest {
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msg := go_openai.ChatCompletionMessage{Role: t.Role}
		if len(t.Images) == 0 {
			msg.Content = t.Content
		} else {
			parts := []go_openai.ChatMessagePart{{
				Type: go_openai.ChatMessagePartTypeText,
				Text: t.Content,
			}}
			for _, img := range t.Images {
				parts = append(parts, go_openai.ChatMessagePart{
					Type: go_openai.ChatMessagePartTypeImageURL,
					ImageURL: &go_openai.ChatMessageImageURL{
						URL:    img,
						Detail: go_openai.ImageURLDetailAuto,
					},
				})
			}
			msg.MultiContent = parts
		}
		msgs = append(msgs, msg)
	}

	return go_openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
}

func UsageToMap(u go_openai.Usage) map[string]interface{} {
	return map[string]interface{}{
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"total_tokens":      u.TotalTokens,
	}
}

// Classify maps go-openai errors onto the provider sentinel errors. Errors
// that fit no sentinel are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		if sentinel := providers.ClassifyHTTPStatus(apiErr.HTTPStatusCode); sentinel != nil {
			return errors.Wrap(sentinel, apiErr.Message)
		}
		return err
	}

	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		if sentinel := providers.ClassifyHTTPStatus(reqErr.HTTPStatusCode); sentinel != nil {
			return errors.Wrap(sentinel, reqErr.Error())
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
