package api

import (
	"context"
	"net/http"
	"strings"
)

type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

type MessageRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type MessageResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Role       string    `json:"role"`
	Content    []Content `json:"content"`
	Model      string    `json:"model"`
	StopReason string    `json:"stop_reason"`
	Usage      Usage     `json:"usage"`
}

// FullText concatenates the text blocks of the response.
func (r *MessageResponse) FullText() string {
	var sb strings.Builder
	for _, c := range r.Content {
		if c.Type == ContentTypeText {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

func (c *Client) CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	resp := &MessageResponse{}
	if err := c.do(ctx, http.MethodPost, "/v1/messages", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

type ModelList struct {
	Data    []ModelInfo `json:"data"`
	HasMore bool        `json:"has_more"`
}

func (c *Client) ListModels(ctx context.Context) (*ModelList, error) {
	resp := &ModelList{}
	if err := c.do(ctx, http.MethodGet, "/v1/models", nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
