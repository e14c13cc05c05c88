package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/parley/pkg/security"
	"github.com/pkg/errors"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"
)

// ErrorResponse represents the API's error response.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StatusError is returned for every non 2xx response.
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("anthropic API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("anthropic API returned status %d: %s (%s)", e.StatusCode, e.Message, e.Type)
}

// Client represents the Messages API client.
type Client struct {
	httpClient *http.Client
	apiKey     string
	APIVersion string
	BaseURL    string
	// Policy validates BaseURL before every request.
	Policy security.URLPolicy
}

func NewClient(apiKey string, baseURL string, apiVersion ...string) *Client {
	version := defaultAPIVersion
	if len(apiVersion) > 0 && apiVersion[0] != "" {
		version = apiVersion[0]
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIVersion: version,
		Policy:     security.HostedPolicy,
	}
}

func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.APIVersion)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) do(ctx context.Context, method string, path string, in interface{}, out interface{}) error {
	if err := c.Policy.Validate(c.BaseURL); err != nil {
		return errors.Wrap(err, "invalid anthropic base URL")
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	// #nosec G704 -- URL is validated above.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var errorResp ErrorResponse
		if json.Unmarshal(respBody, &errorResp) == nil {
			statusErr.Type = errorResp.Error.Type
			statusErr.Message = errorResp.Error.Message
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}
