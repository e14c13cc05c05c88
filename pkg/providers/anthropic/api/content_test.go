package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageSerialization(t *testing.T) {
	tests := []struct {
		name     string
		message  Message
		expected string
	}{
		{
			name:     "Single TextContent",
			message:  Message{Role: "user", Content: []Content{NewTextContent("Hello")}},
			expected: `{"role":"user","content":[{"type":"text","text":"Hello"}]}`,
		},
		{
			name:     "Empty text is kept",
			message:  Message{Role: "user", Content: []Content{NewTextContent("")}},
			expected: `{"role":"user","content":[{"type":"text","text":""}]}`,
		},
		{
			name: "Base64 image",
			message: Message{Role: "user", Content: []Content{
				NewImageContent("image/jpeg", "base64data"),
			}},
			expected: `{"role":"user","content":[{"type":"image","source":{"type":"base64","media_type":"image/jpeg","data":"base64data"}}]}`,
		},
		{
			name:     "Empty Content",
			message:  Message{Role: "user", Content: []Content{}},
			expected: `{"role":"user","content":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.message)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestNewImageContentFromURL(t *testing.T) {
	c, err := NewImageContentFromURL("data:image/png;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, &ImageSource{Type: "base64", MediaType: "image/png", Data: "AAAA"}, c.Source)

	c, err = NewImageContentFromURL("https://example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, &ImageSource{Type: "url", URL: "https://example.com/a.png"}, c.Source)

	_, err = NewImageContentFromURL("data:text/plain,hello")
	assert.Error(t, err)
}

func TestStatusError(t *testing.T) {
	err := &StatusError{StatusCode: 401, Type: "authentication_error", Message: "invalid x-api-key"}
	assert.Equal(t, "anthropic API returned status 401: invalid x-api-key (authentication_error)", err.Error())
	assert.Equal(t, "anthropic API returned status 500", (&StatusError{StatusCode: 500}).Error())
}
