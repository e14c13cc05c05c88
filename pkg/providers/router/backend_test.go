package router

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-go-golems/parley/pkg/catalog"
	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	c, err := catalog.Load(strings.NewReader(`models: [gpt-4, gpt-3.5-turbo, claude-2, claude-instant-1]`))
	require.NoError(t, err)
	return c
}

func TestUnsupportedModel(t *testing.T) {
	b := NewBackend(Settings{Model: "unknown-model"}, testCatalog(t))

	_, _, err := b.Authenticate(context.Background(), providers.Credentials{APIKey: "dummy_key"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, providers.ErrUnsupportedModel))
	assert.Contains(t, err.Error(), "unsupported model: unknown-model")

	binding := providers.NewBinding(b)
	ok, err := binding.SetAPIKey(context.Background(), "dummy_key", "test_user")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = binding.Chat()
	assert.Error(t, err)
	_, err = binding.CAChat()
	assert.Error(t, err)
}

func TestSetAPIKeySharesClient(t *testing.T) {
	binding := providers.NewBinding(NewBackend(Settings{Model: "gpt-3.5-turbo"}, testCatalog(t)))

	ok, err := binding.SetAPIKey(context.Background(), "dummy_key", "test_user")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dummy_key", binding.APIKey())
	assert.Equal(t, "test_user", binding.User())

	chat, err := binding.Chat()
	require.NoError(t, err)
	caChat, err := binding.CAChat()
	require.NoError(t, err)
	assert.Same(t, chat, caChat)
}

func TestGenerateCarriesRawResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "x", "object": "chat.completion", "model": "gpt-3.5-turbo",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "routed"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}}`)
	}))
	defer srv.Close()

	b := NewBackend(Settings{BaseURL: srv.URL, Model: "gpt-3.5-turbo"}, testCatalog(t))
	chat, _, err := b.Authenticate(context.Background(), providers.Credentials{APIKey: "k"})
	require.NoError(t, err)

	reply, err := chat.Generate(context.Background(), []history.Turn{{Role: history.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "routed", reply.Text)
	assert.Nil(t, reply.Usage)
	assert.Equal(t, map[string]interface{}{
		"prompt_tokens":     5.0,
		"completion_tokens": 3.0,
		"total_tokens":      8.0,
	}, providers.ParseLLMResponse(reply.Raw))
}
