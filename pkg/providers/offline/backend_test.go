package offline

import (
	"context"
	"testing"

	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEcho(t *testing.T) {
	binding := providers.NewBinding(NewBackend("gpt-4"))
	ok, err := binding.SetAPIKey(context.Background(), "", "")
	require.NoError(t, err)
	require.True(t, ok)

	chat, err := binding.Chat()
	require.NoError(t, err)

	reply, err := chat.Generate(context.Background(), []history.Turn{{Role: history.RoleUser, Content: "Hello, world!"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", reply.Text)
	assert.Equal(t, map[string]interface{}{
		"prompt_tokens":     4,
		"completion_tokens": 4,
		"total_tokens":      8,
	}, reply.Usage)

	reply, err = chat.Generate(context.Background(), []history.Turn{
		{Role: history.RoleSystem, Content: "a"},
		{Role: history.RoleUser, Content: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a\nb", reply.Text)
}

func TestEchoHonorsCancellation(t *testing.T) {
	chat, _, err := NewBackend("").Authenticate(context.Background(), providers.Credentials{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = chat.Generate(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
