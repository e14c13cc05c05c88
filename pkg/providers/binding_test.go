package providers

import (
	"context"
	"testing"

	"github.com/go-go-golems/parley/pkg/history"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	err    error
	calls  int
	chat   Client
	caChat Client
}

func (f *fakeBackend) Name() string             { return "fake" }
func (f *fakeBackend) SupportsSystemRole() bool { return true }

func (f *fakeBackend) Authenticate(_ context.Context, _ Credentials) (Client, Client, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.chat, f.caChat, nil
}

func echoClient(text string) Client {
	return ClientFunc(func(context.Context, []history.Turn) (*Reply, error) {
		return &Reply{Text: text}, nil
	})
}

func TestUninitializedBinding(t *testing.T) {
	b := NewBinding(&fakeBackend{})

	_, err := b.Chat()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUninitializedBinding))
	assert.Contains(t, err.Error(), "chat attribute not initialized")
	assert.Contains(t, err.Error(), "did you call SetAPIKey()?")

	_, err = b.CAChat()
	assert.True(t, errors.Is(err, ErrUninitializedBinding))
	assert.Contains(t, err.Error(), "correcting agent chat attribute not initialized")
	assert.False(t, b.IsAuthenticated())
}

func TestSetAPIKeySuccess(t *testing.T) {
	chat := echoClient("a")
	backend := &fakeBackend{chat: chat, caChat: chat}
	b := NewBinding(backend)

	ok, err := b.SetAPIKey(context.Background(), "dummy_key", "test_user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dummy_key", b.APIKey())
	assert.Equal(t, "test_user", b.User())

	c, err := b.Chat()
	require.NoError(t, err)
	ca, err := b.CAChat()
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.NotNil(t, ca)
}

func TestSetAPIKeySoftFailuresResetHandles(t *testing.T) {
	for name, failure := range map[string]error{
		"auth":        errors.Wrap(ErrAuthentication, "Invalid API key"),
		"unsupported": errors.Wrap(ErrUnsupportedModel, "unsupported model: unknown-model"),
	} {
		t.Run(name, func(t *testing.T) {
			backend := &fakeBackend{chat: echoClient("a"), caChat: echoClient("b")}
			b := NewBinding(backend)

			ok, err := b.SetAPIKey(context.Background(), "good", "u")
			require.NoError(t, err)
			require.True(t, ok)

			backend.err = failure
			ok, err = b.SetAPIKey(context.Background(), "fake_key", "u")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = b.Chat()
			assert.True(t, errors.Is(err, ErrUninitializedBinding))
			_, err = b.CAChat()
			assert.True(t, errors.Is(err, ErrUninitializedBinding))
			assert.Equal(t, "", b.APIKey())
		})
	}
}

func TestSetAPIKeyHardFailuresPropagate(t *testing.T) {
	for name, failure := range map[string]error{
		"not found":    errors.Wrap(ErrProviderNotFound, "deployment missing"),
		"connectivity": errors.Wrap(ErrConnectivity, "dial tcp"),
		"other":        errors.New("invalid API key"),
	} {
		t.Run(name, func(t *testing.T) {
			b := NewBinding(&fakeBackend{err: failure})

			ok, err := b.SetAPIKey(context.Background(), "k", "u")
			assert.False(t, ok)
			assert.Equal(t, failure, err)
			assert.False(t, b.IsAuthenticated())
		})
	}
}

func TestSetAPIKeyMissingHandle(t *testing.T) {
	b := NewBinding(&fakeBackend{chat: echoClient("a")})

	ok, err := b.SetAPIKey(context.Background(), "k", "u")
	assert.False(t, ok)
	assert.Error(t, err)
	assert.False(t, b.IsAuthenticated())
}

func TestClassifyHTTPStatus(t *testing.T) {
	assert.Equal(t, ErrAuthentication, ClassifyHTTPStatus(401))
	assert.Equal(t, ErrAuthentication, ClassifyHTTPStatus(403))
	assert.Equal(t, ErrProviderNotFound, ClassifyHTTPStatus(404))
	assert.Nil(t, ClassifyHTTPStatus(500))
}
