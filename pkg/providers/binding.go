package providers

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Binding holds the chat handles established by the last successful SetAPIKey.
// The two handles are always set and reset together.
type Binding struct {
	backend Backend
	chat    Client
	caChat  Client
	apiKey  string
	user    string
}

func NewBinding(backend Backend) *Binding {
	return &Binding{backend: backend}
}

func (b *Binding) Backend() Backend {
	return b.backend
}

// SetAPIKey authenticates against the backend. Rejected credentials and
// unsupported models yield false with a nil error, every other failure is
// returned as is. On any failure both handles are cleared.
func (b *Binding) SetAPIKey(ctx context.Context, apiKey string, user string) (bool, error) {
	l := log.With().Str("backend", b.backend.Name()).Str("user", user).Logger()

	chat, caChat, err := b.backend.Authenticate(ctx, Credentials{APIKey: apiKey, User: user})
	if err == nil && (chat == nil || caChat == nil) {
		err = errors.New("backend returned no chat handle")
	}
	if err != nil {
		b.reset()
		if IsSoftFailure(err) {
			l.Warn().Err(err).Msg("could not set API key")
			return false, nil
		}
		l.Debug().Err(err).Msg("authentication failed")
		return false, err
	}

	b.chat = chat
	b.caChat = caChat
	b.apiKey = apiKey
	b.user = user
	l.Debug().Msg("authenticated")
	return true, nil
}

func (b *Binding) reset() {
	b.chat = nil
	b.caChat = nil
	b.apiKey = ""
	b.user = ""
}

func (b *Binding) Chat() (Client, error) {
	if b.chat == nil {
		return nil, errors.Wrap(ErrUninitializedBinding, "chat attribute not initialized, did you call SetAPIKey()?")
	}
	return b.chat, nil
}

func (b *Binding) CAChat() (Client, error) {
	if b.caChat == nil {
		return nil, errors.Wrap(ErrUninitializedBinding, "correcting agent chat attribute not initialized, did you call SetAPIKey()?")
	}
	return b.caChat, nil
}

func (b *Binding) IsAuthenticated() bool {
	return b.chat != nil && b.caChat != nil
}

func (b *Binding) APIKey() string {
	return b.apiKey
}

func (b *Binding) User() string {
	return b.user
}
