// Package providers defines the contract every LLM backend family implements
// and the binding that holds the authenticated chat handles of a conversation.
package providers

import (
	"context"

	"github.com/go-go-golems/parley/pkg/history"
)

type Credentials struct {
	APIKey string
	User   string
}

// Reply is a single completion. Usage is the usage mapping reported by the
// provider, if any; Raw is the decoded provider response for backends whose
// usage has to be dug out with ParseLLMResponse.
type Reply struct {
	Text  string
	Usage map[string]interface{}
	Raw   interface{}
}

// Client sends a prepared history to a model and returns its reply.
type Client interface {
	Generate(ctx context.Context, turns []history.Turn) (*Reply, error)
}

// Backend is a provider family.
type Backend interface {
	Name() string
	// SupportsSystemRole is false for backends that need their history flattened.
	SupportsSystemRole() bool
	// Authenticate validates the credentials and returns the primary chat
	// handle and the correcting agent handle. Both are returned together or
	// not at all.
	Authenticate(ctx context.Context, creds Credentials) (chat Client, caChat Client, err error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, turns []history.Turn) (*Reply, error)

func (f ClientFunc) Generate(ctx context.Context, turns []history.Turn) (*Reply, error) {
	return f(ctx, turns)
}
