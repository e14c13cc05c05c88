// Package offline is a backend that never leaves the process. It echoes the
// conversation back, which keeps the engine usable without any provider.
package offline

import (
	"context"
	"strings"

	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/tokens"
)

type Backend struct {
	model string
}

var _ providers.Backend = (*Backend)(nil)

func NewBackend(model string) *Backend {
	return &Backend{model: model}
}

func (b *Backend) Name() string {
	return "offline"
}

func (b *Backend) SupportsSystemRole() bool {
	return true
}

// Authenticate always succeeds, credentials are ignored.
func (b *Backend) Authenticate(context.Context, providers.Credentials) (providers.Client, providers.Client, error) {
	counter, err := tokens.NewCounter(b.model, "")
	if err != nil {
		return nil, nil, err
	}
	c := &echoClient{counter: counter}
	return c, c, nil
}

type echoClient struct {
	counter *tokens.Counter
}

// Generate answers with the contents of all turns joined by newlines.
func (c *echoClient) Generate(ctx context.Context, turns []history.Turn) (*providers.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contents := make([]string, 0, len(turns))
	for _, t := range turns {
		contents = append(contents, t.Content)
	}
	text := strings.Join(contents, "\n")

	n, err := c.counter.Count(text)
	if err != nil {
		return nil, err
	}

	return &providers.Reply{
		Text: text,
		Usage: map[string]interface{}{
			"prompt_tokens":     n,
			"completion_tokens": n,
			"total_tokens":      2 * n,
		},
	}, nil
}
