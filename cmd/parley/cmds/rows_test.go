package cmds

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/catalog"
	"github.com/go-go-golems/parley/pkg/tokens"
	"github.com/go-go-golems/parley/pkg/vectorstore"
)

func get(t *testing.T, row types.Row, key string) interface{} {
	t.Helper()
	v, ok := row.Get(key)
	require.True(t, ok, "missing column %s", key)
	return v
}

func testCatalog(t *testing.T) *catalog.Catalog {
	cat, err := catalog.Load(strings.NewReader(`
models: [alpha, beta, gamma]
models_by_provider:
  one: [alpha, beta]
  two: [gamma]
model_cost:
  alpha:
    max_tokens: 100
    input_cost_per_token: 0.5
    output_cost_per_token: 1.0
    provider: one
  gamma:
    provider: two
`))
	require.NoError(t, err)
	return cat
}

func TestModelListRows(t *testing.T) {
	cat := testCatalog(t)

	rows := modelListRows(cat, "")
	require.Len(t, rows, 3)
	assert.Equal(t, "alpha", get(t, rows[0], "model"))
	assert.Equal(t, "one", get(t, rows[0], "provider"))
	assert.Equal(t, "", get(t, rows[1], "provider"))

	rows = modelListRows(cat, "one")
	require.Len(t, rows, 2)
	assert.Equal(t, "beta", get(t, rows[1], "model"))
	assert.Equal(t, "one", get(t, rows[1], "provider"))

	assert.Empty(t, modelListRows(cat, "nobody"))
}

func TestModelInfoRows(t *testing.T) {
	cat := testCatalog(t)

	rows, err := modelInfoRows(cat, []string{"alpha", "gamma"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 100, get(t, rows[0], "max_tokens"))
	assert.Equal(t, 0.5, get(t, rows[0], "input_cost_per_token"))
	assert.Equal(t, 1.0, get(t, rows[0], "output_cost_per_token"))

	_, ok := rows[1].Get("max_tokens")
	assert.False(t, ok)
	assert.Equal(t, "two", get(t, rows[1], "provider"))

	_, err = modelInfoRows(cat, []string{"alpha", "missing"})
	assert.True(t, errors.Is(err, catalog.ErrModelInfoNotFound))
}

func TestProviderRows(t *testing.T) {
	rows := providerRows(testCatalog(t))
	require.Len(t, rows, 2)
	assert.Equal(t, "one", get(t, rows[0], "provider"))
	assert.Equal(t, 2, get(t, rows[0], "models"))
	assert.Equal(t, "two", get(t, rows[1], "provider"))
	assert.Equal(t, 1, get(t, rows[1], "models"))
}

func TestCostRow(t *testing.T) {
	row, err := costRow(catalog.Default(), "gpt-3.5-turbo", 1000, 500)
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo", get(t, row, "model"))
	assert.Equal(t, 1000, get(t, row, "prompt_tokens"))
	assert.Equal(t, "0.002500", get(t, row, "cost"))

	_, err = costRow(catalog.Default(), "no-such-model", 1, 1)
	assert.True(t, errors.Is(err, catalog.ErrModelInfoNotFound))
}

func TestCollectionRows(t *testing.T) {
	rows := collectionRows([]vectorstore.Collection{
		{Name: "Parley_abc", DocumentName: "handbook", Alias: "handbook"},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, "handbook", get(t, rows[0], "document"))
	assert.Equal(t, "Parley_abc", get(t, rows[0], "collection"))
}

func TestSearchRows(t *testing.T) {
	rows := searchRows([]vectorstore.SearchResult{
		{Document: vectorstore.Document{Content: "near", Metadata: map[string]interface{}{"source": "a.txt"}}, Distance: 0.1},
		{Document: vectorstore.Document{Content: "far"}, Distance: 0.7},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, 1, get(t, rows[0], "rank"))
	assert.Equal(t, "a.txt", get(t, rows[0], "source"))
	assert.Equal(t, 2, get(t, rows[1], "rank"))
	assert.Equal(t, 0.7, get(t, rows[1], "distance"))
	_, ok := rows[1].Get("source")
	assert.False(t, ok)
}

func TestReadInputsAndCountRows(t *testing.T) {
	sources, contents, err := readInputs(strings.NewReader("from stdin"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"-"}, sources)
	assert.Equal(t, []string{"from stdin"}, contents)

	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))
	sources, contents, err = readInputs(strings.NewReader(""), []string{path})
	require.NoError(t, err)
	assert.Equal(t, []string{path}, sources)

	counter, err := tokens.NewCounter("", "")
	require.NoError(t, err)
	rows, err := countRows(counter, sources, contents)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, path, get(t, rows[0], "source"))
	assert.Equal(t, counter.Encoding(), get(t, rows[0], "encoding"))
	assert.Equal(t, 2, get(t, rows[0], "tokens"))

	_, _, err = readInputs(strings.NewReader(""), []string{filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestCommandTrees(t *testing.T) {
	names := func(cmds []string, want ...string) {
		for _, w := range want {
			assert.Contains(t, cmds, w)
		}
	}
	models := NewModelsCommand()
	var got []string
	for _, c := range models.Commands() {
		got = append(got, c.Name())
	}
	names(got, "list", "info", "max-tokens", "providers", "cost")

	got = nil
	for _, c := range NewTokensCommand().Commands() {
		got = append(got, c.Name())
	}
	names(got, "count", "encode", "decode", "list-encodings")

	cost := NewModelsCommand()
	for _, c := range cost.Commands() {
		if c.Name() == "cost" {
			assert.NotNil(t, c.Flags().Lookup("prompt-tokens"))
			assert.NotNil(t, c.Flags().Lookup("output"), "glazed output flags")
		}
	}
}
