package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClass(t *testing.T) {
	c := newClass("Cabc", "doc_cabc")
	assert.Equal(t, "none", c.Vectorizer)
	assert.Equal(t, "doc_cabc", c.Description)
	require.Len(t, c.Properties, 2)
	assert.Equal(t, "text", c.Properties[0].Name)
	assert.Equal(t, "metadata", c.Properties[1].Name)
}

func TestNewObjects(t *testing.T) {
	objects, err := newObjects("Cabc", []Document{
		{Content: "a", Metadata: map[string]interface{}{"page": 2}},
		{Content: "b"},
	}, [][]float32{{1, 2}, {3, 4}})
	require.NoError(t, err)
	require.Len(t, objects, 2)

	props := objects[0].Properties.(map[string]interface{})
	assert.Equal(t, "a", props["text"])
	assert.Equal(t, `{"page":2}`, props["metadata"])
	assert.Equal(t, "{}", objects[1].Properties.(map[string]interface{})["metadata"])
	assert.Equal(t, []float32{3, 4}, []float32(objects[1].Vector))
}

func TestParseSearchResults(t *testing.T) {
	get := map[string]interface{}{
		"Cabc": []interface{}{
			map[string]interface{}{
				"text":        "first",
				"metadata":    `{"page":1}`,
				"_additional": map[string]interface{}{"distance": 0.25},
			},
			map[string]interface{}{
				"text":     "second",
				"metadata": "{}",
			},
		},
	}

	results, err := parseSearchResults(get, "Cabc")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Content)
	assert.Equal(t, 1.0, results[0].Metadata["page"])
	assert.Equal(t, 0.25, results[0].Distance)
	assert.Nil(t, results[1].Metadata)

	empty, err := parseSearchResults(map[string]interface{}{}, "Cabc")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = parseSearchResults(nil, "Cabc")
	assert.Error(t, err)
}
