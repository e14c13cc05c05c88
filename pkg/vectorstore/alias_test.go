package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocNameRoundTrip(t *testing.T) {
	for _, name := range []string{
		"paper.pdf",
		"a",
		"ab",
		"Ünïcödé report (final).txt",
		"???>>>",
	} {
		encoded := EncodeDocName(name)
		assert.Regexp(t, `^[0-9a-zA-Z_]+$`, encoded)
		decoded, err := DecodeDocName(encoded)
		require.NoError(t, err)
		assert.Equal(t, name, decoded)
	}
}

func TestEncodeDocNameReplacements(t *testing.T) {
	// "a" is YQ== in base64
	assert.Equal(t, "YQb_bb_b", EncodeDocName("a"))
	// ">>>" is Pj4- in URL-safe base64
	assert.Equal(t, "Pj4a_a", EncodeDocName(">>>"))
}

func TestParseAlias(t *testing.T) {
	id := NewCollectionID()
	require.Len(t, id, 32)

	alias := MakeAlias("paper.pdf", id)
	encoded, gotID, ok := ParseAlias(alias)
	require.True(t, ok)
	assert.Equal(t, id, gotID)
	name, err := DecodeDocName(encoded)
	require.NoError(t, err)
	assert.Equal(t, "paper.pdf", name)

	for _, invalid := range []string{
		"",
		"LangChainCollection",
		"abc_c123",
		"abc_c" + "ABCDEF0123456789ABCDEF0123456789",
		"ab-c_c" + id,
		"_c" + id,
	} {
		_, _, ok := ParseAlias(invalid)
		assert.False(t, ok, invalid)
	}
}
