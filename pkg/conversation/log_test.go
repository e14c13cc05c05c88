package conversation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSONEmptyLog(t *testing.T) {
	l := NewLog()

	s, err := l.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", s)

	serialized, err := l.Serialize()
	require.NoError(t, err)
	assert.NotNil(t, serialized)
	assert.Empty(t, serialized)
}

func TestToJSONSingleSystemMessage(t *testing.T) {
	l := NewLog()
	l.AppendSystemMessage("Hello, world!")

	s, err := l.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, `[{"system": "Hello, world!"}]`, s)
}

func TestToJSONAllVariantsInOrder(t *testing.T) {
	l := NewLog()
	l.AppendSystemMessage("Hello, world!")
	l.AppendHumanMessage("How are you?")
	l.AppendAIMessage("I'm fine, thanks!")

	s, err := l.ToJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`[{"system": "Hello, world!"}, {"user": "How are you?"}, {"ai": "I'm fine, thanks!"}]`,
		s)

	serialized, err := l.Serialize()
	require.NoError(t, err)
	assert.Equal(t, []map[string]string{
		{"system": "Hello, world!"},
		{"user": "How are you?"},
		{"ai": "I'm fine, thanks!"},
	}, serialized)
}

func TestToJSONEscapesQuotes(t *testing.T) {
	l := NewLog()
	l.AppendHumanMessage(`say "hi" <now>`)

	s, err := l.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, `[{"user": "say \"hi\" <now>"}]`, s)
}

func TestSerializeRejectsNilMessage(t *testing.T) {
	l := NewLog()
	l.AppendSystemMessage("Hello, world!")
	l.Append(nil)

	_, err := l.Serialize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnrecognizedMessageVariant))

	_, err = l.ToJSON()
	assert.True(t, errors.Is(err, ErrUnrecognizedMessageVariant))
}

func TestSerializeRejectsUnknownVariants(t *testing.T) {
	cases := map[string]*Message{
		"nil content":  {},
		"image only":   NewMessage(NewImageContentFromURL("https://example.com/a.png")),
		"unknown role": NewChatMessage(Role("tool"), "result"),
	}

	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			l := NewLog(msg)
			_, err := l.Serialize()
			assert.True(t, errors.Is(err, ErrUnrecognizedMessageVariant))
		})
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	l := NewLog()
	l.AppendHumanMessage("one")

	msgs := l.Messages()
	msgs[0] = NewHumanMessage("changed")

	c, ok := l.Messages()[0].Chat()
	require.True(t, ok)
	assert.Equal(t, "one", c.Text)
	assert.Equal(t, 1, l.Len())

	l.Reset()
	assert.Equal(t, 0, l.Len())
	_, ok = l.Last()
	assert.False(t, ok)
}

func TestTranscript(t *testing.T) {
	l := NewLog()
	l.AppendSystemMessage("Be brief.")
	l.AppendHumanMessage("Hi\n")
	l.Append(nil)
	l.AppendAIMessage("Hello.")

	assert.Equal(t, "[system]: Be brief.\n[user]: Hi\n[assistant]: Hello.\n", l.Messages().Transcript())
	assert.Equal(t, "", NewLog().Messages().Transcript())
}

type fakeEncoder struct {
	calls []string
	err   error
}

func (f *fakeEncoder) EncodeFile(path string) (string, error) {
	f.calls = append(f.calls, path)
	if f.err != nil {
		return "", f.err
	}
	return "aGVsbG8=", nil
}

func TestAppendImageMessageLocal(t *testing.T) {
	l := NewLog()
	enc := &fakeEncoder{}

	err := l.AppendImageMessage(context.Background(), "what is this?", "/tmp/cat.png", true, enc)
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/cat.png"}, enc.calls)

	msg, ok := l.Last()
	require.True(t, ok)
	c, ok := msg.Chat()
	require.True(t, ok)
	assert.Equal(t, RoleUser, c.Role)
	assert.Equal(t, "what is this?", c.Text)
	require.Len(t, c.Images, 1)
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", c.Images[0].ImageURL)
}

func TestAppendImageMessageRemoteIsVerbatim(t *testing.T) {
	l := NewLog()
	enc := &fakeEncoder{}

	err := l.AppendImageMessage(context.Background(), "and this?", "https://example.com/dog.png", false, enc)
	require.NoError(t, err)
	assert.Empty(t, enc.calls)

	msg, _ := l.Last()
	c, _ := msg.Chat()
	require.Len(t, c.Images, 1)
	assert.Equal(t, "https://example.com/dog.png", c.Images[0].ImageURL)
}

func TestAppendImageMessageEncoderFailureLeavesLogUntouched(t *testing.T) {
	l := NewLog()
	err := l.AppendImageMessage(context.Background(), "x", "/nope.png", true, &fakeEncoder{err: errors.New("boom")})
	require.Error(t, err)
	assert.Equal(t, 0, l.Len())
}

func TestSaveAndLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversation.json")

	l := NewLog()
	l.AppendSystemMessage("Hello, world!")
	l.AppendHumanMessage("How are you?", WithImages(NewImageContentFromURL("https://example.com/a.png")))
	l.AppendAIMessage("Fine.", WithMetadata(map[string]interface{}{"total_tokens": 3.0}))
	require.NoError(t, l.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Len())

	expected, err := l.ToJSON()
	require.NoError(t, err)
	actual, err := loaded.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, expected, actual)

	c, ok := loaded.Messages()[1].Chat()
	require.True(t, ok)
	require.Len(t, c.Images, 1)
	assert.Equal(t, "https://example.com/a.png", c.Images[0].ImageURL)
	assert.Equal(t, l.Messages()[0].ID, loaded.Messages()[0].ID)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- role: system
  text: You are terse.
- role: user
  text: Hi
  images:
    - https://example.com/a.png
- role: assistant
  text: Hello.
`), 0o644))

	l, err := LoadFromFile(path)
	require.NoError(t, err)

	s, err := l.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, `[{"system": "You are terse."}, {"user": "Hi"}, {"ai": "Hello."}]`, s)
}

func TestLoadYAMLRejectsUnknownRole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversation.yml")
	require.NoError(t, os.WriteFile(path, []byte("- role: tool\n  text: x\n"), 0o644))

	_, err := LoadFromFile(path)
	assert.True(t, errors.Is(err, ErrUnrecognizedMessageVariant))
}

func TestLoadFromFileUnsupportedExtension(t *testing.T) {
	_, err := LoadFromFile("conversation.txt")
	assert.Error(t, err)
}
