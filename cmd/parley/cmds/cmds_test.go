package cmds

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/engine"
	"github.com/go-go-golems/parley/pkg/settings"
)

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1,2", "3 4", "5"})
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3, 4, 5}, ids)

	_, err = parseIDs([]string{"x"})
	assert.Error(t, err)
}

func TestFormatIDs(t *testing.T) {
	assert.Equal(t, "1 22 333", formatIDs([]uint{1, 22, 333}))
	assert.Equal(t, "", formatIDs(nil))
}

func TestSplitParagraphs(t *testing.T) {
	docs := splitParagraphs("first\r\n\r\nsecond\nline\n\n\n\nthird  \n", "doc.txt")
	require.Len(t, docs, 3)
	assert.Equal(t, "first", docs[0].Content)
	assert.Equal(t, "second\nline", docs[1].Content)
	assert.Equal(t, "third", docs[2].Content)
	assert.Equal(t, "doc.txt", docs[2].Metadata["source"])

	assert.Empty(t, splitParagraphs("\n\n  \n", "empty.txt"))
}

func TestFormatTokenUsage(t *testing.T) {
	assert.Equal(t,
		"usage: prompt_tokens=3 completion_tokens=2 total_tokens=5",
		formatTokenUsage(map[string]interface{}{
			"prompt_tokens":     3,
			"completion_tokens": 2.0,
			"total_tokens":      int64(5),
			"model":             "x",
		}))
	assert.Equal(t, "usage: n/a", formatTokenUsage(map[string]interface{}{"cached": true}))
}

func TestPrintResponse(t *testing.T) {
	ok := engine.NoCorrection
	fix := "Paris is in France."

	buf := &bytes.Buffer{}
	printResponse(buf, &engine.Response{Answer: "hi", Correction: &ok}, nil)
	assert.Contains(t, buf.String(), "hi\n")
	assert.Contains(t, buf.String(), "correction: OK")

	buf.Reset()
	printResponse(buf, &engine.Response{Answer: "Paris is in Spain.", Correction: &fix}, nil)
	assert.Contains(t, buf.String(), "correction: Paris is in France.")

	buf.Reset()
	printResponse(buf, &engine.Response{Answer: "no review"}, nil)
	assert.NotContains(t, buf.String(), "correction")
}

func TestPrintResponseCost(t *testing.T) {
	buf := &bytes.Buffer{}
	usage := map[string]interface{}{"prompt_tokens": 10, "completion_tokens": 5}
	cost := 0.00125

	printResponse(buf, &engine.Response{Answer: "hi", TokenUsage: usage}, &cost)
	assert.Contains(t, buf.String(), "usage: prompt_tokens=10 completion_tokens=5 cost=$0.001250")

	buf.Reset()
	printResponse(buf, &engine.Response{Answer: "hi", TokenUsage: usage}, nil)
	assert.NotContains(t, buf.String(), "cost=")
}

func resetViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadSettingsOverlay(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: ollama\nmodel: llama2\ncorrect: true\n"), 0o644))

	viper.Set("settings", path)
	viper.Set("model", "mistral")

	s, err := loadSettings()
	require.NoError(t, err)
	assert.Equal(t, settings.ProviderOllama, s.Provider)
	assert.Equal(t, "mistral", s.Model)
	assert.True(t, s.Correct)
}

func TestLoadSettingsProviderKeyFromEnvironment(t *testing.T) {
	resetViper(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	viper.Set("provider", "anthropic")
	viper.Set("model", "claude-3-haiku-20240307")

	s, err := loadSettings()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", s.APIKey)
}

func TestLoadSettingsRejectsUnknownProvider(t *testing.T) {
	resetViper(t)
	viper.Set("provider", "carrier-pigeon")

	_, err := loadSettings()
	assert.Error(t, err)
}

func TestRunChatOffline(t *testing.T) {
	s := settings.NewSettings()
	s.Provider = settings.ProviderOffline
	s.Model = "offline"

	out := &bytes.Buffer{}
	err := runChat(context.Background(), s, &chatOptions{query: "hello there"}, strings.NewReader(""), out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "hello there")
}

func TestRunChatREPL(t *testing.T) {
	s := settings.NewSettings()
	s.Provider = settings.ProviderOffline
	s.Model = "offline"

	save := filepath.Join(t.TempDir(), "conversation.json")
	in := strings.NewReader("first\n/json\n/quit\nnever asked\n")
	out := &bytes.Buffer{}

	err := runChat(context.Background(), s, &chatOptions{save: save}, in, out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `{"user": "first"}`)
	assert.NotContains(t, out.String(), "never asked")

	b, err := os.ReadFile(save)
	require.NoError(t, err)
	assert.Contains(t, string(b), "first")
}

func TestRunChatREPLResetKeepsSystemContext(t *testing.T) {
	s := settings.NewSettings()
	s.Provider = settings.ProviderOffline
	s.Model = "offline"

	in := strings.NewReader("first\n/history\n/reset\n/history\n/json\n/quit\n")
	out := &bytes.Buffer{}

	err := runChat(context.Background(), s, &chatOptions{system: "ctx"}, in, out)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out.String(), "[system]: ctx\n"))
	assert.Equal(t, 1, strings.Count(out.String(), "[user]: first\n"))
	assert.Contains(t, out.String(), `[{"system": "ctx"}]`)
}
