package history

import (
	"testing"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sys   = conversation.NewSystemMessage
	human = conversation.NewHumanMessage
	ai    = conversation.NewAIMessage
)

func last(t *testing.T, turns []Turn) Turn {
	require.NotEmpty(t, turns)
	return turns[len(turns)-1]
}

func TestCollapseSingleSystemBeforeHuman(t *testing.T) {
	turns, err := Flatten([]*conversation.Message{
		sys("System message"),
		human("Human message"),
	}, StrategyCollapse)
	require.NoError(t, err)
	assert.Equal(t, Turn{Role: RoleUser, Content: "System message\nHuman message"}, last(t, turns))
	assert.Len(t, turns, 1)
}

func TestCollapseMultipleSystemBeforeHuman(t *testing.T) {
	turns, err := Flatten([]*conversation.Message{
		sys("System message 1"),
		sys("System message 2"),
		human("Human message"),
	}, StrategyCollapse)
	require.NoError(t, err)
	assert.Equal(t, Turn{Role: RoleUser, Content: "System message 1\nSystem message 2\nHuman message"}, last(t, turns))
}

func TestCollapseAIBeforeSystemAndHuman(t *testing.T) {
	turns, err := Flatten([]*conversation.Message{
		human("Human message history"),
		ai("AI message"),
		sys("System message"),
		human("Human message"),
	}, StrategyCollapse)
	require.NoError(t, err)
	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "Human message history"},
		{Role: RoleAssistant, Content: "AI message"},
		{Role: RoleUser, Content: "System message\nHuman message"},
	}, turns)
}

func TestCollapseMultipleCycles(t *testing.T) {
	turns, err := Flatten([]*conversation.Message{
		human("Human message history"),
		ai("AI message"),
		human("Human message"),
		ai("AI message"),
		human("Human message"),
		ai("AI message"),
		sys("System message"),
		human("Human message"),
	}, StrategyCollapse)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, Turn{Role: RoleUser, Content: "System message\nHuman message"}, last(t, turns))
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t,
		"Human message history\nAI message\nHuman message\nAI message\nHuman message",
		turns[0].Content)
}

func TestCollapseEndingWithAI(t *testing.T) {
	turns, err := Flatten([]*conversation.Message{
		ai("hello"),
	}, StrategyCollapse)
	require.NoError(t, err)
	assert.Equal(t, []Turn{{Role: RoleAssistant, Content: "hello"}}, turns)
}

func TestFoldSystemMinimumContract(t *testing.T) {
	turns, err := Flatten([]*conversation.Message{
		sys("s1"),
		sys("s2"),
		human("h1"),
		ai("a1"),
		human("h2"),
		ai("a2"),
		sys("s3"),
		human("h3"),
	}, StrategyFoldSystem)
	require.NoError(t, err)
	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "s1\ns2\nh1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "h2"},
		{Role: RoleAssistant, Content: "a2"},
		{Role: RoleUser, Content: "s3\nh3"},
	}, turns)
}

func TestFoldSystemTrailingSystemRun(t *testing.T) {
	turns, err := Flatten([]*conversation.Message{
		human("h1"),
		sys("s1"),
	}, StrategyFoldSystem)
	require.NoError(t, err)
	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "h1"},
		{Role: RoleUser, Content: "s1"},
	}, turns)
}

func TestFlattenCarriesImages(t *testing.T) {
	img := conversation.NewImageContentFromURL("https://example.com/a.png")
	msgs := []*conversation.Message{
		sys("look"),
		human("what is it?", conversation.WithImages(img)),
	}

	for _, strategy := range []Strategy{StrategyCollapse, StrategyFoldSystem} {
		turns, err := Flatten(msgs, strategy)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/a.png"}, last(t, turns).Images, string(strategy))
	}
}

func TestCanonical(t *testing.T) {
	turns, err := Canonical([]*conversation.Message{
		sys("s"),
		human("h"),
		ai("a"),
	})
	require.NoError(t, err)
	assert.Equal(t, []Turn{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "h"},
		{Role: RoleAssistant, Content: "a"},
	}, turns)
}

func TestUnrecognizedMessage(t *testing.T) {
	msgs := []*conversation.Message{human("h"), nil}

	_, err := Canonical(msgs)
	assert.True(t, errors.Is(err, conversation.ErrUnrecognizedMessageVariant))

	_, err = Flatten(msgs, StrategyFoldSystem)
	assert.True(t, errors.Is(err, conversation.ErrUnrecognizedMessageVariant))
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyCollapse, s)

	s, err = ParseStrategy("fold-system")
	require.NoError(t, err)
	assert.Equal(t, StrategyFoldSystem, s)

	_, err = ParseStrategy("zip")
	assert.Error(t, err)
}
