package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrUnrecognizedMessageVariant is returned when a log entry is not a system,
// human or AI message. Providers cannot guess a role, so this is never skipped.
var ErrUnrecognizedMessageVariant = errors.New("unrecognized message type")

// Conversation is an ordered slice of messages.
type Conversation []*Message

// Log is the ordered record of conversational turns.
//
// A Log is not safe for concurrent use; a conversation is driven by one caller.
type Log struct {
	messages Conversation
}

func NewLog(messages ...*Message) *Log {
	ret := &Log{}
	ret.messages = append(ret.messages, messages...)
	return ret
}

// Append adds a message as is. Nothing is validated here, serialization is
// where unrecognized values are reported.
func (l *Log) Append(messages ...*Message) {
	for _, msg := range messages {
		if c, ok := msg.Chat(); ok {
			log.Trace().
				Str("role", string(c.Role)).
				Int("images", len(c.Images)).
				Int("position", len(l.messages)).
				Msg("appending message")
		}
		l.messages = append(l.messages, msg)
	}
}

func (l *Log) AppendSystemMessage(text string, options ...MessageOption) {
	l.Append(NewSystemMessage(text, options...))
}

func (l *Log) AppendHumanMessage(text string, options ...MessageOption) {
	l.Append(NewHumanMessage(text, options...))
}

func (l *Log) AppendAIMessage(text string, options ...MessageOption) {
	l.Append(NewAIMessage(text, options...))
}

// Messages returns a copy of the message slice.
func (l *Log) Messages() Conversation {
	ret := make(Conversation, len(l.messages))
	copy(ret, l.messages)
	return ret
}

func (l *Log) Len() int {
	return len(l.messages)
}

// Last returns the most recent message, if any.
func (l *Log) Last() (*Message, bool) {
	if len(l.messages) == 0 {
		return nil, false
	}
	return l.messages[len(l.messages)-1], true
}

func (l *Log) Reset() {
	l.messages = nil
}

// Serialize maps every message to a single-key mapping keyed by "system",
// "user" or "ai". An empty log serializes to an empty, non-nil slice.
func (l *Log) Serialize() ([]map[string]string, error) {
	return l.messages.Serialize()
}

func (c Conversation) Serialize() ([]map[string]string, error) {
	ret := make([]map[string]string, 0, len(c))
	for i, msg := range c {
		content, ok := msg.Chat()
		if !ok {
			return nil, errors.Wrapf(ErrUnrecognizedMessageVariant, "message %d (%s)", i, describe(msg))
		}
		key, _ := content.Role.SerializationKey()
		ret = append(ret, map[string]string{key: content.Text})
	}
	return ret, nil
}

// ToJSON renders the serialized log the way the message history is exchanged
// with other tools: `[{"system": "..."}, {"user": "..."}]`.
func (l *Log) ToJSON() (string, error) {
	serialized, err := l.Serialize()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("[")
	for i, entry := range serialized {
		if i > 0 {
			sb.WriteString(", ")
		}
		for key, value := range entry {
			sb.WriteString("{")
			sb.WriteString(quote(key))
			sb.WriteString(": ")
			sb.WriteString(quote(value))
			sb.WriteString("}")
		}
	}
	sb.WriteString("]")
	return sb.String(), nil
}

// Transcript renders every recognized message as "[role]: text", one per line.
func (c Conversation) Transcript() string {
	var sb strings.Builder
	for _, msg := range c {
		if content, ok := msg.Chat(); ok {
			sb.WriteString(content.View())
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// strings always encode
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

func describe(msg *Message) string {
	switch {
	case msg == nil:
		return "nil message"
	case msg.Content == nil:
		return "nil content"
	default:
		if c, ok := msg.Content.(*ChatMessageContent); ok && c != nil {
			return "role " + string(c.Role)
		}
		return string(msg.Content.ContentType())
	}
}

// ImageEncoder turns a local image file into a base64 encoded PNG.
type ImageEncoder interface {
	EncodeFile(path string) (string, error)
}

// AppendImageMessage appends a human message carrying an image. Local files are
// encoded through the encoder and attached as data URLs, remote URLs are
// attached verbatim.
func (l *Log) AppendImageMessage(ctx context.Context, text string, imageURL string, local bool, encoder ImageEncoder) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var img *ImageContent
	if local {
		if encoder == nil {
			return errors.New("no image encoder configured for local image")
		}
		encoded, err := encoder.EncodeFile(imageURL)
		if err != nil {
			return errors.Wrapf(err, "could not encode image %s", imageURL)
		}
		img = NewImageContentFromBase64PNG(encoded)
	} else {
		img = NewImageContentFromURL(imageURL)
	}

	l.AppendHumanMessage(text, WithImages(img))
	return nil
}
