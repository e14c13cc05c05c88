package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type ContentType string

const (
	ContentTypeChatMessage ContentType = "chat-message"
	ContentTypeImage       ContentType = "image"
)

// MessageContent is implemented by everything that can be stored in a message.
// Only *ChatMessageContent with one of the three known roles is a recognized
// variant for serialization and history building.
type MessageContent interface {
	ContentType() ContentType
	String() string
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SerializationKey returns the key used for the role in serialized logs.
func (r Role) SerializationKey() (string, bool) {
	switch r {
	case RoleSystem:
		return "system", true
	case RoleUser:
		return "user", true
	case RoleAssistant:
		return "ai", true
	default:
		return "", false
	}
}

type ChatMessageContent struct {
	Role   Role            `json:"role" yaml:"role"`
	Text   string          `json:"text" yaml:"text"`
	Images []*ImageContent `json:"images,omitempty" yaml:"images,omitempty"`
}

func (c *ChatMessageContent) ContentType() ContentType {
	return ContentTypeChatMessage
}

func (c *ChatMessageContent) String() string {
	return c.Text
}

// View renders the message for terminal output.
func (c *ChatMessageContent) View() string {
	return fmt.Sprintf("[%s]: %s", c.Role, strings.TrimRight(c.Text, "\n"))
}

var _ MessageContent = (*ChatMessageContent)(nil)

type ImageDetail string

const (
	ImageDetailLow  ImageDetail = "low"
	ImageDetailHigh ImageDetail = "high"
	ImageDetailAuto ImageDetail = "auto"
)

// ImageContent is an image attachment. ImageURL is either a remote http(s) URL
// or a data URL carrying a base64 encoded PNG.
type ImageContent struct {
	ImageURL  string      `json:"imageURL" yaml:"imageURL"`
	MediaType string      `json:"mediaType,omitempty" yaml:"mediaType,omitempty"`
	Detail    ImageDetail `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// NewImageContentFromBase64PNG wraps an encoded PNG into a data URL attachment.
func NewImageContentFromBase64PNG(encoded string) *ImageContent {
	return &ImageContent{
		ImageURL:  "data:image/png;base64," + encoded,
		MediaType: "image/png",
		Detail:    ImageDetailAuto,
	}
}

// NewImageContentFromURL references a remote image without fetching it.
func NewImageContentFromURL(url string) *ImageContent {
	return &ImageContent{
		ImageURL: url,
		Detail:   ImageDetailAuto,
	}
}

func (i *ImageContent) ContentType() ContentType {
	return ContentTypeImage
}

func (i *ImageContent) String() string {
	if strings.HasPrefix(i.ImageURL, "data:") {
		return fmt.Sprintf("ImageContent{MediaType: %s, Detail: %s}", i.MediaType, i.Detail)
	}
	return fmt.Sprintf("ImageContent{ImageURL: %s, Detail: %s}", i.ImageURL, i.Detail)
}

var _ MessageContent = (*ImageContent)(nil)

// Message is a single entry of a Log. Messages are never modified once appended.
type Message struct {
	ID       uuid.UUID              `json:"id" yaml:"id"`
	Time     time.Time              `json:"time" yaml:"time"`
	Content  MessageContent         `json:"content" yaml:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type MessageOption func(*Message)

func WithMetadata(metadata map[string]interface{}) MessageOption {
	return func(message *Message) {
		message.Metadata = metadata
	}
}

func WithTime(time time.Time) MessageOption {
	return func(message *Message) {
		message.Time = time
	}
}

func WithID(id uuid.UUID) MessageOption {
	return func(message *Message) {
		message.ID = id
	}
}

func WithImages(images ...*ImageContent) MessageOption {
	return func(message *Message) {
		if c, ok := message.Content.(*ChatMessageContent); ok {
			c.Images = append(c.Images, images...)
		}
	}
}

func NewMessage(content MessageContent, options ...MessageOption) *Message {
	ret := &Message{
		Content: content,
		ID:      uuid.New(),
		Time:    time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func NewChatMessage(role Role, text string, options ...MessageOption) *Message {
	return NewMessage(&ChatMessageContent{
		Role: role,
		Text: text,
	}, options...)
}

func NewSystemMessage(text string, options ...MessageOption) *Message {
	return NewChatMessage(RoleSystem, text, options...)
}

func NewHumanMessage(text string, options ...MessageOption) *Message {
	return NewChatMessage(RoleUser, text, options...)
}

func NewAIMessage(text string, options ...MessageOption) *Message {
	return NewChatMessage(RoleAssistant, text, options...)
}

// Chat returns the chat content of a recognized message variant.
func (m *Message) Chat() (*ChatMessageContent, bool) {
	if m == nil || m.Content == nil {
		return nil, false
	}
	c, ok := m.Content.(*ChatMessageContent)
	if !ok || c == nil {
		return nil, false
	}
	if _, known := c.Role.SerializationKey(); !known {
		return nil, false
	}
	return c, true
}

func (m *Message) MarshalJSON() ([]byte, error) {
	if m.Content == nil {
		return nil, errors.Wrap(ErrUnrecognizedMessageVariant, "message has no content")
	}
	type Alias Message
	return json.Marshal(&struct {
		ContentType ContentType `json:"contentType"`
		*Alias
	}{
		ContentType: m.Content.ContentType(),
		Alias:       (*Alias)(m),
	})
}

func (m *Message) UnmarshalJSON(b []byte) error {
	type Alias Message
	aux := &struct {
		ContentType ContentType     `json:"contentType"`
		Content     json.RawMessage `json:"content"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(b, aux); err != nil {
		return err
	}
	switch aux.ContentType {
	case ContentTypeChatMessage, "":
		c := &ChatMessageContent{}
		if err := json.Unmarshal(aux.Content, c); err != nil {
			return err
		}
		m.Content = c
	default:
		return errors.Errorf("unsupported content type %q", aux.ContentType)
	}
	return nil
}
