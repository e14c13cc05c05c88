package api

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
)

type Content struct {
	Type   ContentType  `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource is either inline base64 data or a URL the API fetches itself.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

func NewTextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

func NewImageContent(mediaType, base64Data string) Content {
	return Content{
		Type: ContentTypeImage,
		Source: &ImageSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      base64Data,
		},
	}
}

func NewImageURLContent(url string) Content {
	return Content{
		Type:   ContentTypeImage,
		Source: &ImageSource{Type: "url", URL: url},
	}
}

// NewImageContentFromURL accepts data URLs and plain http(s) URLs.
func NewImageContentFromURL(url string) (Content, error) {
	if !strings.HasPrefix(url, "data:") {
		return NewImageURLContent(url), nil
	}
	header, data, ok := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return Content{}, errors.Errorf("unsupported data URL %.32s", url)
	}
	return NewImageContent(strings.TrimSuffix(header, ";base64"), data), nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	type Alias Content
	switch c.Type {
	case ContentTypeText:
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			Text string      `json:"text"`
		}{c.Type, c.Text})
	default:
		return json.Marshal(Alias(c))
	}
}
