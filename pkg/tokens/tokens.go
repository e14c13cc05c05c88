// Package tokens counts tokens with the tiktoken encodings.
package tokens

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

const DefaultEncoding = tokenizer.Cl100kBase

type Counter struct {
	codec tokenizer.Codec
}

// NewCounter picks the codec of model. Models tiktoken does not know use
// encoding, or cl100k_base when encoding is empty.
func NewCounter(model string, encoding string) (*Counter, error) {
	if model != "" {
		c, err := tokenizer.ForModel(tokenizer.Model(model))
		if err == nil {
			return &Counter{codec: c}, nil
		}
		log.Debug().Str("model", model).Msg("no tokenizer for model, using encoding")
	}

	enc := tokenizer.Encoding(encoding)
	if encoding == "" {
		enc = DefaultEncoding
	}
	c, err := tokenizer.Get(enc)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create tokenizer %s", enc)
	}
	return &Counter{codec: c}, nil
}

func (c *Counter) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, errors.Wrap(err, "could not encode text")
	}
	return len(ids), nil
}

func (c *Counter) Encode(text string) ([]uint, []string, error) {
	return c.codec.Encode(text)
}

func (c *Counter) Decode(ids []uint) (string, error) {
	return c.codec.Decode(ids)
}

func (c *Counter) Encoding() string {
	return string(c.codec.GetName())
}
