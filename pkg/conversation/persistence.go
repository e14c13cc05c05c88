package conversation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// yamlMessage is the hand-written form of a log entry, a list of role/text
// pairs with optional image URLs.
type yamlMessage struct {
	Role   Role     `yaml:"role"`
	Text   string   `yaml:"text"`
	Images []string `yaml:"images,omitempty"`
}

// LoadFromFile reads messages from a JSON or YAML file.
func LoadFromFile(filename string) (*Log, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return loadFromJSONFile(filename)
	case ".yaml", ".yml":
		return loadFromYAMLFile(filename)
	default:
		return nil, errors.Errorf("unsupported conversation file %s", filename)
	}
}

func loadFromYAMLFile(filename string) (*Log, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var entries []yamlMessage
	if err := yaml.NewDecoder(f).Decode(&entries); err != nil {
		return nil, errors.Wrapf(err, "could not decode %s", filename)
	}

	ret := NewLog()
	for i, e := range entries {
		if _, ok := e.Role.SerializationKey(); !ok {
			return nil, errors.Wrapf(ErrUnrecognizedMessageVariant, "%s: entry %d has role %q", filename, i, e.Role)
		}
		var opts []MessageOption
		for _, url := range e.Images {
			opts = append(opts, WithImages(NewImageContentFromURL(url)))
		}
		ret.Append(NewChatMessage(e.Role, e.Text, opts...))
	}

	return ret, nil
}

func loadFromJSONFile(filename string) (*Log, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var messages []*Message
	if err := json.NewDecoder(f).Decode(&messages); err != nil {
		return nil, errors.Wrapf(err, "could not decode %s", filename)
	}

	return NewLog(messages...), nil
}

// SaveToFile writes the log as indented JSON.
func (l *Log) SaveToFile(s string) error {
	f, err := os.Create(s)
	if err != nil {
		return err
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(l.messages)
}
