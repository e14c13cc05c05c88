// Package settings loads the configuration of a conversation and builds the
// backend, usage sink and vector store it describes.
package settings

import (
	"os"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/parley/pkg/engine"
)

type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderAzure      ProviderType = "azure"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderOllama     ProviderType = "ollama"
	ProviderXinference ProviderType = "xinference"
	ProviderRouter     ProviderType = "router"
	ProviderOffline    ProviderType = "offline"
)

var ProviderTypes = []ProviderType{
	ProviderOpenAI,
	ProviderAzure,
	ProviderAnthropic,
	ProviderOllama,
	ProviderXinference,
	ProviderRouter,
	ProviderOffline,
}

type SinkType string

const (
	SinkMemory SinkType = "memory"
	SinkSQLite SinkType = "sqlite"
	SinkRedis  SinkType = "redis"
)

type UsageSettings struct {
	Sink SinkType `yaml:"sink"`
	// DSN is the sqlite database path.
	DSN      string `yaml:"dsn,omitempty"`
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

type ImageSettings struct {
	MaxSize int    `yaml:"max_size"`
	TempDir string `yaml:"temp_dir,omitempty"`
}

type VectorStoreSettings struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`
	// EmbeddingProvider is "openai" or "ollama".
	EmbeddingProvider   string `yaml:"embedding_provider"`
	EmbeddingModel      string `yaml:"embedding_model,omitempty"`
	EmbeddingBaseURL    string `yaml:"embedding_base_url,omitempty"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions,omitempty"`
	CacheSize           int    `yaml:"cache_size,omitempty"`
}

type Settings struct {
	Provider        ProviderType  `yaml:"provider"`
	Model           string        `yaml:"model"`
	CorrectingModel string        `yaml:"correcting_model,omitempty"`
	BaseURL         string        `yaml:"base_url,omitempty"`
	APIVersion      string        `yaml:"api_version,omitempty"`
	Deployment      string        `yaml:"deployment,omitempty"`
	Organization    string        `yaml:"organization,omitempty"`
	APIKey          string        `yaml:"api_key,omitempty"`
	User            string        `yaml:"user,omitempty"`
	MaxTokens       int           `yaml:"max_tokens,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`

	Correct         bool   `yaml:"correct"`
	SplitCorrection bool   `yaml:"split_correction"`
	FlattenStrategy string `yaml:"flatten_strategy,omitempty"`

	PromptsFile string `yaml:"prompts_file,omitempty"`
	CatalogFile string `yaml:"catalog_file,omitempty"`

	Image       ImageSettings       `yaml:"image"`
	Usage       UsageSettings       `yaml:"usage"`
	VectorStore VectorStoreSettings `yaml:"vector_store"`
}

func NewSettings() *Settings {
	return &Settings{
		Provider: ProviderOpenAI,
		Model:    "gpt-3.5-turbo",
		Timeout:  60 * time.Second,
		Image: ImageSettings{
			MaxSize: 1000,
		},
		Usage: UsageSettings{
			Sink: SinkMemory,
			Addr: "localhost:6379",
		},
		VectorStore: VectorStoreSettings{
			Host:              "localhost:8080",
			Scheme:            "http",
			EmbeddingProvider: "openai",
		},
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// LoadFromFile reads YAML settings on top of the defaults.
func LoadFromFile(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read settings %s", path)
	}

	ret := NewSettings()
	if err := yaml.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrapf(err, "could not parse settings %s", path)
	}
	if err := ret.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid settings %s", path)
	}
	return ret, nil
}

func (s *Settings) Validate() error {
	known := false
	for _, p := range ProviderTypes {
		if s.Provider == p {
			known = true
			break
		}
	}
	if !known {
		return errors.Errorf("unknown provider %q", s.Provider)
	}
	if s.Model == "" && s.Provider != ProviderXinference {
		return errors.New("no model configured")
	}
	switch s.Usage.Sink {
	case SinkMemory, SinkSQLite, SinkRedis, "":
	default:
		return errors.Errorf("unknown usage sink %q", s.Usage.Sink)
	}
	return nil
}

// LoadPrompts reads a prompt bundle with the keys primary_model_prompts,
// correcting_agent_prompts, rag_agent_prompts and tool_prompts.
func LoadPrompts(path string) (engine.Prompts, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return engine.Prompts{}, errors.Wrapf(err, "could not read prompts %s", path)
	}

	ret := engine.Prompts{}
	if err := yaml.Unmarshal(b, &ret); err != nil {
		return engine.Prompts{}, errors.Wrapf(err, "could not parse prompts %s", path)
	}
	if ret.ToolPrompts == nil {
		ret.ToolPrompts = map[string]string{}
	}
	return ret, nil
}
