package cmds

import (
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/parley/pkg/settings"
)

// AddSettingsFlags registers the persistent flags that overlay the settings.
func AddSettingsFlags(flags *pflag.FlagSet) {
	flags.String("settings", "", "YAML settings file")
	flags.String("provider", "openai", "Provider (openai, azure, anthropic, ollama, xinference, router, offline)")
	flags.String("model", "gpt-3.5-turbo", "Model name")
	flags.String("correcting-model", "", "Model of the correcting agent (default: --model)")
	flags.String("base-url", "", "Provider base URL")
	flags.String("api-version", "", "API version (azure, anthropic)")
	flags.String("deployment", "", "Azure deployment")
	flags.String("api-key", "", "API key")
	flags.String("user", "", "User the usage is accounted to")
	flags.Bool("correct", false, "Review every answer with the correcting agent")
	flags.Bool("split-correction", false, "Correct the answer sentence by sentence")
	flags.String("flatten-strategy", "", "History flattening for backends without system role (collapse, fold-system)")
	flags.String("prompts", "", "Prompts YAML file")
	flags.String("catalog", "", "Model catalog YAML file")
	flags.Duration("timeout", 60*time.Second, "Provider request timeout")
	flags.String("usage-sink", "memory", "Usage sink (memory, sqlite, redis)")
	flags.String("usage-dsn", "", "SQLite database for the usage sink")
	flags.String("redis-addr", "localhost:6379", "Redis address for the usage sink")
	flags.String("weaviate-host", "localhost:8080", "Weaviate host")
	flags.String("weaviate-scheme", "http", "Weaviate scheme")
	flags.String("embedding-provider", "openai", "Embedding provider (openai, ollama)")
	flags.String("embedding-model", "", "Embedding model")
}

var providerKeyEnv = map[settings.ProviderType]string{
	settings.ProviderOpenAI:    "OPENAI_API_KEY",
	settings.ProviderAzure:     "AZURE_OPENAI_API_KEY",
	settings.ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// loadSettings reads --settings, then overlays everything viper knows about
// from flags, PARLEY_* variables and the config file.
func loadSettings() (*settings.Settings, error) {
	s := settings.NewSettings()
	if path := viper.GetString("settings"); path != "" {
		var err error
		s, err = settings.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	}

	setString := func(key string, target *string) {
		if viper.IsSet(key) {
			*target = viper.GetString(key)
		}
	}
	setBool := func(key string, target *bool) {
		if viper.IsSet(key) {
			*target = viper.GetBool(key)
		}
	}

	if viper.IsSet("provider") {
		s.Provider = settings.ProviderType(viper.GetString("provider"))
	}
	setString("model", &s.Model)
	setString("correcting-model", &s.CorrectingModel)
	setString("base-url", &s.BaseURL)
	setString("api-version", &s.APIVersion)
	setString("deployment", &s.Deployment)
	setString("api-key", &s.APIKey)
	setString("user", &s.User)
	setBool("correct", &s.Correct)
	setBool("split-correction", &s.SplitCorrection)
	setString("flatten-strategy", &s.FlattenStrategy)
	setString("prompts", &s.PromptsFile)
	setString("catalog", &s.CatalogFile)
	if viper.IsSet("timeout") {
		s.Timeout = viper.GetDuration("timeout")
	}
	if viper.IsSet("usage-sink") {
		s.Usage.Sink = settings.SinkType(viper.GetString("usage-sink"))
	}
	setString("usage-dsn", &s.Usage.DSN)
	setString("redis-addr", &s.Usage.Addr)
	setString("weaviate-host", &s.VectorStore.Host)
	setString("weaviate-scheme", &s.VectorStore.Scheme)
	setString("embedding-provider", &s.VectorStore.EmbeddingProvider)
	setString("embedding-model", &s.VectorStore.EmbeddingModel)

	if s.APIKey == "" {
		if env, ok := providerKeyEnv[s.Provider]; ok {
			s.APIKey = os.Getenv(env)
		}
	}

	return s, s.Validate()
}
