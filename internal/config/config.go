package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EMAIL_TRIAGE_LLM_PROVIDER
const EnvPrefix = "EMAIL_TRIAGE"

// legacyEnv maps keys to the bare environment names earlier deployments used
var legacyEnv = map[string][]string{
	"jmap.token":     {"FASTMAIL_API_TOKEN"},
	"llm.provider":   {"LLM_PROVIDER"},
	"llm.model":      {"LLM_MODEL"},
	"openai.api_key": {"OPENAI_API_KEY"},
	"gemini.api_key": {"GEMINI_API_KEY"},
}

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance.
// An explicit path is read as-is; otherwise config.yaml is searched for.
func New(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/llm-email-triage/")
		v.AddConfigPath("$HOME/.llm-email-triage")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults and environment bindings
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	return v
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(append([]string{key, prefixed}, names...)...)
	}
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Mail source
	v.SetDefault("jmap.session_url", "https://api.fastmail.com/jmap/session")
	v.SetDefault("jmap.api_url", "")
	v.SetDefault("jmap.token", "")
	v.SetDefault("jmap.timeout", "30s")
	v.SetDefault("jmap.body_parts", []string{"1", "1.1"})

	// LLM provider defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model_name", "gpt-4o")
	v.SetDefault("openai.max_tokens", 10)

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model_name", "llama3.1")
	v.SetDefault("ollama.max_tokens", 10)
	v.SetDefault("ollama.timeout", "120s")

	v.SetDefault("local.model_dir", "./models/triage")
	v.SetDefault("local.max_tokens", 512)
	v.SetDefault("local.vocab_size", 20000)
	v.SetDefault("local.epochs", 3)
	v.SetDefault("local.batch_size", 8)
	v.SetDefault("local.learning_rate", 0.5)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 10)

	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.max_tokens", 10)

	// Classification
	v.SetDefault("classification.prompt_file", "")
	v.SetDefault("classification.max_content_length", 4000)
	v.SetDefault("classification.strict_labels", false)

	// Evaluation
	v.SetDefault("evaluation.dataset_path", "email_dataset.sqlite")
	v.SetDefault("evaluation.max_body_chars", 1000)
	v.SetDefault("evaluation.preview_chars", 100)

	// Live triage
	v.SetDefault("triage.batch_policy", "skip")

	v.SetDefault("watcher.interval", "60s")
	v.SetDefault("watcher.limit", 10)
	v.SetDefault("watcher.max_polls", 0)
	v.SetDefault("watcher.verbose", true)

	// Server defaults
	v.SetDefault("server.filter_type", "watch")
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.reject_junk", false)
	v.SetDefault("server.modify_subject", false)
	v.SetDefault("server.subject_prefix", "[JUNK] ")
	v.SetDefault("server.timeout", "30s")
	v.SetDefault("server.headers.label", "X-Triage-Label")
	v.SetDefault("server.headers.model", "X-Triage-Model")
	v.SetDefault("server.headers.error", "X-Triage-Error")
	v.SetDefault("server.relay.enabled", true)
	v.SetDefault("server.relay.host", "localhost")
	v.SetDefault("server.relay.port", 10026)

	// Dataset building
	v.SetDefault("dataset.path", "email_dataset.sqlite")
	v.SetDefault("dataset.rounds", 20)
	v.SetDefault("dataset.batch_size", 5)
	v.SetDefault("dataset.max_offset", 10000)
	v.SetDefault("dataset.preview_chars", 500)
	v.SetDefault("dataset.ignored_senders", []string{})

	v.SetDefault("finetune.output", "finetune_data.jsonl")
	v.SetDefault("finetune.max_body_chars", 1000)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_frequency", "1h")
	v.SetDefault("cache.sqlite_path", "/data/triage_cache.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/email_triage")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Set overrides a value, typically from a command-line flag
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}

// LoadPrompt returns the contents of classification.prompt_file, or "" when unset
func (c *Config) LoadPrompt() (string, error) {
	path := c.GetString("classification.prompt_file")
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file: %w", err)
	}
	return string(data), nil
}
