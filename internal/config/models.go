package config

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Known values for enumerated settings
var (
	Providers     = []string{"openai", "ollama", "local", "gemini", "bedrock"}
	FilterTypes   = []string{"watch", "smtp"}
	CacheTypes    = []string{"memory", "sqlite", "mysql"}
	BatchPolicies = []string{"skip", "fail_fast"}
)

// JMAPConfig represents the mail source configuration
type JMAPConfig struct {
	SessionURL string
	APIURL     string
	Token      string
	Timeout    time.Duration
	BodyParts  []string
}

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
	// Model overrides the provider's own model setting when non-empty
	Model string
}

// OpenAIConfig represents the configuration for OpenAI and compatible endpoints
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	ModelName string
	MaxTokens int
}

// OllamaConfig represents the configuration for a local Ollama server
type OllamaConfig struct {
	BaseURL   string
	ModelName string
	MaxTokens int
	Timeout   time.Duration
}

// LocalConfig represents the configuration for the local fine-tuned classifier
type LocalConfig struct {
	ModelDir     string
	MaxTokens    int
	VocabSize    int
	Epochs       int
	BatchSize    int
	LearningRate float64
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey    string
	ModelName string
	MaxTokens int
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region    string
	ModelID   string
	MaxTokens int
}

// ClassificationConfig controls how content is presented to providers
type ClassificationConfig struct {
	PromptFile       string
	MaxContentLength int
	StrictLabels     bool
}

// EvaluationConfig controls the evaluation harness
type EvaluationConfig struct {
	DatasetPath  string
	MaxBodyChars int
	PreviewChars int
}

// WatcherConfig controls the mailbox watcher
type WatcherConfig struct {
	Interval time.Duration
	Limit    int
	MaxPolls int
	Verbose  bool
}

// ServerConfig controls the long-running triage filter
type ServerConfig struct {
	FilterType    string
	ListenAddress string
	RejectJunk    bool
	ModifySubject bool
	SubjectPrefix string
	Timeout       time.Duration
	LabelHeader   string
	ModelHeader   string
	ErrorHeader   string
	RelayEnabled  bool
	RelayHost     string
	RelayPort     int
}

// DatasetConfig controls dataset building and export
type DatasetConfig struct {
	Path                 string
	Rounds               int
	BatchSize            int
	MaxOffset            int
	PreviewChars         int
	IgnoredSenders       []string
	FinetuneOutput       string
	FinetuneMaxBodyChars int
}

// CacheConfig represents the classification cache configuration
type CacheConfig struct {
	Enabled          bool
	Type             string
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// GetJMAP returns the mail source configuration
func (c *Config) GetJMAP() JMAPConfig {
	return JMAPConfig{
		SessionURL: c.GetString("jmap.session_url"),
		APIURL:     c.GetString("jmap.api_url"),
		Token:      c.GetString("jmap.token"),
		Timeout:    c.v.GetDuration("jmap.timeout"),
		BodyParts:  c.GetStringSlice("jmap.body_parts"),
	}
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
		Model:    c.GetString("llm.model"),
	}
}

// modelOr returns the llm.model override, or fallback
func (c *Config) modelOr(fallback string) string {
	if m := c.GetString("llm.model"); m != "" {
		return m
	}
	return fallback
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:    c.GetString("openai.api_key"),
		BaseURL:   c.GetString("openai.base_url"),
		ModelName: c.modelOr(c.GetString("openai.model_name")),
		MaxTokens: c.GetInt("openai.max_tokens"),
	}
}

// GetOllama returns the Ollama configuration
func (c *Config) GetOllama() OllamaConfig {
	return OllamaConfig{
		BaseURL:   c.GetString("ollama.base_url"),
		ModelName: c.modelOr(c.GetString("ollama.model_name")),
		MaxTokens: c.GetInt("ollama.max_tokens"),
		Timeout:   c.v.GetDuration("ollama.timeout"),
	}
}

// GetLocal returns the local classifier configuration.
// llm.model, when set, names the model directory.
func (c *Config) GetLocal() LocalConfig {
	return LocalConfig{
		ModelDir:     c.modelOr(c.GetString("local.model_dir")),
		MaxTokens:    c.GetInt("local.max_tokens"),
		VocabSize:    c.GetInt("local.vocab_size"),
		Epochs:       c.GetInt("local.epochs"),
		BatchSize:    c.GetInt("local.batch_size"),
		LearningRate: c.GetFloat64("local.learning_rate"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:    c.GetString("gemini.api_key"),
		ModelName: c.modelOr(c.GetString("gemini.model_name")),
		MaxTokens: c.GetInt("gemini.max_tokens"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:    c.GetString("bedrock.region"),
		ModelID:   c.modelOr(c.GetString("bedrock.model_id")),
		MaxTokens: c.GetInt("bedrock.max_tokens"),
	}
}

// GetClassification returns the classification configuration
func (c *Config) GetClassification() ClassificationConfig {
	return ClassificationConfig{
		PromptFile:       c.GetString("classification.prompt_file"),
		MaxContentLength: c.GetInt("classification.max_content_length"),
		StrictLabels:     c.GetBool("classification.strict_labels"),
	}
}

// GetEvaluation returns the evaluation configuration
func (c *Config) GetEvaluation() EvaluationConfig {
	return EvaluationConfig{
		DatasetPath:  c.GetString("evaluation.dataset_path"),
		MaxBodyChars: c.GetInt("evaluation.max_body_chars"),
		PreviewChars: c.GetInt("evaluation.preview_chars"),
	}
}

// GetWatcher returns the mailbox watcher configuration
func (c *Config) GetWatcher() WatcherConfig {
	return WatcherConfig{
		Interval: c.v.GetDuration("watcher.interval"),
		Limit:    c.GetInt("watcher.limit"),
		MaxPolls: c.GetInt("watcher.max_polls"),
		Verbose:  c.GetBool("watcher.verbose"),
	}
}

// GetServer returns the triage filter configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:    c.GetString("server.filter_type"),
		ListenAddress: c.GetString("server.listen_address"),
		RejectJunk:    c.GetBool("server.reject_junk"),
		ModifySubject: c.GetBool("server.modify_subject"),
		SubjectPrefix: c.GetString("server.subject_prefix"),
		Timeout:       c.v.GetDuration("server.timeout"),
		LabelHeader:   c.GetString("server.headers.label"),
		ModelHeader:   c.GetString("server.headers.model"),
		ErrorHeader:   c.GetString("server.headers.error"),
		RelayEnabled:  c.GetBool("server.relay.enabled"),
		RelayHost:     c.GetString("server.relay.host"),
		RelayPort:     c.GetInt("server.relay.port"),
	}
}

// GetDataset returns the dataset configuration
func (c *Config) GetDataset() DatasetConfig {
	return DatasetConfig{
		Path:                 c.GetString("dataset.path"),
		Rounds:               c.GetInt("dataset.rounds"),
		BatchSize:            c.GetInt("dataset.batch_size"),
		MaxOffset:            c.GetInt("dataset.max_offset"),
		PreviewChars:         c.GetInt("dataset.preview_chars"),
		IgnoredSenders:       c.GetStringSlice("dataset.ignored_senders"),
		FinetuneOutput:       c.GetString("finetune.output"),
		FinetuneMaxBodyChars: c.GetInt("finetune.max_body_chars"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() CacheConfig {
	return CacheConfig{
		Enabled:          c.GetBool("cache.enabled"),
		Type:             c.GetString("cache.type"),
		TTL:              c.v.GetDuration("cache.ttl"),
		CleanupFrequency: c.v.GetDuration("cache.cleanup_frequency"),
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
	}
}

// Validate checks enumerated values, durations and bounds. All problems are reported together.
func (c *Config) Validate() error {
	var err error

	err = multierr.Append(err, oneOf("llm.provider", c.GetString("llm.provider"), Providers))
	err = multierr.Append(err, oneOf("server.filter_type", c.GetString("server.filter_type"), FilterTypes))
	err = multierr.Append(err, oneOf("cache.type", c.GetString("cache.type"), CacheTypes))
	err = multierr.Append(err, oneOf("triage.batch_policy", c.GetString("triage.batch_policy"), BatchPolicies))

	for _, key := range []string{"jmap.timeout", "ollama.timeout", "watcher.interval", "server.timeout", "cache.ttl", "cache.cleanup_frequency"} {
		d, derr := c.GetDuration(key)
		if derr != nil {
			err = multierr.Append(err, derr)
			continue
		}
		if d <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be positive", key))
		}
	}

	for _, key := range []string{"classification.max_content_length", "evaluation.max_body_chars", "evaluation.preview_chars", "dataset.max_offset"} {
		if c.GetInt(key) < 0 {
			err = multierr.Append(err, fmt.Errorf("%s must not be negative", key))
		}
	}
	if c.GetInt("dataset.batch_size") <= 0 {
		err = multierr.Append(err, fmt.Errorf("dataset.batch_size must be positive"))
	}

	if c.GetString("server.filter_type") == "smtp" && c.GetBool("server.relay.enabled") {
		if port := c.GetInt("server.relay.port"); port <= 0 || port > 65535 {
			err = multierr.Append(err, fmt.Errorf("server.relay.port %d is out of range", port))
		}
	}

	return err
}

func oneOf(key, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q, expected one of %v", key, value, allowed)
}
