package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/adapters/openai"
	"github.com/mikey/llm-email-triage/internal/config"
	"github.com/mikey/llm-email-triage/internal/credential"
)

// OpenAIFactory creates OpenAI providers
type OpenAIFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewOpenAIFactory creates a new OpenAI factory
func NewOpenAIFactory(cfg *config.Config, logger *zap.Logger) *OpenAIFactory {
	return &OpenAIFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateProvider creates an OpenAI provider. A custom base URL may be keyless.
func (f *OpenAIFactory) CreateProvider() (*openai.OpenAIClient, error) {
	openaiCfg := f.cfg.GetOpenAI()

	apiKey := resolveSecret(openaiCfg.APIKey, credential.OpenAIKeyKey, f.logger)
	if apiKey == "" && openaiCfg.BaseURL == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	return openai.NewOpenAIClient(
		apiKey,
		openaiCfg.BaseURL,
		openaiCfg.ModelName,
		openaiCfg.MaxTokens,
		f.logger,
	), nil
}
