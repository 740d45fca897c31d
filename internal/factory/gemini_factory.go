package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/adapters/gemini"
	"github.com/mikey/llm-email-triage/internal/config"
	"github.com/mikey/llm-email-triage/internal/credential"
)

// GeminiFactory creates Gemini providers
type GeminiFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewGeminiFactory creates a new Gemini factory
func NewGeminiFactory(cfg *config.Config, logger *zap.Logger) *GeminiFactory {
	return &GeminiFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateProvider creates a Gemini provider
func (f *GeminiFactory) CreateProvider(ctx context.Context) (*gemini.GeminiClient, error) {
	geminiCfg := f.cfg.GetGemini()

	apiKey := resolveSecret(geminiCfg.APIKey, credential.GeminiKeyKey, f.logger)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	return gemini.NewGeminiClient(ctx, apiKey, geminiCfg.ModelName, geminiCfg.MaxTokens, f.logger)
}
