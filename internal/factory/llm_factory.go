package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/config"
	"github.com/mikey/llm-email-triage/internal/core"
)

// LLMFactory creates the configured inference provider
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateProvider creates a provider for llm.provider
func (f *LLMFactory) CreateProvider(ctx context.Context) (core.Provider, error) {
	llmConfig := f.cfg.GetLLM()

	var (
		provider core.Provider
		err      error
	)
	switch llmConfig.Provider {
	case "openai":
		provider, err = NewOpenAIFactory(f.cfg, f.logger).CreateProvider()
	case "ollama":
		provider = NewOllamaFactory(f.cfg, f.logger).CreateProvider()
	case "local":
		provider, err = NewLocalFactory(f.cfg, f.logger).CreateClassifier()
	case "gemini":
		provider, err = NewGeminiFactory(f.cfg, f.logger).CreateProvider(ctx)
	case "bedrock":
		provider, err = NewBedrockFactory(f.cfg, f.logger).CreateProvider(ctx)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
	if err != nil {
		return nil, err
	}

	if ident, ok := provider.(core.Identifiable); ok {
		f.logger.Info("Using inference provider", zap.String("provider", ident.Identity().String()))
	}
	return provider, nil
}
