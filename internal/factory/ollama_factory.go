package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/adapters/ollama"
	"github.com/mikey/llm-email-triage/internal/config"
)

// OllamaFactory creates Ollama providers
type OllamaFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewOllamaFactory creates a new Ollama factory
func NewOllamaFactory(cfg *config.Config, logger *zap.Logger) *OllamaFactory {
	return &OllamaFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateProvider creates an Ollama provider
func (f *OllamaFactory) CreateProvider() *ollama.OllamaClient {
	ollamaCfg := f.cfg.GetOllama()
	return ollama.NewOllamaClient(
		ollamaCfg.BaseURL,
		ollamaCfg.ModelName,
		ollamaCfg.MaxTokens,
		ollamaCfg.Timeout,
		f.logger,
	)
}
