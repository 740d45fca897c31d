package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/adapters/localmodel"
	"github.com/mikey/llm-email-triage/internal/config"
	"github.com/mikey/llm-email-triage/internal/core"
)

// LocalFactory creates the local fine-tuned classifier
type LocalFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLocalFactory creates a new local classifier factory
func NewLocalFactory(cfg *config.Config, logger *zap.Logger) *LocalFactory {
	return &LocalFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier loads the classifier snapshot from the model directory, if one exists
func (f *LocalFactory) CreateClassifier() (*localmodel.Classifier, error) {
	localCfg := f.cfg.GetLocal()
	return localmodel.NewClassifier(localCfg.ModelDir, localCfg.MaxTokens, localCfg.VocabSize, f.logger)
}

// FitOptions returns the configured training options
func (f *LocalFactory) FitOptions() core.FitOptions {
	localCfg := f.cfg.GetLocal()
	return core.FitOptions{
		Epochs:       localCfg.Epochs,
		BatchSize:    localCfg.BatchSize,
		LearningRate: localCfg.LearningRate,
	}
}
