package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/config"
	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/utils"
)

// ClassificationFactory creates the text processor and the services built on it
type ClassificationFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewClassificationFactory creates a new classification factory
func NewClassificationFactory(cfg *config.Config, logger *zap.Logger) *ClassificationFactory {
	return &ClassificationFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTextProcessor creates a new TextProcessor
func (f *ClassificationFactory) CreateTextProcessor() *utils.TextProcessor {
	return utils.NewTextProcessor(f.logger)
}

// CreateClassificationService loads the task prompt and creates the classification service
func (f *ClassificationFactory) CreateClassificationService(textProcessor *utils.TextProcessor) (*core.ClassificationService, error) {
	prompt, err := f.cfg.LoadPrompt()
	if err != nil {
		return nil, err
	}

	classCfg := f.cfg.GetClassification()
	if classCfg.StrictLabels {
		f.logger.Info("Strict label validation enabled")
	}

	return core.NewClassificationService(
		prompt,
		classCfg.MaxContentLength,
		classCfg.StrictLabels,
		textProcessor,
		f.logger,
	), nil
}

// CreateEvaluator creates the evaluation harness
func (f *ClassificationFactory) CreateEvaluator(classifier *core.ClassificationService, textProcessor *utils.TextProcessor) *core.Evaluator {
	evalCfg := f.cfg.GetEvaluation()
	return core.NewEvaluator(classifier, textProcessor, f.logger, evalCfg.MaxBodyChars, evalCfg.PreviewChars)
}

// BatchPolicy returns the configured per-message failure policy for bulk fetches
func (f *ClassificationFactory) BatchPolicy() core.BatchPolicy {
	if f.cfg.GetString("triage.batch_policy") == "fail_fast" {
		return core.BatchFailFast
	}
	return core.BatchSkipFailed
}
