package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/utils"
)

// ProgressFunc is called after each example is scored
type ProgressFunc func(index int, result ExampleResult)

// Evaluator replays a labeled corpus through the classification service
type Evaluator struct {
	classifier    *ClassificationService
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
	maxBodyChars  int
	previewChars  int
	progress      ProgressFunc
}

// NewEvaluator creates a new evaluator. maxBodyChars bounds the body excerpt
// sent to the provider and previewChars bounds the stored preview.
func NewEvaluator(
	classifier *ClassificationService,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
	maxBodyChars int,
	previewChars int,
) *Evaluator {
	return &Evaluator{
		classifier:    classifier,
		textProcessor: textProcessor,
		logger:        logger,
		maxBodyChars:  maxBodyChars,
		previewChars:  previewChars,
	}
}

// OnProgress registers a callback invoked after every example
func (e *Evaluator) OnProgress(fn ProgressFunc) {
	e.progress = fn
}

// ExampleContent rebuilds the classification input for a labeled example
func (e *Evaluator) ExampleContent(example LabeledExample) string {
	sender := Address{Name: example.SenderName, Email: example.SenderEmail}
	body := e.textProcessor.Truncate(example.Body, e.maxBodyChars)
	return FormatContent(sender, example.Subject, body)
}

// Evaluate classifies every example in corpus and scores the predictions.
// Recoverable provider failures are recorded against the example and the run
// continues. A fatal failure stops the run; the partial result is returned
// alongside the error.
func (e *Evaluator) Evaluate(ctx context.Context, corpus []LabeledExample, provider Provider) (*EvaluationResult, error) {
	result := &EvaluationResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Results:   make([]ExampleResult, 0, len(corpus)),
	}
	if ident, ok := provider.(Identifiable); ok {
		result.Provider = ident.Identity()
	}

	e.logger.Info("Starting evaluation",
		zap.String("run_id", result.RunID),
		zap.String("provider", result.Provider.String()),
		zap.Int("examples", len(corpus)))

	for i, example := range corpus {
		if err := ctx.Err(); err != nil {
			return e.finish(result), err
		}

		content := e.ExampleContent(example)
		expected := NormalizeLabel(example.Label)
		exampleResult := ExampleResult{
			Preview:  e.textProcessor.Preview(content, e.previewChars),
			Expected: expected,
		}

		predicted, err := e.classifier.ClassifyEmail(ctx, provider, content)
		if err != nil {
			stageErr := &StageError{Stage: "classify", MessageID: example.MessageID, Err: err}
			if ctx.Err() != nil || !IsRecoverable(err) {
				e.logger.Error("Evaluation aborted", zap.Error(stageErr), zap.Int("index", i))
				return e.finish(result), stageErr
			}

			e.logger.Warn("Example failed", zap.Error(stageErr), zap.Int("index", i))
			exampleResult.Predicted = NormalizeLabel(predicted)
			exampleResult.Err = stageErr
			result.Errored++
		} else {
			exampleResult.Predicted = NormalizeLabel(predicted)
			exampleResult.Correct = exampleResult.Predicted == expected
		}

		result.Results = append(result.Results, exampleResult)
		result.Total++
		if exampleResult.Correct {
			result.Correct++
		}

		if e.progress != nil {
			e.progress(i, exampleResult)
		}
	}

	return e.finish(result), nil
}

func (e *Evaluator) finish(result *EvaluationResult) *EvaluationResult {
	result.Duration = time.Since(result.StartedAt)
	if result.Total > 0 {
		result.Accuracy = float64(result.Correct) / float64(result.Total)
	}

	e.logger.Info("Evaluation finished",
		zap.String("run_id", result.RunID),
		zap.Int("total", result.Total),
		zap.Int("correct", result.Correct),
		zap.Int("errored", result.Errored),
		zap.Float64("accuracy", result.Accuracy),
		zap.Duration("duration", result.Duration))

	return result
}
