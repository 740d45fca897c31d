package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/config"
	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/di"
	"github.com/mikey/llm-email-triage/internal/factory"
)

func main() {
	details := flag.Bool("details", false, "Print every misclassified example after the run")
	flags := di.ParseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.BuildCLIContainer(ctx, flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	err = container.Invoke(func(
		cfg *config.Config,
		logger *zap.Logger,
		datasets *factory.DatasetFactory,
		evaluator *core.Evaluator,
		provider core.Provider,
	) error {
		defer logger.Sync()
		return run(ctx, cfg, datasets, evaluator, provider, *details)
	})
	if err != nil {
		fmt.Printf("\nError during evaluation: %v\n", err)
		os.Exit(1)
	}
}

func run(
	ctx context.Context,
	cfg *config.Config,
	datasets *factory.DatasetFactory,
	evaluator *core.Evaluator,
	provider core.Provider,
	details bool,
) error {
	store, err := datasets.CreateStore(cfg.GetEvaluation().DatasetPath)
	if err != nil {
		return err
	}
	defer store.Close()

	corpus, err := store.LoadExamples(ctx)
	if err != nil {
		return err
	}

	if closer, ok := provider.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	fmt.Printf("Evaluating %d examples...\n", len(corpus))
	evaluator.OnProgress(func(_ int, r core.ExampleResult) {
		switch {
		case r.Err != nil:
			fmt.Print("E")
		case r.Correct:
			fmt.Print("+")
		default:
			fmt.Print("-")
		}
	})

	result, err := evaluator.Evaluate(ctx, corpus, provider)
	if result != nil {
		printSummary(result, details)
	}
	return err
}

func printSummary(result *core.EvaluationResult, details bool) {
	fmt.Printf("\nEvaluation Results:\n")
	fmt.Printf("Provider: %s\n", result.Provider)
	fmt.Printf("Total examples: %d\n", result.Total)
	fmt.Printf("Correct predictions: %d\n", result.Correct)
	if result.Errored > 0 {
		fmt.Printf("Errored: %d\n", result.Errored)
	}
	fmt.Printf("Accuracy: %.2f%%\n", result.Accuracy*100)
	fmt.Printf("Total time: %.2f seconds\n", result.Duration.Seconds())

	if !details {
		return
	}
	for _, r := range result.Results {
		if r.Correct {
			continue
		}
		fmt.Printf("\nexpected=%s predicted=%s\n%s\n", r.Expected, r.Predicted, r.Preview)
		if r.Err != nil {
			fmt.Printf("error: %v\n", r.Err)
		}
	}
}
