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
	"github.com/mikey/llm-email-triage/internal/dataset"
	"github.com/mikey/llm-email-triage/internal/di"
	"github.com/mikey/llm-email-triage/internal/factory"
	"github.com/mikey/llm-email-triage/internal/utils"
)

func main() {
	export := flag.Bool("export", false, "Write a chat fine-tuning JSONL file instead of training the local classifier")
	output := flag.String("output", "", "JSONL output path (default from finetune.output)")
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
		locals *factory.LocalFactory,
		classifier *core.ClassificationService,
		textProcessor *utils.TextProcessor,
	) error {
		defer logger.Sync()

		store, err := datasets.CreateStore(cfg.GetDataset().Path)
		if err != nil {
			return err
		}
		defer store.Close()

		corpus, err := store.LoadExamples(ctx)
		if err != nil {
			return err
		}

		if *export {
			path := *output
			if path == "" {
				path = cfg.GetDataset().FinetuneOutput
			}
			return exportJSONL(ctx, path, corpus, classifier.Prompt(), cfg.GetDataset().FinetuneMaxBodyChars, textProcessor)
		}

		model, err := locals.CreateClassifier()
		if err != nil {
			return err
		}
		fmt.Printf("Training local classifier on %d examples...\n", len(corpus))
		if err := model.Fit(ctx, corpus, locals.FitOptions()); err != nil {
			return err
		}
		fmt.Printf("Saved model to %s\n", cfg.GetLocal().ModelDir)
		return nil
	})
	if err != nil {
		fmt.Printf("Fine-tuning failed: %v\n", err)
		os.Exit(1)
	}
}

func exportJSONL(ctx context.Context, path string, corpus []core.LabeledExample, prompt string, maxBodyChars int, tp *utils.TextProcessor) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	n, err := dataset.NewExporter(prompt, maxBodyChars, tp).Export(ctx, f, corpus)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	fmt.Printf("Created fine-tuning dataset at %s (%d examples)\n", path, n)
	return nil
}
