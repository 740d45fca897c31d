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
	"github.com/mikey/llm-email-triage/internal/dataset"
	"github.com/mikey/llm-email-triage/internal/di"
	"github.com/mikey/llm-email-triage/internal/factory"
	"github.com/mikey/llm-email-triage/internal/utils"
)

func main() {
	rounds := flag.Int("rounds", -1, "Number of sampling rounds (0 runs until interrupted, default from config)")
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
		sources *factory.SourceFactory,
		datasets *factory.DatasetFactory,
		textProcessor *utils.TextProcessor,
	) error {
		defer logger.Sync()

		dsCfg := cfg.GetDataset()
		if *rounds >= 0 {
			dsCfg.Rounds = *rounds
		}

		store, err := datasets.CreateStore(dsCfg.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		source, err := sources.CreateMailSource(ctx)
		if err != nil {
			return err
		}

		builder := dataset.NewBuilder(
			source,
			store,
			dataset.NewPromptLabeler(os.Stdin, os.Stdout, dsCfg.PreviewChars, textProcessor),
			datasets.CreateSenderFilter(),
			dataset.Options{Rounds: dsCfg.Rounds, BatchSize: dsCfg.BatchSize, MaxOffset: dsCfg.MaxOffset},
			logger,
		)

		stats, err := builder.Run(ctx)
		fmt.Printf("\nRounds: %d  Fetched: %d  Labeled: %d  Skipped: %d  Already labeled: %d  Ignored: %d  Errors: %d\n",
			stats.Rounds, stats.Fetched, stats.Labeled, stats.Skipped, stats.Duplicates, stats.Ignored, stats.Errors)

		if counts, cerr := store.Count(context.Background()); cerr == nil {
			fmt.Printf("Dataset now holds: %v\n", counts)
		}
		return err
	})
	if err != nil {
		fmt.Printf("Error building dataset: %v\n", err)
		os.Exit(1)
	}
}
