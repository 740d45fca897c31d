package di

import (
	"context"
	"os"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/config"
	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/factory"
	"github.com/mikey/llm-email-triage/internal/logging"
	"github.com/mikey/llm-email-triage/internal/ports"
	"github.com/mikey/llm-email-triage/internal/utils"
)

// BuildContainer creates the container for the long-running triage daemon
func BuildContainer(ctx context.Context, configFile string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		cfg, err := config.New(configFile)
		if err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideShared(ctx, container); err != nil {
		return nil, err
	}

	// Register cache repository
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.CacheFactory) (core.CacheRepository, error) {
		return f.CreateCacheRepository(ctx)
	}); err != nil {
		return nil, err
	}

	// Register mail source. The SMTP filter receives mail directly and needs none.
	if err := container.Provide(func(cfg *config.Config, f *factory.SourceFactory) (core.MailSource, error) {
		if cfg.GetString("server.filter_type") == "smtp" {
			return nil, nil
		}
		return f.CreateMailSource(ctx)
	}); err != nil {
		return nil, err
	}

	// Register triage service
	if err := container.Provide(func(
		source core.MailSource,
		classifier *core.ClassificationService,
		provider core.Provider,
		cache core.CacheRepository,
		logger *zap.Logger,
		cacheFactory *factory.CacheFactory,
		classFactory *factory.ClassificationFactory,
		textProcessor *utils.TextProcessor,
	) *core.TriageService {
		return core.NewTriageService(
			source,
			classifier,
			provider,
			cache,
			logger,
			cacheFactory.IsCacheEnabled(),
			cacheFactory.GetCacheTTL(),
			classFactory.BatchPolicy(),
			textProcessor,
		)
	}); err != nil {
		return nil, err
	}

	// Register triage filter
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger, service *core.TriageService) *factory.FilterFactory {
		return factory.NewFilterFactory(cfg, logger, service, os.Stdout)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.FilterFactory) (ports.TriageFilter, error) {
		return f.CreateTriageFilter()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideShared registers the factories and services every entry point uses.
// Constructors only run when something asks for their result.
func provideShared(ctx context.Context, container *dig.Container) error {
	constructors := []any{
		factory.NewLLMFactory,
		factory.NewClassificationFactory,
		factory.NewSourceFactory,
		factory.NewDatasetFactory,
		factory.NewLocalFactory,
		func(f *factory.ClassificationFactory) *utils.TextProcessor {
			return f.CreateTextProcessor()
		},
		func(f *factory.ClassificationFactory, tp *utils.TextProcessor) (*core.ClassificationService, error) {
			return f.CreateClassificationService(tp)
		},
		func(f *factory.LLMFactory) (core.Provider, error) {
			return f.CreateProvider(ctx)
		},
	}

	for _, constructor := range constructors {
		if err := container.Provide(constructor); err != nil {
			return err
		}
	}
	return nil
}
