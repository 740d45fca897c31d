package di

import (
	"context"
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/config"
	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/factory"
	"github.com/mikey/llm-email-triage/internal/logging"
	"github.com/mikey/llm-email-triage/internal/utils"
)

// CLIFlags contains the command line flags shared by the command-line tools
type CLIFlags struct {
	ConfigFile string
	Provider   string
	Model      string
	Dataset    string
	Strict     bool
	Verbose    bool
	JSONLog    bool
}

// RegisterFlags binds the shared flags on fs
func RegisterFlags(fs *flag.FlagSet) *CLIFlags {
	flags := &CLIFlags{}

	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file")
	fs.StringVar(&flags.Provider, "provider", "", "Inference provider (openai, ollama, local, gemini, bedrock)")
	fs.StringVar(&flags.Model, "model", "", "Model name, or model directory for the local provider")
	fs.StringVar(&flags.Dataset, "dataset", "", "Path to the labeled dataset SQLite file")
	fs.BoolVar(&flags.Strict, "strict", false, "Treat labels outside inbox/fyi/junk as errors")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")

	return flags
}

// ParseFlags parses the shared flags from the process arguments
func ParseFlags() *CLIFlags {
	flags := RegisterFlags(flag.CommandLine)
	flag.Parse()
	return flags
}

// BuildCLIContainer creates the container for the command-line tools
func BuildCLIContainer(ctx context.Context, flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration: file and environment first, then flag overrides
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.New(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Info("Loaded configuration from file", zap.String("file", used))
		}
		applyFlags(cfg, flags)
		return cfg, cfg.Validate()
	}); err != nil {
		return nil, err
	}

	if err := provideShared(ctx, container); err != nil {
		return nil, err
	}

	// Register evaluator
	if err := container.Provide(func(f *factory.ClassificationFactory, classifier *core.ClassificationService, tp *utils.TextProcessor) *core.Evaluator {
		return f.CreateEvaluator(classifier, tp)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// applyFlags copies explicitly set flags over the loaded configuration
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	if flags.Provider != "" {
		cfg.Set("llm.provider", flags.Provider)
	}
	if flags.Model != "" {
		cfg.Set("llm.model", flags.Model)
	}
	if flags.Dataset != "" {
		cfg.Set("evaluation.dataset_path", flags.Dataset)
		cfg.Set("dataset.path", flags.Dataset)
	}
	if flags.Strict {
		cfg.Set("classification.strict_labels", true)
	}
	if flags.Verbose {
		cfg.Set("logging.level", "debug")
	}
}
