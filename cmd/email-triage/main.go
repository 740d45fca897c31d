package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/credential"
	"github.com/mikey/llm-email-triage/internal/di"
	"github.com/mikey/llm-email-triage/internal/ports"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	storeToken := flag.Bool("store-token", false, "Read a JMAP API token from stdin, save it in the OS keyring and exit")
	flag.Parse()

	if *storeToken {
		if err := saveToken(); err != nil {
			fmt.Printf("Failed to store token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Token stored in keyring")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Build the dependency injection container
	container, err := di.BuildContainer(ctx, *configFile)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(func(
		logger *zap.Logger,
		triageFilter ports.TriageFilter,
		provider core.Provider,
		cacheRepo core.CacheRepository,
	) error {
		return run(ctx, logger, triageFilter, provider, cacheRepo)
	}); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

func saveToken() error {
	fmt.Print("JMAP API token: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return err
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return fmt.Errorf("empty token")
	}
	return credential.Set(credential.JMAPTokenKey, token)
}

// run starts the filter and blocks until ctx is cancelled or the filter exits
func run(
	ctx context.Context,
	logger *zap.Logger,
	triageFilter ports.TriageFilter,
	provider core.Provider,
	cacheRepo core.CacheRepository,
) error {
	defer logger.Sync()

	if err := triageFilter.Start(); err != nil {
		logger.Error("Failed to start filter", zap.Error(err))
		return err
	}

	var exitErr error
	select {
	case <-ctx.Done():
	case <-triageFilter.Done():
		if exitErr = triageFilter.Err(); exitErr != nil {
			logger.Error("Filter exited", zap.Error(exitErr))
		}
	}
	logger.Info("Shutting down...")

	if err := triageFilter.Stop(); err != nil {
		logger.Error("Failed to stop filter", zap.Error(err))
	}

	if closer, ok := provider.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close provider", zap.Error(err))
		}
	}

	if stopper, ok := cacheRepo.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	logger.Info("Shutdown complete")
	return exitErr
}
