package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/adapters/dataset"
	"github.com/mikey/llm-email-triage/internal/config"
	"github.com/mikey/llm-email-triage/internal/senderfilter"
)

// DatasetFactory creates the labeled dataset store
type DatasetFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewDatasetFactory creates a new dataset factory
func NewDatasetFactory(cfg *config.Config, logger *zap.Logger) *DatasetFactory {
	return &DatasetFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore opens the SQLite store at path
func (f *DatasetFactory) CreateStore(path string) (*dataset.SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create dataset directory: %w", err)
		}
	}
	return dataset.NewSQLiteStore(path, f.logger)
}

// CreateSenderFilter creates the ignore list for dataset building
func (f *DatasetFactory) CreateSenderFilter() *senderfilter.Checker {
	return senderfilter.NewChecker(f.cfg.GetDataset().IgnoredSenders, f.logger)
}
