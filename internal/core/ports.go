package core

import (
	"context"
)

// Provider produces a label for content given a task prompt
type Provider interface {
	// Classify returns the backend's answer, lowercased and trimmed
	Classify(ctx context.Context, content, taskPrompt string) (string, error)
}

// Identifiable is implemented by providers that can describe their backend
type Identifiable interface {
	Identity() ProviderIdentity
}

// FitOptions controls training of a trainable provider
type FitOptions struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
}

// Trainable is implemented by providers that learn from a labeled corpus
type Trainable interface {
	Fit(ctx context.Context, corpus []LabeledExample, opts FitOptions) error
}

// BatchPolicy decides what a bulk fetch does when one message fails
type BatchPolicy int

const (
	// BatchSkipFailed logs and skips failed messages, returning the rest
	BatchSkipFailed BatchPolicy = iota
	// BatchFailFast stops at the first failed message
	BatchFailFast
)

// MailSource lists and fetches messages from a remote mailbox
type MailSource interface {
	// AccountID returns the account resolved when the source was created
	AccountID() string

	// ListRecent returns message ids newest first, starting at offset
	ListRecent(ctx context.Context, limit, offset int) ([]string, error)

	// FetchDetail fetches one message with its normalized body
	FetchDetail(ctx context.Context, messageID string) (*Message, error)

	// FetchRecentBatch lists then fetches a page, oldest of the page first
	FetchRecentBatch(ctx context.Context, limit, offset int, policy BatchPolicy) ([]*Message, error)
}

// CorpusRepository supplies labeled examples for evaluation
type CorpusRepository interface {
	LoadExamples(ctx context.Context) ([]LabeledExample, error)
}

// DatasetRepository stores labeled examples
type DatasetRepository interface {
	CorpusRepository

	// Exists reports whether a message id has already been labeled
	Exists(ctx context.Context, messageID string) (bool, error)

	// SaveExample stores a newly labeled example
	SaveExample(ctx context.Context, example LabeledExample) error
}

// CacheRepository caches classification results by message id
type CacheRepository interface {
	// Get retrieves a cached entry for a message
	Get(ctx context.Context, messageID string) (*CacheEntry, error)

	// Set stores a cache entry
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes a cache entry
	Delete(ctx context.Context, messageID string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}
