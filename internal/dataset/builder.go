// Package dataset samples live mail for human labeling and exports labeled corpora
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/core"
)

// ErrStop is returned by a Labeler when the operator ends the session
var ErrStop = errors.New("labeling stopped")

// Labeler asks for a label for one message.
// ok is false when the message should be skipped.
type Labeler interface {
	Label(ctx context.Context, msg *core.Message) (label core.Label, ok bool, err error)
}

// SenderFilter reports senders whose mail never enters the dataset
type SenderFilter interface {
	IsIgnored(from string) bool
}

// Options bounds a sampling session
type Options struct {
	// Rounds is the number of fetch rounds; zero or less runs until the context ends
	Rounds    int
	BatchSize int
	// MaxOffset is the largest random page offset sampled
	MaxOffset int
}

// DefaultOptions samples five messages per round from the newest ten thousand, for twenty rounds
var DefaultOptions = Options{Rounds: 20, BatchSize: 5, MaxOffset: 10000}

// Stats counts what happened during a session
type Stats struct {
	Rounds     int
	Fetched    int
	Labeled    int
	Skipped    int
	Duplicates int
	Ignored    int
	Errors     int
}

// Builder fetches random pages of mail and stores the labels an operator assigns
type Builder struct {
	source  core.MailSource
	store   core.DatasetRepository
	labeler Labeler
	senders SenderFilter
	opts    Options
	rng     *rand.Rand
	logger  *zap.Logger
}

// NewBuilder creates a dataset builder. senders may be nil.
func NewBuilder(
	source core.MailSource,
	store core.DatasetRepository,
	labeler Labeler,
	senders SenderFilter,
	opts Options,
	logger *zap.Logger,
) *Builder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions.BatchSize
	}
	if opts.MaxOffset < 0 {
		opts.MaxOffset = 0
	}
	return &Builder{
		source:  source,
		store:   store,
		labeler: labeler,
		senders: senders,
		opts:    opts,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:  logger,
	}
}

// WithSeed makes offset sampling reproducible
func (b *Builder) WithSeed(seed uint64) *Builder {
	b.rng = rand.New(rand.NewPCG(seed, seed))
	return b
}

// Run performs sampling rounds until the round bound, context cancellation,
// or ErrStop from the labeler. Stopping is not an error.
func (b *Builder) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	for b.opts.Rounds <= 0 || stats.Rounds < b.opts.Rounds {
		if err := ctx.Err(); err != nil {
			return stats, nil
		}

		offset := b.rng.IntN(b.opts.MaxOffset + 1)
		b.logger.Info("Fetching sample batch",
			zap.Int("round", stats.Rounds+1),
			zap.Int("offset", offset),
			zap.Int("limit", b.opts.BatchSize))

		messages, err := b.source.FetchRecentBatch(ctx, b.opts.BatchSize, offset, core.BatchSkipFailed)
		stats.Rounds++
		if err != nil {
			if ctx.Err() != nil {
				return stats, nil
			}
			if !core.IsRecoverable(err) {
				return stats, fmt.Errorf("fetching sample batch: %w", err)
			}
			stats.Errors++
			b.logger.Warn("Sample batch incomplete", zap.Error(err))
		}
		stats.Fetched += len(messages)

		for _, msg := range messages {
			if err := b.process(ctx, msg, &stats); err != nil {
				if errors.Is(err, ErrStop) || ctx.Err() != nil {
					b.logger.Info("Stopping dataset collection")
					return stats, nil
				}
				stats.Errors++
				b.logger.Error("Failed to process message",
					zap.String("message_id", msg.ID),
					zap.Error(err))
			}
		}
	}

	return stats, nil
}

func (b *Builder) process(ctx context.Context, msg *core.Message, stats *Stats) error {
	exists, err := b.store.Exists(ctx, msg.ID)
	if err != nil {
		return err
	}
	if exists {
		stats.Duplicates++
		b.logger.Debug("Message already labeled", zap.String("message_id", msg.ID))
		return nil
	}

	sender := msg.Sender()
	if b.senders != nil && b.senders.IsIgnored(sender.Email) {
		stats.Ignored++
		return nil
	}

	label, ok, err := b.labeler.Label(ctx, msg)
	if err != nil {
		return err
	}
	if !ok {
		stats.Skipped++
		return nil
	}

	err = b.store.SaveExample(ctx, core.LabeledExample{
		MessageID:   msg.ID,
		SenderName:  sender.Name,
		SenderEmail: sender.Email,
		Subject:     msg.Subject,
		Body:        msg.Body,
		Label:       string(label),
	})
	if err != nil {
		return fmt.Errorf("saving labeled message: %w", err)
	}

	stats.Labeled++
	b.logger.Debug("Saved labeled message",
		zap.String("message_id", msg.ID),
		zap.String("label", string(label)))
	return nil
}
