package filter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/core"
)

// MailboxWatcher polls the newest messages of a mailbox and prints a triage
// report for each message it has not reported before
type MailboxWatcher struct {
	service  *core.TriageService
	out      io.Writer
	logger   *zap.Logger
	interval time.Duration
	limit    int
	maxPolls int
	verbose  bool

	mu     sync.Mutex
	seen   map[string]bool
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// NewMailboxWatcher creates a new mailbox watcher.
// maxPolls <= 0 polls until Stop is called.
func NewMailboxWatcher(
	service *core.TriageService,
	out io.Writer,
	logger *zap.Logger,
	interval time.Duration,
	limit int,
	maxPolls int,
	verbose bool,
) *MailboxWatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	if limit <= 0 {
		limit = 10
	}
	return &MailboxWatcher{
		service:  service,
		out:      out,
		logger:   logger,
		interval: interval,
		limit:    limit,
		maxPolls: maxPolls,
		verbose:  verbose,
		seen:     make(map[string]bool),
	}
}

// Poll triages the newest page of mail once and reports unseen messages.
// It returns how many messages were reported.
func (w *MailboxWatcher) Poll(ctx context.Context) (int, error) {
	w.logger.Debug("Checking mailbox for recent messages", zap.Int("limit", w.limit))

	results, err := w.service.TriageRecent(ctx, w.limit, 0)

	reported := 0
	for _, result := range results {
		w.mu.Lock()
		seen := w.seen[result.MessageID]
		w.seen[result.MessageID] = true
		w.mu.Unlock()
		if seen {
			continue
		}

		w.report(result)
		reported++
	}

	return reported, err
}

func (w *MailboxWatcher) report(result *core.TriageResult) {
	divider := strings.Repeat("-", 80)

	fmt.Fprintf(w.out, "From: %s %s\n", result.From.Name, result.From.Email)
	fmt.Fprintf(w.out, "Subject: %s\n", result.Subject)
	if w.verbose {
		fmt.Fprintf(w.out, "\n%s\n", result.Preview)
	}
	fmt.Fprintln(w.out, divider)

	source := result.ModelUsed
	if result.Cached {
		source += ", cached"
	}
	fmt.Fprintf(w.out, "Classifier tags this as: %s (%s)\n", result.Label, source)
	fmt.Fprintln(w.out, divider)

	w.logger.Info("Triaged message",
		zap.String("message_id", result.MessageID),
		zap.String("label", result.Label),
		zap.String("model", result.ModelUsed),
		zap.Bool("cached", result.Cached))
}

// Run polls at the configured interval until ctx is done or maxPolls is reached.
// Poll failures are logged; an unavailable backend ends the run.
func (w *MailboxWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		if _, err := w.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !core.IsRecoverable(err) {
				w.logger.Error("Mailbox watcher stopping", zap.Error(err))
				return err
			}
			w.logger.Warn("Mailbox poll failed", zap.Error(err))
		}

		if w.maxPolls > 0 && polls >= w.maxPolls {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Start runs the watcher in the background
func (w *MailboxWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return fmt.Errorf("mailbox watcher already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.runErr = nil

	w.logger.Info("Mailbox watcher starting",
		zap.Duration("interval", w.interval),
		zap.Int("limit", w.limit))

	go func() {
		err := w.Run(ctx)
		if err != nil {
			w.logger.Error("Mailbox watcher exited", zap.Error(err))
		}
		w.mu.Lock()
		w.runErr = err
		w.mu.Unlock()
		close(done)
	}()

	return nil
}

// Stop cancels the background run and waits for it to finish
func (w *MailboxWatcher) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Done is closed once the background run has finished
func (w *MailboxWatcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Err returns the error that ended the last background run
func (w *MailboxWatcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runErr
}
