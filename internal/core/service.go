package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/utils"
)

// ClassificationService pairs message content with the triage prompt and asks a provider for a label
type ClassificationService struct {
	prompt           string
	maxContentLength int
	strictLabels     bool
	textProcessor    *utils.TextProcessor
	logger           *zap.Logger
}

// NewClassificationService creates a new classification service.
// An empty prompt selects DefaultTaskPrompt.
func NewClassificationService(
	prompt string,
	maxContentLength int,
	strictLabels bool,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
) *ClassificationService {
	if prompt == "" {
		prompt = DefaultTaskPrompt
	}
	return &ClassificationService{
		prompt:           prompt,
		maxContentLength: maxContentLength,
		strictLabels:     strictLabels,
		textProcessor:    textProcessor,
		logger:           logger,
	}
}

// Prompt returns the task prompt in use
func (s *ClassificationService) Prompt() string {
	return s.prompt
}

// NewRequest builds the request for content, bounding its length
func (s *ClassificationService) NewRequest(content string) ClassificationRequest {
	return ClassificationRequest{
		Content: s.textProcessor.ProcessText(content, s.maxContentLength),
		Prompt:  s.prompt,
	}
}

// ClassifyEmail returns the provider's label for content.
// The answer is not checked against the label set unless strict mode is on.
func (s *ClassificationService) ClassifyEmail(ctx context.Context, provider Provider, content string) (string, error) {
	req := s.NewRequest(content)

	label, err := provider.Classify(ctx, req.Content, req.Prompt)
	if err != nil {
		return "", err
	}

	if s.strictLabels {
		if _, ok := ParseLabel(label); !ok {
			return label, fmt.Errorf("%w: %q", ErrContractDrift, label)
		}
	}

	return label, nil
}

// TriageService classifies live mail, reusing cached labels per message id
type TriageService struct {
	source        MailSource
	classifier    *ClassificationService
	provider      Provider
	cache         CacheRepository
	logger        *zap.Logger
	cacheEnabled  bool
	cacheTTL      time.Duration
	batchPolicy   BatchPolicy
	textProcessor *utils.TextProcessor
}

// NewTriageService creates a new triage service. source may be nil when
// messages only arrive through TriageMessage.
func NewTriageService(
	source MailSource,
	classifier *ClassificationService,
	provider Provider,
	cache CacheRepository,
	logger *zap.Logger,
	cacheEnabled bool,
	cacheTTL time.Duration,
	batchPolicy BatchPolicy,
	textProcessor *utils.TextProcessor,
) *TriageService {
	return &TriageService{
		source:        source,
		classifier:    classifier,
		provider:      provider,
		cache:         cache,
		logger:        logger,
		cacheEnabled:  cacheEnabled && cache != nil,
		cacheTTL:      cacheTTL,
		batchPolicy:   batchPolicy,
		textProcessor: textProcessor,
	}
}

// TriageMessage classifies a single message
func (s *TriageService) TriageMessage(ctx context.Context, msg *Message) (*TriageResult, error) {
	result := &TriageResult{
		MessageID: msg.ID,
		From:      msg.Sender(),
		Subject:   msg.Subject,
		Preview:   s.textProcessor.Preview(msg.Body, 1000),
	}

	if s.cacheEnabled && msg.ID != "" {
		if entry, err := s.cache.Get(ctx, msg.ID); err == nil {
			s.logger.Debug("Cache hit for message", zap.String("message_id", msg.ID))
			result.Label = entry.Label
			result.ModelUsed = entry.ModelUsed
			result.ClassifiedAt = entry.ClassifiedAt
			result.Cached = true
			return result, nil
		}
	}

	content := FormatContent(msg.Sender(), msg.Subject, msg.Body)
	label, err := s.classifier.ClassifyEmail(ctx, s.provider, content)
	if err != nil {
		return nil, &StageError{Stage: "classify", MessageID: msg.ID, Err: err}
	}

	result.Label = NormalizeLabel(label)
	result.ClassifiedAt = time.Now()
	if ident, ok := s.provider.(Identifiable); ok {
		result.ModelUsed = ident.Identity().String()
	}

	if s.cacheEnabled && msg.ID != "" {
		entry := &CacheEntry{
			MessageID:    msg.ID,
			Label:        result.Label,
			ModelUsed:    result.ModelUsed,
			ClassifiedAt: result.ClassifiedAt,
			ExpiresAt:    result.ClassifiedAt.Add(s.cacheTTL),
		}
		if err := s.cache.Set(ctx, entry); err != nil {
			s.logger.Error("Failed to update cache", zap.Error(err), zap.String("message_id", msg.ID))
		}
	}

	return result, nil
}

// TriageRecent fetches a page of recent mail and classifies each message.
// Classification failures follow the service's batch policy.
func (s *TriageService) TriageRecent(ctx context.Context, limit, offset int) ([]*TriageResult, error) {
	if s.source == nil {
		return nil, errors.New("triage service has no mail source")
	}

	messages, fetchErr := s.source.FetchRecentBatch(ctx, limit, offset, s.batchPolicy)
	if fetchErr != nil {
		if s.batchPolicy == BatchFailFast || len(messages) == 0 || !IsRecoverable(fetchErr) {
			return nil, fetchErr
		}
		s.logger.Warn("Some messages could not be fetched",
			zap.Int("fetched", len(messages)),
			zap.Error(fetchErr))
	}

	results := make([]*TriageResult, 0, len(messages))
	for _, msg := range messages {
		result, err := s.TriageMessage(ctx, msg)
		if err != nil {
			if s.batchPolicy == BatchFailFast || !IsRecoverable(err) {
				return results, err
			}
			s.logger.Warn("Skipping message that failed classification",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			continue
		}
		results = append(results, result)
	}

	return results, nil
}
