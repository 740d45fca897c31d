package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/utils"
)

type recordingProvider struct {
	prompt  string
	content string
	answer  string
}

func (p *recordingProvider) Classify(_ context.Context, content, taskPrompt string) (string, error) {
	p.content = content
	p.prompt = taskPrompt
	return p.answer, nil
}

func TestClassifyEmail_UsesDefaultPrompt(t *testing.T) {
	svc := NewClassificationService("", 0, false, utils.NewTextProcessor(nil), zap.NewNop())
	provider := &recordingProvider{answer: "Junk"}

	label, err := svc.ClassifyEmail(context.Background(), provider, "hello")
	require.NoError(t, err)

	assert.Equal(t, "Junk", label, "service returns the provider answer unchanged")
	assert.Equal(t, DefaultTaskPrompt, provider.prompt)
	assert.Equal(t, "hello", provider.content)
}

func TestClassifyEmail_TruncatesContent(t *testing.T) {
	svc := NewClassificationService("label it", 10, false, utils.NewTextProcessor(nil), zap.NewNop())
	provider := &recordingProvider{answer: "fyi"}

	_, err := svc.ClassifyEmail(context.Background(), provider, strings.Repeat("a", 50))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(provider.content, strings.Repeat("a", 10)+"\n"))
	assert.Equal(t, "label it", provider.prompt)
}

func TestClassifyEmail_StrictLabels(t *testing.T) {
	svc := NewClassificationService("", 0, true, utils.NewTextProcessor(nil), zap.NewNop())

	label, err := svc.ClassifyEmail(context.Background(), &recordingProvider{answer: " FYI "}, "x")
	require.NoError(t, err)
	assert.Equal(t, " FYI ", label)

	_, err = svc.ClassifyEmail(context.Background(), &recordingProvider{answer: "spam"}, "x")
	assert.ErrorIs(t, err, ErrContractDrift)
	assert.True(t, IsRecoverable(err))
}

type fakeSource struct {
	messages []*Message
	err      error
}

func (s *fakeSource) AccountID() string { return "acct" }

func (s *fakeSource) ListRecent(context.Context, int, int) ([]string, error) {
	ids := make([]string, 0, len(s.messages))
	for _, m := range s.messages {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *fakeSource) FetchDetail(_ context.Context, id string) (*Message, error) {
	for _, m := range s.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, ErrShape
}

func (s *fakeSource) FetchRecentBatch(context.Context, int, int, BatchPolicy) ([]*Message, error) {
	return s.messages, s.err
}

type mapCache struct {
	entries map[string]*CacheEntry
	sets    int
}

func (c *mapCache) Get(_ context.Context, id string) (*CacheEntry, error) {
	if e, ok := c.entries[id]; ok {
		return e, nil
	}
	return nil, errors.New("not found")
}

func (c *mapCache) Set(_ context.Context, e *CacheEntry) error {
	c.sets++
	c.entries[e.MessageID] = e
	return nil
}

func (c *mapCache) Delete(_ context.Context, id string) error {
	delete(c.entries, id)
	return nil
}

func (c *mapCache) Cleanup(context.Context) error { return nil }

func newTriage(source MailSource, provider Provider, cache CacheRepository, policy BatchPolicy) *TriageService {
	tp := utils.NewTextProcessor(nil)
	svc := NewClassificationService("", 0, false, tp, zap.NewNop())
	return NewTriageService(source, svc, provider, cache, zap.NewNop(), true, time.Hour, policy, tp)
}

func TestTriageMessage_NormalizesAndCaches(t *testing.T) {
	cache := &mapCache{entries: map[string]*CacheEntry{}}
	provider := &stubProvider{answers: []string{" Inbox\n"}}
	svc := newTriage(nil, provider, cache, BatchSkipFailed)

	msg := &Message{
		ID:      "m1",
		From:    []Address{{Name: "Alice", Email: "a@x.com"}},
		Subject: "Hi",
		Body:    "See you soon",
	}

	result, err := svc.TriageMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "inbox", result.Label)
	assert.Equal(t, "stub:test", result.ModelUsed)
	assert.False(t, result.Cached)
	assert.Equal(t, "From: Alice <a@x.com>\nSubject: Hi\n\nSee you soon", provider.calls[0])

	again, err := svc.TriageMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, "inbox", again.Label)
	assert.Len(t, provider.calls, 1)
	assert.Equal(t, 1, cache.sets)
}

func TestTriageRecent_SkipsFailedMessages(t *testing.T) {
	source := &fakeSource{messages: []*Message{{ID: "a"}, {ID: "b"}}}
	provider := &stubProvider{
		answers: []string{"", "junk"},
		errs:    []error{&StatusError{StatusCode: 502}},
	}
	svc := newTriage(source, provider, nil, BatchSkipFailed)

	results, err := svc.TriageRecent(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].MessageID)
	assert.Equal(t, "junk", results[0].Label)
}

func TestTriageRecent_FailFast(t *testing.T) {
	source := &fakeSource{messages: []*Message{{ID: "a"}, {ID: "b"}}}
	provider := &stubProvider{errs: []error{&StatusError{StatusCode: 502}}}
	svc := newTriage(source, provider, nil, BatchFailFast)

	results, err := svc.TriageRecent(context.Background(), 2, 0)
	require.Error(t, err)
	assert.Empty(t, results)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "a", stageErr.MessageID)
}

func TestTriageRecent_PartialFetchIsTolerated(t *testing.T) {
	source := &fakeSource{
		messages: []*Message{{ID: "a"}},
		err:      &StageError{Stage: "get", MessageID: "b", Err: ErrShape},
	}
	svc := newTriage(source, &stubProvider{answers: []string{"fyi"}}, nil, BatchSkipFailed)

	results, err := svc.TriageRecent(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestTriageRecent_PartialFetchWithFatalErrorFails(t *testing.T) {
	for name, fetchErr := range map[string]error{
		"unavailable": &StageError{Stage: "get", MessageID: "b", Err: ErrUnavailable},
		"cancelled":   &StageError{Stage: "get", MessageID: "b", Err: context.Canceled},
	} {
		t.Run(name, func(t *testing.T) {
			source := &fakeSource{messages: []*Message{{ID: "a"}}, err: fetchErr}
			provider := &stubProvider{answers: []string{"fyi"}}
			svc := newTriage(source, provider, nil, BatchSkipFailed)

			results, err := svc.TriageRecent(context.Background(), 2, 0)
			require.Error(t, err)
			assert.False(t, IsRecoverable(err))
			assert.Empty(t, results)
			assert.Empty(t, provider.calls)
		})
	}
}

func TestTriageRecent_NoSource(t *testing.T) {
	svc := newTriage(nil, &stubProvider{}, nil, BatchSkipFailed)
	_, err := svc.TriageRecent(context.Background(), 1, 0)
	assert.Error(t, err)
}
