package filter

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/utils"
)

type stubSource struct {
	mu       sync.Mutex
	messages []*core.Message
	err      error
	calls    int
}

func (s *stubSource) AccountID() string { return "acct" }

func (s *stubSource) ListRecent(ctx context.Context, limit, offset int) ([]string, error) {
	return nil, nil
}

func (s *stubSource) FetchDetail(ctx context.Context, id string) (*core.Message, error) {
	return nil, core.ErrShape
}

func (s *stubSource) FetchRecentBatch(ctx context.Context, limit, offset int, policy core.BatchPolicy) ([]*core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.messages, s.err
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubProvider struct {
	answer string
}

func (p stubProvider) Classify(ctx context.Context, content, prompt string) (string, error) {
	return p.answer, nil
}

func (p stubProvider) Identity() core.ProviderIdentity {
	return core.ProviderIdentity{Kind: "stub", Model: "v1"}
}

func newTestTriageService(source core.MailSource, answer string) *core.TriageService {
	tp := utils.NewTextProcessor(nil)
	classifier := core.NewClassificationService("", 4000, false, tp, zap.NewNop())
	return core.NewTriageService(source, classifier, stubProvider{answer: answer}, nil, zap.NewNop(),
		false, time.Hour, core.BatchSkipFailed, tp)
}

// syncBuffer guards a buffer written by the background watcher
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMailboxWatcher_Poll(t *testing.T) {
	source := &stubSource{messages: []*core.Message{
		{ID: "M1", From: []core.Address{{Name: "Alice", Email: "alice@example.com"}}, Subject: "Lunch?", Body: "Are you free"},
	}}
	var out bytes.Buffer
	w := NewMailboxWatcher(newTestTriageService(source, " Inbox\n"), &out, zap.NewNop(), time.Second, 10, 0, true)

	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	printed := out.String()
	assert.Contains(t, printed, "From: Alice alice@example.com\n")
	assert.Contains(t, printed, "Subject: Lunch?\n")
	assert.Contains(t, printed, "Are you free")
	assert.Contains(t, printed, "Classifier tags this as: inbox (stub:v1)")
	assert.Contains(t, printed, strings.Repeat("-", 80))

	n, err = w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "already reported messages are not repeated")
}

func TestMailboxWatcher_RunBounded(t *testing.T) {
	source := &stubSource{}
	w := NewMailboxWatcher(newTestTriageService(source, "fyi"), &bytes.Buffer{}, zap.NewNop(), time.Millisecond, 5, 3, false)

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, 3, source.callCount())
}

func TestMailboxWatcher_RunStopsWhenUnavailable(t *testing.T) {
	source := &stubSource{err: &core.StageError{Stage: "query", Err: &core.StatusError{StatusCode: 401}}}
	w := NewMailboxWatcher(newTestTriageService(source, "fyi"), &bytes.Buffer{}, zap.NewNop(), time.Millisecond, 5, 10, false)

	err := w.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrUnavailable)
	assert.Equal(t, 1, source.callCount())
}

func TestMailboxWatcher_RunContinuesOnTransportFailure(t *testing.T) {
	source := &stubSource{err: &core.StatusError{StatusCode: 503}}
	w := NewMailboxWatcher(newTestTriageService(source, "fyi"), &bytes.Buffer{}, zap.NewNop(), time.Millisecond, 5, 2, false)

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, 2, source.callCount())
}

func TestMailboxWatcher_StartStop(t *testing.T) {
	source := &stubSource{messages: []*core.Message{{ID: "M1", Subject: "Sale"}}}
	out := &syncBuffer{}
	w := NewMailboxWatcher(newTestTriageService(source, "junk"), out, zap.NewNop(), 5*time.Millisecond, 5, 0, false)

	require.NoError(t, w.Start())
	assert.Error(t, w.Start())

	assert.Eventually(t, func() bool { return source.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	calls := source.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, source.callCount())
	assert.Equal(t, 1, strings.Count(out.String(), "Classifier tags this as: junk"))
}

func TestMailboxWatcher_DoneReportsFatalExit(t *testing.T) {
	source := &stubSource{err: &core.StageError{Stage: "query", Err: &core.StatusError{StatusCode: 403}}}
	w := NewMailboxWatcher(newTestTriageService(source, "fyi"), &bytes.Buffer{}, zap.NewNop(), time.Millisecond, 5, 0, false)
	assert.Nil(t, w.Done())

	require.NoError(t, w.Start())
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watcher did not exit")
	}
	assert.ErrorIs(t, w.Err(), core.ErrUnavailable)
	require.NoError(t, w.Stop())
}

func TestMailboxWatcher_DoneAfterStopHasNoError(t *testing.T) {
	source := &stubSource{messages: []*core.Message{{ID: "M1"}}}
	w := NewMailboxWatcher(newTestTriageService(source, "fyi"), &syncBuffer{}, zap.NewNop(), 5*time.Millisecond, 5, 0, false)

	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	<-w.Done()
	assert.NoError(t, w.Err())
}
