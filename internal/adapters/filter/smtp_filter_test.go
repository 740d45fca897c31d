package filter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/adapters/cache"
	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/utils"
)

const multipartMessage = "From: Alice Example <alice@example.com>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: Weekly deals\r\n" +
	"Message-ID: <abc123@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"BOUNDARY\"\r\n" +
	"\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Big <b>sale</b></p>\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Big sale today\r\n" +
	"--BOUNDARY--\r\n"

const htmlOnlyMessage = "From: shop@example.com\r\n" +
	"Subject: =?utf-8?q?Caf=C3=A9_news?=\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<h2>Menu</h2><p>Fresh <i>bread</i></p>\r\n"

type capturingProvider struct {
	mu      sync.Mutex
	answer  string
	err     error
	content []string
}

func (p *capturingProvider) Classify(ctx context.Context, content, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content = append(p.content, content)
	return p.answer, p.err
}

func (p *capturingProvider) Identity() core.ProviderIdentity {
	return core.ProviderIdentity{Kind: "stub", Model: "v1"}
}

func newSMTPTestFilter(provider core.Provider, opts SMTPOptions) *SMTPFilter {
	tp := utils.NewTextProcessor(nil)
	classifier := core.NewClassificationService("", 4000, false, tp, zap.NewNop())
	service := core.NewTriageService(nil, classifier, provider, nil, zap.NewNop(),
		false, time.Hour, core.BatchSkipFailed, tp)
	return NewSMTPFilter(service, zap.NewNop(), opts)
}

func TestParseMessage(t *testing.T) {
	t.Run("multipart prefers plain text", func(t *testing.T) {
		msg, err := parseMessage([]byte(multipartMessage), "bounce@example.com")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(msg.ID, "abc123@example.com#"), msg.ID)
		assert.Equal(t, "Weekly deals", msg.Subject)
		assert.Equal(t, core.Address{Name: "Alice Example", Email: "alice@example.com"}, msg.Sender())
		assert.Equal(t, []core.Address{{Email: "me@example.com"}}, msg.To)
		require.Len(t, msg.Parts, 2)
		assert.Equal(t, "Big sale today", msg.Body)
		assert.Equal(t, "2", msg.SelectedPart)
		assert.False(t, msg.BodyFallback)
	})

	t.Run("html only is normalized", func(t *testing.T) {
		msg, err := parseMessage([]byte(htmlOnlyMessage), "")
		require.NoError(t, err)

		assert.NotEmpty(t, msg.ID, "a message key is derived when the header is missing")
		assert.Equal(t, "Café news", msg.Subject)
		assert.Equal(t, "## Menu\n\nFresh *bread*", msg.Body)
		assert.True(t, msg.BodyFallback)
	})

	t.Run("envelope sender fills missing from", func(t *testing.T) {
		msg, err := parseMessage([]byte("Subject: hi\r\n\r\nbody\r\n"), "bounce@example.com")
		require.NoError(t, err)
		assert.Equal(t, "bounce@example.com", msg.Sender().Email)
		assert.Equal(t, "body", msg.Body)
	})
}

func TestParseMessage_KeyFollowsContent(t *testing.T) {
	first, err := parseMessage([]byte(multipartMessage), "")
	require.NoError(t, err)
	again, err := parseMessage([]byte(multipartMessage), "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	forged := strings.Replace(multipartMessage, "Big sale today", "Your invoice is attached", 1)
	other, err := parseMessage([]byte(forged), "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestSMTPFilter_ReusedMessageIDIsNotServedFromCache(t *testing.T) {
	tp := utils.NewTextProcessor(nil)
	classifier := core.NewClassificationService("", 4000, false, tp, zap.NewNop())
	provider := &capturingProvider{answer: "fyi"}
	memCache := cache.NewMemoryCache(zap.NewNop(), time.Hour)
	defer memCache.Stop()
	service := core.NewTriageService(nil, classifier, provider, memCache, zap.NewNop(),
		true, time.Hour, core.BatchSkipFailed, tp)
	f := NewSMTPFilter(service, zap.NewNop(), SMTPOptions{})

	_, result, err := f.Process(context.Background(), []byte(multipartMessage), "")
	require.NoError(t, err)
	assert.Equal(t, "fyi", result.Label)

	_, result, err = f.Process(context.Background(), []byte(multipartMessage), "")
	require.NoError(t, err)
	assert.True(t, result.Cached)

	provider.mu.Lock()
	provider.answer = "junk"
	provider.mu.Unlock()

	forged := strings.Replace(multipartMessage, "Big sale today", "Claim your prize now", 1)
	_, result, err = f.Process(context.Background(), []byte(forged), "")
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, "junk", result.Label)
	assert.Len(t, provider.content, 2)
}

func TestStampHeaders(t *testing.T) {
	out, err := stampHeaders([]byte(multipartMessage), [][2]string{{"X-Triage-Label", "junk"}, {"X-Triage-Model", "stub:v1"}}, "[JUNK] ")
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "X-Triage-Label: junk\r\n")
	assert.Contains(t, text, "X-Triage-Model: stub:v1\r\n")
	assert.Contains(t, text, "Subject: [JUNK] Weekly deals\r\n")
	assert.NotContains(t, text, "Subject: Weekly deals")
	assert.Less(t, strings.Index(text, "X-Triage-Label"), strings.Index(text, "X-Triage-Model"))
	assert.True(t, strings.HasSuffix(text, "Big sale today\r\n--BOUNDARY--\r\n"), "body is copied unchanged")

	again, err := stampHeaders(out, [][2]string{{"X-Triage-Label", "junk"}}, "[JUNK] ")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(again), "[JUNK]"))
	assert.Equal(t, 1, strings.Count(string(again), "X-Triage-Label"))
}

func TestSMTPFilter_Process(t *testing.T) {
	t.Run("labels and prefixes junk", func(t *testing.T) {
		provider := &capturingProvider{answer: "Junk"}
		f := newSMTPTestFilter(provider, SMTPOptions{ModifySubject: true})

		out, result, err := f.Process(context.Background(), []byte(multipartMessage), "")
		require.NoError(t, err)
		require.NotNil(t, result)

		assert.Equal(t, "junk", result.Label)
		assert.Equal(t, "stub:v1", result.ModelUsed)
		assert.Contains(t, string(out), "X-Triage-Label: junk\r\n")
		assert.Contains(t, string(out), "Subject: [JUNK] Weekly deals\r\n")

		require.Len(t, provider.content, 1)
		assert.Equal(t, "From: Alice Example <alice@example.com>\nSubject: Weekly deals\n\nBig sale today", provider.content[0])
	})

	t.Run("inbox keeps subject", func(t *testing.T) {
		f := newSMTPTestFilter(&capturingProvider{answer: "inbox"}, SMTPOptions{ModifySubject: true})

		out, _, err := f.Process(context.Background(), []byte(multipartMessage), "")
		require.NoError(t, err)
		assert.Contains(t, string(out), "Subject: Weekly deals\r\n")
		assert.Contains(t, string(out), "X-Triage-Label: inbox\r\n")
	})

	t.Run("triage failure passes with error header", func(t *testing.T) {
		f := newSMTPTestFilter(&capturingProvider{err: &core.StatusError{StatusCode: 500, Body: "boom\nagain"}}, SMTPOptions{})

		out, result, err := f.Process(context.Background(), []byte(multipartMessage), "")
		require.NoError(t, err)
		assert.Nil(t, result)
		parsed, err := mail.ReadMessage(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, "classify (message abc123@example.com): request failed with status 500: boom again", parsed.Header.Get("X-Triage-Error"))
		assert.NotContains(t, string(out), "X-Triage-Label")
	})
}

type relayBackend struct {
	mu       sync.Mutex
	from     string
	to       []string
	received chan string
}

func (b *relayBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &relaySession{backend: b}, nil
}

type relaySession struct {
	backend *relayBackend
}

func (s *relaySession) Reset()        {}
func (s *relaySession) Logout() error { return nil }

func (s *relaySession) Mail(from string, _ *smtp.MailOptions) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.from = from
	return nil
}

func (s *relaySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.to = append(s.backend.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.received <- string(data)
	return nil
}

func startRelay(t *testing.T) (*relayBackend, string, int) {
	t.Helper()
	backend := &relayBackend{received: make(chan string, 1)}

	server := smtp.NewServer(backend)
	server.Domain = "localhost"
	server.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })

	return backend, "127.0.0.1", listener.Addr().(*net.TCPAddr).Port
}

func TestSMTPFilter_EndToEnd(t *testing.T) {
	backend, host, port := startRelay(t)

	f := newSMTPTestFilter(&capturingProvider{answer: "fyi"}, SMTPOptions{
		ListenAddr:   "127.0.0.1:0",
		RelayHost:    host,
		RelayPort:    port,
		RelayEnabled: true,
	})
	require.NoError(t, f.Start())
	defer f.Stop()

	err := smtp.SendMail(f.Addr().String(), nil, "alice@example.com", []string{"me@example.com"}, strings.NewReader(multipartMessage))
	require.NoError(t, err)

	select {
	case data := <-backend.received:
		assert.Contains(t, data, "X-Triage-Label: fyi\r\n")
		assert.Contains(t, data, "X-Triage-Model: stub:v1\r\n")
		assert.Contains(t, data, "Big sale today")
	case <-time.After(2 * time.Second):
		t.Fatal("relayed message not received")
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, "alice@example.com", backend.from)
	assert.Contains(t, backend.to, "me@example.com")
}

func TestSMTPFilter_RejectJunk(t *testing.T) {
	f := newSMTPTestFilter(&capturingProvider{answer: "junk"}, SMTPOptions{
		ListenAddr: "127.0.0.1:0",
		RejectJunk: true,
	})
	require.NoError(t, f.Start())
	defer f.Stop()

	err := smtp.SendMail(f.Addr().String(), nil, "spammer@example.com", []string{"me@example.com"}, strings.NewReader(multipartMessage))
	require.Error(t, err)

	var smtpErr *smtp.SMTPError
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, 550, smtpErr.Code)
}

func TestSMTPFilter_StartStop(t *testing.T) {
	f := newSMTPTestFilter(&capturingProvider{}, SMTPOptions{ListenAddr: "127.0.0.1:0"})
	assert.Nil(t, f.Addr())

	require.NoError(t, f.Start())
	assert.Error(t, f.Start())
	assert.NotNil(t, f.Addr())

	done := f.Done()
	require.NotNil(t, done)
	require.NoError(t, f.Stop())
	require.NoError(t, f.Stop())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
	assert.NoError(t, f.Err())
}
