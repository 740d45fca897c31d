package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/core"
)

// SMTPOptions configures the SMTP triage filter
type SMTPOptions struct {
	ListenAddr    string
	LabelHeader   string
	ModelHeader   string
	ErrorHeader   string
	RejectJunk    bool
	JunkPrefix    string
	ModifySubject bool
	RelayHost     string
	RelayPort     int
	RelayEnabled  bool
	Timeout       time.Duration
}

// SMTPFilter is an MTA content filter: it accepts mail over SMTP, triages it,
// stamps the label into the headers and relays it to the next hop
type SMTPFilter struct {
	service *core.TriageService
	logger  *zap.Logger
	opts    SMTPOptions

	mu       sync.Mutex
	server   *smtp.Server
	listener net.Listener
	done     chan struct{}
	serveErr error
}

// NewSMTPFilter creates a new SMTP triage filter
func NewSMTPFilter(service *core.TriageService, logger *zap.Logger, opts SMTPOptions) *SMTPFilter {
	if opts.LabelHeader == "" {
		opts.LabelHeader = "X-Triage-Label"
	}
	if opts.ModelHeader == "" {
		opts.ModelHeader = "X-Triage-Model"
	}
	if opts.ErrorHeader == "" {
		opts.ErrorHeader = "X-Triage-Error"
	}
	if opts.JunkPrefix == "" && opts.ModifySubject {
		opts.JunkPrefix = "[JUNK] "
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &SMTPFilter{
		service: service,
		logger:  logger,
		opts:    opts,
	}
}

// Start listens on the configured address and serves in the background
func (f *SMTPFilter) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.server != nil {
		return errors.New("SMTP filter already started")
	}

	server := smtp.NewServer(&smtpBackend{filter: f})
	server.Addr = f.opts.ListenAddr
	server.Domain = "localhost"
	server.ReadTimeout = 30 * time.Second
	server.WriteTimeout = 30 * time.Second
	server.MaxMessageBytes = 30 * 1024 * 1024
	server.MaxRecipients = 50
	server.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", f.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.opts.ListenAddr, err)
	}
	done := make(chan struct{})
	f.server = server
	f.listener = listener
	f.done = done
	f.serveErr = nil

	f.logger.Info("SMTP filter starting", zap.String("address", listener.Addr().String()))

	go func() {
		err := server.Serve(listener)
		if errors.Is(err, smtp.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
		f.mu.Lock()
		f.serveErr = err
		f.mu.Unlock()
		close(done)
	}()

	return nil
}

// Addr returns the bound listen address, or nil before Start
func (f *SMTPFilter) Addr() net.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

// Done is closed once the server has stopped serving
func (f *SMTPFilter) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Err returns the error the server stopped with
func (f *SMTPFilter) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.serveErr
}

// Stop stops the SMTP server
func (f *SMTPFilter) Stop() error {
	f.mu.Lock()
	server := f.server
	f.server = nil
	f.listener = nil
	f.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Close()
}

// Process triages one raw message and returns it with triage headers added.
// A triage failure is recorded in the error header and the message still passes.
func (f *SMTPFilter) Process(ctx context.Context, raw []byte, envelopeFrom string) ([]byte, *core.TriageResult, error) {
	msg, err := parseMessage(raw, envelopeFrom)
	if err != nil {
		return nil, nil, err
	}

	result, triageErr := f.service.TriageMessage(ctx, msg)
	if triageErr != nil {
		f.logger.Error("Failed to triage message",
			zap.Error(triageErr),
			zap.String("message_id", msg.ID),
			zap.String("sender", msg.Sender().Email))

		stamped, err := stampHeaders(raw, [][2]string{{f.opts.ErrorHeader, strings.Join(strings.Fields(triageErr.Error()), " ")}}, "")
		return stamped, nil, err
	}

	prefix := ""
	if f.opts.ModifySubject && result.Label == string(core.LabelJunk) {
		prefix = f.opts.JunkPrefix
	}

	stamped, err := stampHeaders(raw, [][2]string{
		{f.opts.LabelHeader, result.Label},
		{f.opts.ModelHeader, result.ModelUsed},
	}, prefix)
	if err != nil {
		return nil, result, err
	}
	return stamped, result, nil
}

// relay sends the processed message to the next hop
func (f *SMTPFilter) relay(sender string, recipients []string, data []byte) error {
	addr := net.JoinHostPort(f.opts.RelayHost, fmt.Sprintf("%d", f.opts.RelayPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(f.opts.Timeout)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return errors.New("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// Already delivered
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

type smtpBackend struct {
	filter *SMTPFilter
}

func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

type smtpSession struct {
	filter     *SMTPFilter
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	f := s.filter

	raw, err := io.ReadAll(r)
	if err != nil {
		f.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.opts.Timeout)
	defer cancel()

	stamped, result, err := f.Process(ctx, raw, s.sender)
	if err != nil {
		f.logger.Error("Failed to process message", zap.Error(err), zap.String("sender", s.sender))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary failure processing message",
		}
	}

	if result != nil && f.opts.RejectJunk && result.Label == string(core.LabelJunk) {
		f.logger.Info("Rejecting junk message",
			zap.String("sender", s.sender),
			zap.String("model", result.ModelUsed))
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      "Rejected as junk",
		}
	}

	if f.opts.RelayEnabled {
		if err := f.relay(s.sender, s.recipients, stamped); err != nil {
			f.logger.Error("Failed to relay message", zap.Error(err), zap.String("sender", s.sender))
			return err
		}
	} else {
		f.logger.Warn("Relay disabled, message accepted and dropped", zap.String("sender", s.sender))
	}

	if result != nil {
		f.logger.Info("Processed message",
			zap.String("message_id", result.MessageID),
			zap.String("sender", s.sender),
			zap.String("label", result.Label),
			zap.String("model", result.ModelUsed),
			zap.Bool("cached", result.Cached))
	}
	return nil
}

func (s *smtpSession) Logout() error {
	return nil
}
