package filter

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/google/uuid"

	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/normalize"
)

const (
	partPlain = "text/plain"
	partHTML  = "text/html"
)

// Namespace for content-derived message keys
var messageNamespace = uuid.MustParse("5b0c1f3e-8a4d-4c53-9a1e-2f6d7c9e4b10")

// messageKey identifies a received message for the classification cache.
// Message-ID is chosen by the sender, so the key also carries a digest of
// the raw bytes: a reused Message-ID with different content is a new key.
func messageKey(h mail.Header, raw []byte) string {
	digest := uuid.NewSHA1(messageNamespace, raw).String()
	if id, err := h.MessageID(); err == nil && id != "" {
		return id + "#" + digest
	}
	return digest
}

// parseMessage reads a raw message into a core.Message. The envelope sender
// stands in when the From header is missing or unparsable.
func parseMessage(raw []byte, envelopeFrom string) (*core.Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	msg := &core.Message{}

	msg.ID = messageKey(mr.Header, raw)
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.ReceivedAt = date
	} else {
		msg.ReceivedAt = time.Now()
	}
	msg.From = addressList(mr.Header, "From")
	msg.To = addressList(mr.Header, "To")
	if len(msg.From) == 0 && envelopeFrom != "" {
		msg.From = []core.Address{{Email: envelopeFrom}}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep whatever parts were read before the broken one
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType == "" {
			contentType = partPlain
		}
		if contentType != partPlain && contentType != partHTML {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		msg.Parts = append(msg.Parts, core.BodyPart{
			PartID: fmt.Sprintf("%d", len(msg.Parts)+1),
			Type:   contentType,
			Value:  string(body),
		})
	}

	selectBody(msg)
	return msg, nil
}

// selectBody prefers the first text/plain part, then the first text/html part
func selectBody(msg *core.Message) {
	for _, want := range []string{partPlain, partHTML} {
		for _, p := range msg.Parts {
			if p.Type == want {
				msg.Body = normalize.Normalize(p.Value)
				msg.SelectedPart = p.PartID
				msg.BodyFallback = want != partPlain
				return
			}
		}
	}
}

func addressList(h mail.Header, key string) []core.Address {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	addrs := make([]core.Address, 0, len(list))
	for _, a := range list {
		addrs = append(addrs, core.Address{Name: a.Name, Email: a.Address})
	}
	return addrs
}

// stampHeaders rewrites the header block of raw with the given fields added,
// optionally prefixing the subject. The body is copied unchanged.
func stampHeaders(raw []byte, fields [][2]string, subjectPrefix string) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	th, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read message header: %w", err)
	}

	h := mail.Header{Header: message.Header{Header: th}}

	if subjectPrefix != "" {
		subject, err := h.Subject()
		if err != nil {
			subject = h.Get("Subject")
		}
		if !strings.HasPrefix(subject, subjectPrefix) {
			h.SetSubject(subjectPrefix + subject)
		}
	}

	// Add prepends, so add in reverse to keep the given order at the top
	for i := len(fields) - 1; i >= 0; i-- {
		h.Del(fields[i][0])
		h.Add(fields[i][0], fields[i][1])
	}

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, h.Header.Header); err != nil {
		return nil, fmt.Errorf("failed to write message header: %w", err)
	}
	if _, err := io.Copy(&buf, br); err != nil {
		return nil, fmt.Errorf("failed to copy message body: %w", err)
	}
	return buf.Bytes(), nil
}
