package jmap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/normalize"
)

// Options configures a JMAP client
type Options struct {
	SessionURL string
	// APIURL overrides the apiUrl advertised by the session
	APIURL    string
	Token     string
	Timeout   time.Duration
	BodyParts []string

	HTTPClient *http.Client
}

// Client reads mail over JMAP
type Client struct {
	token      string
	accountID  string
	apiURL     string
	bodyParts  []string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient establishes a session and resolves the primary mail account.
// No client is returned if the session cannot be established.
func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	if opts.SessionURL == "" {
		opts.SessionURL = DefaultSessionURL
	}
	if len(opts.BodyParts) == 0 {
		opts.BodyParts = DefaultBodyParts
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		token:      opts.Token,
		bodyParts:  opts.BodyParts,
		httpClient: httpClient,
		logger:     logger,
	}

	if err := c.authenticate(ctx, opts.SessionURL); err != nil {
		return nil, &core.StageError{Stage: "session", Err: err}
	}
	if opts.APIURL != "" {
		c.apiURL = opts.APIURL
	}

	logger.Info("JMAP session established",
		zap.String("account_id", c.accountID),
		zap.String("api_url", c.apiURL))

	return c, nil
}

// AccountID returns the primary mail account id
func (c *Client) AccountID() string {
	return c.accountID
}

func (c *Client) authenticate(ctx context.Context, sessionURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sessionURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to JMAP server: %v", core.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &core.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var session sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return fmt.Errorf("%w: failed to decode session response: %v", core.ErrShape, err)
	}

	accountID, ok := session.PrimaryAccounts[capabilityMail]
	if !ok || accountID == "" {
		return fmt.Errorf("%w: no primary mail account found", core.ErrShape)
	}

	c.accountID = accountID
	c.apiURL = session.APIURL
	if c.apiURL == "" {
		return fmt.Errorf("%w: session has no apiUrl", core.ErrShape)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

// call sends a single method call and decodes its arguments into out
func (c *Client) call(ctx context.Context, method string, args map[string]any, out any) error {
	body, err := json.Marshal(request{
		Using:       []string{capabilityCore, capabilityMail},
		MethodCalls: [][]any{{method, args, "0"}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	c.logger.Debug("JMAP request", zap.String("method", method))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to make request: %v", core.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &core.StatusError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	var envelope response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", core.ErrShape, err)
	}
	if len(envelope.MethodResponses) == 0 {
		return fmt.Errorf("%w: empty methodResponses", core.ErrShape)
	}

	var invocation []json.RawMessage
	if err := json.Unmarshal(envelope.MethodResponses[0], &invocation); err != nil || len(invocation) < 2 {
		return fmt.Errorf("%w: malformed method response", core.ErrShape)
	}

	var name string
	if err := json.Unmarshal(invocation[0], &name); err != nil {
		return fmt.Errorf("%w: malformed method name", core.ErrShape)
	}

	if name == "error" {
		var jmapErr methodError
		if err := json.Unmarshal(invocation[1], &jmapErr); err != nil {
			return fmt.Errorf("%w: JMAP error: %s", core.ErrTransport, string(invocation[1]))
		}
		return fmt.Errorf("%w: JMAP error (%s): %s", core.ErrTransport, jmapErr.Type, jmapErr.Description)
	}
	if name != method {
		return fmt.Errorf("%w: expected %s response, got %s", core.ErrShape, method, name)
	}

	if err := json.Unmarshal(invocation[1], out); err != nil {
		return fmt.Errorf("%w: failed to decode %s arguments: %v", core.ErrShape, method, err)
	}

	return nil
}

// ListRecent returns message ids newest first. Out of range paging yields an empty list.
func (c *Client) ListRecent(ctx context.Context, limit, offset int) ([]string, error) {
	if limit <= 0 || offset < 0 {
		return []string{}, nil
	}

	args := map[string]any{
		"accountId": c.accountID,
		"sort": []map[string]any{
			{"property": "receivedAt", "isAscending": false},
		},
		"position": offset,
		"limit":    limit,
	}

	var result queryResponse
	if err := c.call(ctx, "Email/query", args, &result); err != nil {
		return nil, &core.StageError{Stage: "query", Err: err}
	}
	if result.IDs == nil {
		return nil, &core.StageError{Stage: "query", Err: fmt.Errorf("%w: response has no ids", core.ErrShape)}
	}

	return result.IDs, nil
}

// FetchDetail fetches one message and normalizes its selected body part.
// The returned message always carries messageID.
func (c *Client) FetchDetail(ctx context.Context, messageID string) (*core.Message, error) {
	args := map[string]any{
		"accountId":           c.accountID,
		"ids":                 []string{messageID},
		"properties":          emailProperties,
		"fetchTextBodyValues": true,
		"fetchHTMLBodyValues": true,
	}

	var result getResponse
	if err := c.call(ctx, "Email/get", args, &result); err != nil {
		return nil, &core.StageError{Stage: "get", MessageID: messageID, Err: err}
	}
	if len(result.List) == 0 {
		return nil, &core.StageError{
			Stage:     "get",
			MessageID: messageID,
			Err:       fmt.Errorf("%w: message not returned", core.ErrShape),
		}
	}

	return c.toMessage(messageID, &result.List[0]), nil
}

func (c *Client) toMessage(messageID string, e *email) *core.Message {
	msg := &core.Message{
		ID:      messageID,
		Subject: e.Subject,
		From:    toAddresses(e.From),
		To:      toAddresses(e.To),
	}
	if t, err := time.Parse(time.RFC3339, e.ReceivedAt); err == nil {
		msg.ReceivedAt = t
	}

	types := make(map[string]string)
	for _, p := range e.TextBody {
		types[p.PartID] = p.Type
	}
	for _, p := range e.HTMLBody {
		types[p.PartID] = p.Type
	}

	for _, id := range sortedKeys(e.BodyValues) {
		raw, _ := e.BodyValues[id].Value.(string)
		msg.Parts = append(msg.Parts, core.BodyPart{PartID: id, Type: types[id], Value: raw})
	}

	partID, fallback := c.selectPart(e)
	if fallback {
		available := make([]string, 0, len(e.BodyValues))
		for _, p := range msg.Parts {
			available = append(available, p.PartID)
		}
		c.logger.Warn("No preferred body part, using first available",
			zap.String("message_id", messageID),
			zap.Strings("preferred", c.bodyParts),
			zap.Strings("available", available),
			zap.String("selected", partID))
	}

	msg.SelectedPart = partID
	msg.BodyFallback = fallback
	if partID != "" {
		msg.Body = normalize.FromValue(e.BodyValues[partID].Value)
	}

	return msg
}

// selectPart picks the body part to normalize, reporting whether it had to fall back
func (c *Client) selectPart(e *email) (string, bool) {
	for _, id := range c.bodyParts {
		if _, ok := e.BodyValues[id]; ok {
			return id, false
		}
	}

	candidates := make([]string, 0, len(e.HTMLBody)+len(e.TextBody)+len(e.BodyValues))
	for _, p := range e.HTMLBody {
		candidates = append(candidates, p.PartID)
	}
	for _, p := range e.TextBody {
		candidates = append(candidates, p.PartID)
	}
	candidates = append(candidates, sortedKeys(e.BodyValues)...)

	for _, id := range candidates {
		if _, ok := e.BodyValues[id]; ok {
			return id, true
		}
	}

	return "", true
}

// FetchRecentBatch lists a page then fetches each message, oldest of the page first
func (c *Client) FetchRecentBatch(ctx context.Context, limit, offset int, policy core.BatchPolicy) ([]*core.Message, error) {
	ids, err := c.ListRecent(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	messages := make([]*core.Message, 0, len(ids))
	var errs error

	for i := len(ids) - 1; i >= 0; i-- {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return messages, multierr.Append(errs, ctxErr)
		}

		msg, err := c.FetchDetail(ctx, ids[i])
		if err != nil {
			if policy == core.BatchFailFast || !core.IsRecoverable(err) {
				return messages, err
			}
			c.logger.Warn("Skipping message that could not be fetched",
				zap.String("message_id", ids[i]),
				zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}

		messages = append(messages, msg)
	}

	return messages, errs
}

func toAddresses(in []emailAddress) []core.Address {
	if len(in) == 0 {
		return nil
	}
	out := make([]core.Address, len(in))
	for i, a := range in {
		out[i] = core.Address{Name: a.Name, Email: a.Email}
	}
	return out
}

func sortedKeys(m map[string]bodyValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
