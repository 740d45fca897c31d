package core

import (
	"fmt"
	"strings"
	"time"
)

// Label is a triage category
type Label string

const (
	LabelInbox Label = "inbox"
	LabelFYI   Label = "fyi"
	LabelJunk  Label = "junk"
)

// Labels is the closed set of triage categories, in classifier index order
var Labels = []Label{LabelInbox, LabelFYI, LabelJunk}

// NormalizeLabel lowercases and trims a raw provider answer
func NormalizeLabel(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ParseLabel normalizes raw and reports whether it is one of the known labels
func ParseLabel(raw string) (Label, bool) {
	normalized := Label(NormalizeLabel(raw))
	for _, l := range Labels {
		if l == normalized {
			return l, true
		}
	}
	return normalized, false
}

// Address is a mailbox address with an optional display name
type Address struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// String formats the address as "Name <email>"
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// BodyPart is one named component of a message payload
type BodyPart struct {
	PartID string
	Type   string
	Value  string
}

// Message is a fetched email with its normalized body.
// It is built once per fetch and not modified afterwards.
type Message struct {
	ID         string
	From       []Address
	To         []Address
	Subject    string
	ReceivedAt time.Time
	Body       string
	Parts      []BodyPart

	// SelectedPart is the id of the part Body was produced from
	SelectedPart string
	// BodyFallback is set when no preferred part existed and the first available one was used
	BodyFallback bool
}

// Sender returns the first From address, or the zero Address
func (m *Message) Sender() Address {
	if len(m.From) == 0 {
		return Address{}
	}
	return m.From[0]
}

// ClassificationRequest is the prompt/content pair sent to a provider
type ClassificationRequest struct {
	Content string
	Prompt  string
}

// ProviderIdentity describes the backend behind a Provider
type ProviderIdentity struct {
	Kind  string
	Model string
}

func (p ProviderIdentity) String() string {
	if p.Model == "" {
		return p.Kind
	}
	return p.Kind + ":" + p.Model
}

// LabeledExample is a human-labeled message from the dataset
type LabeledExample struct {
	MessageID   string    `db:"email_id"`
	SenderName  string    `db:"sender_name"`
	SenderEmail string    `db:"sender_email"`
	Subject     string    `db:"subject"`
	Body        string    `db:"body"`
	Label       string    `db:"label"`
	CreatedAt   time.Time `db:"created_at"`
}

// ExampleResult is the outcome of classifying one corpus example
type ExampleResult struct {
	Preview   string
	Expected  string
	Predicted string
	Correct   bool
	Err       error
}

// EvaluationResult summarizes an evaluation run
type EvaluationResult struct {
	RunID     string
	Provider  ProviderIdentity
	Total     int
	Correct   int
	Errored   int
	Accuracy  float64
	Results   []ExampleResult
	StartedAt time.Time
	Duration  time.Duration
}

// CacheEntry is a cached classification for a message id
type CacheEntry struct {
	MessageID    string
	Label        string
	ModelUsed    string
	ClassifiedAt time.Time
	ExpiresAt    time.Time
}

// TriageResult is the outcome of triaging a live message
type TriageResult struct {
	MessageID    string
	From         Address
	Subject      string
	Preview      string
	Label        string
	ModelUsed    string
	Cached       bool
	ClassifiedAt time.Time
}

// FormatContent renders the text a provider sees for a message
func FormatContent(sender Address, subject, body string) string {
	return fmt.Sprintf("From: %s <%s>\nSubject: %s\n\n%s", sender.Name, sender.Email, subject, body)
}
