package jmap

import (
	"github.com/goccy/go-json"
)

const (
	// DefaultSessionURL is the Fastmail JMAP session endpoint
	DefaultSessionURL = "https://api.fastmail.com/jmap/session"

	capabilityCore = "urn:ietf:params:jmap:core"
	capabilityMail = "urn:ietf:params:jmap:mail"
)

// DefaultBodyParts is the preference order for the part a message body is built from
var DefaultBodyParts = []string{"1", "1.1"}

// Properties requested for every Email/get
var emailProperties = []string{
	"id",
	"subject",
	"from",
	"to",
	"receivedAt",
	"bodyValues",
	"textBody",
	"htmlBody",
}

type sessionResponse struct {
	PrimaryAccounts map[string]string `json:"primaryAccounts"`
	APIURL          string            `json:"apiUrl"`
}

type request struct {
	Using       []string `json:"using"`
	MethodCalls [][]any  `json:"methodCalls"`
}

type response struct {
	MethodResponses []json.RawMessage `json:"methodResponses"`
}

type methodError struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type queryResponse struct {
	IDs   []string `json:"ids"`
	Total int      `json:"total"`
}

type getResponse struct {
	List     []email  `json:"list"`
	NotFound []string `json:"notFound"`
}

type emailAddress struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type bodyPart struct {
	PartID string `json:"partId"`
	Type   string `json:"type"`
}

// bodyValue.Value is left untyped so malformed payloads degrade to an empty body
type bodyValue struct {
	Value             any  `json:"value"`
	IsTruncated       bool `json:"isTruncated"`
	IsEncodingProblem bool `json:"isEncodingProblem"`
}

type email struct {
	ID         string               `json:"id"`
	Subject    string               `json:"subject"`
	From       []emailAddress       `json:"from"`
	To         []emailAddress       `json:"to"`
	ReceivedAt string               `json:"receivedAt"`
	BodyValues map[string]bodyValue `json:"bodyValues"`
	TextBody   []bodyPart           `json:"textBody"`
	HTMLBody   []bodyPart           `json:"htmlBody"`
}
