package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/core"
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, req openai.ChatCompletionRequest)) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(w, req)
	}))
	t.Cleanup(server.Close)
	return server
}

func reply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID: "chatcmpl-1",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	})
}

func TestClassify(t *testing.T) {
	var got openai.ChatCompletionRequest
	server := newTestServer(t, func(w http.ResponseWriter, req openai.ChatCompletionRequest) {
		got = req
		reply(w, "  FYI\n")
	})

	client := NewOpenAIClient("sk-test", server.URL+"/v1", "", 0, zap.NewNop())
	label, err := client.Classify(context.Background(), "From: A <a@x.com>\nSubject: Hi\n\nbody", "Label this:")
	require.NoError(t, err)

	assert.Equal(t, "fyi", label)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	assert.Less(t, got.Temperature, float32(0.001))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[0].Role)
	assert.Equal(t, "Label this:\nFrom: A <a@x.com>\nSubject: Hi\n\nbody", got.Messages[0].Content)
}

func TestClassify_Identity(t *testing.T) {
	client := NewOpenAIClient("sk-test", "", "gpt-4o-mini", 5, zap.NewNop())
	assert.Equal(t, core.ProviderIdentity{Kind: "openai", Model: "gpt-4o-mini"}, client.Identity())
}

func TestClassify_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		target error
	}{
		{"unauthorized is fatal", http.StatusUnauthorized, core.ErrUnavailable},
		{"server error is transient", http.StatusInternalServerError, core.ErrTransport},
		{"rate limit is transient", http.StatusTooManyRequests, core.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			})

			client := NewOpenAIClient("sk-test", server.URL+"/v1", "gpt-4o", 10, zap.NewNop())
			_, err := client.Classify(context.Background(), "content", "prompt")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)

			var statusErr *core.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
		})
	}
}

func TestClassify_EmptyChoices(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	})

	client := NewOpenAIClient("sk-test", server.URL+"/v1", "", 0, zap.NewNop())
	_, err := client.Classify(context.Background(), "content", "prompt")
	assert.ErrorIs(t, err, core.ErrShape)
}

func TestClassify_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewOpenAIClient("sk-test", url+"/v1", "", 0, zap.NewNop())
	_, err := client.Classify(context.Background(), "content", "prompt")
	assert.ErrorIs(t, err, core.ErrUnavailable)
}
