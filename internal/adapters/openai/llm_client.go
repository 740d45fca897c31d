package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/core"
)

const (
	// DefaultModel is used when no model is configured
	DefaultModel = openai.GPT4o
	// DefaultMaxTokens bounds the answer to a single short label
	DefaultMaxTokens = 10
)

// zeroTemperature is sent instead of 0, which the client omits from the request
const zeroTemperature = math.SmallestNonzeroFloat32

// OpenAIClient classifies email with the OpenAI chat completions API
type OpenAIClient struct {
	client    *openai.Client
	modelName string
	maxTokens int
	logger    *zap.Logger
}

// NewOpenAIClient creates a new OpenAI client. baseURL may point at any
// OpenAI-compatible endpoint; empty keeps the public API.
func NewOpenAIClient(apiKey, baseURL, modelName string, maxTokens int, logger *zap.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(cfg),
		modelName: modelName,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Identity describes the backend
func (c *OpenAIClient) Identity() core.ProviderIdentity {
	return core.ProviderIdentity{Kind: "openai", Model: c.modelName}
}

// Classify sends the prompt and content as one user message and returns the answer
func (c *OpenAIClient) Classify(ctx context.Context, content, taskPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: taskPrompt + "\n" + content,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: zeroTemperature,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", c.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response from OpenAI", core.ErrShape)
	}

	label := core.NormalizeLabel(resp.Choices[0].Message.Content)

	c.logger.Debug("OpenAI classification",
		zap.String("model", c.modelName),
		zap.String("label", label),
		zap.String("request_id", resp.ID))

	return label, nil
}

func (c *OpenAIClient) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("OpenAI chat completion failed: %w",
			&core.StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message})
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("OpenAI chat completion failed: %w",
			&core.StatusError{StatusCode: reqErr.HTTPStatusCode, Body: strings.TrimSpace(reqErr.Error())})
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("OpenAI chat completion failed: %w", err)
	}

	return fmt.Errorf("%w: OpenAI chat completion failed: %v", core.ErrUnavailable, err)
}
