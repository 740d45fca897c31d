package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mikey/llm-email-triage/internal/core"
)

const (
	// DefaultModel is used when no model is configured
	DefaultModel = "gemini-1.5-flash"
	// DefaultMaxTokens bounds the answer to a single short label
	DefaultMaxTokens = 10
)

// GeminiClient classifies email with Google Gemini
type GeminiClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	logger    *zap.Logger
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, apiKey, modelName string, maxTokens int, logger *zap.Logger) (*GeminiClient, error) {
	if modelName == "" {
		modelName = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.SetCandidateCount(1)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &GeminiClient{
		client:    client,
		model:     model,
		modelName: modelName,
		logger:    logger,
	}, nil
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Identity describes the backend
func (c *GeminiClient) Identity() core.ProviderIdentity {
	return core.ProviderIdentity{Kind: "gemini", Model: c.modelName}
}

// Classify sends the prompt and content as a single turn and returns the answer
func (c *GeminiClient) Classify(ctx context.Context, content, taskPrompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(taskPrompt+"\n"+content))
	if err != nil {
		return "", wrapError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response from Gemini", core.ErrShape)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	label := core.NormalizeLabel(text.String())

	c.logger.Debug("Gemini classification",
		zap.String("model", c.modelName),
		zap.String("label", label))

	return label, nil
}

func wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("Gemini generate content failed: %w", err)
	}

	var httpErr interface{ HTTPCode() int }
	if errors.As(err, &httpErr) && httpErr.HTTPCode() > 0 {
		return fmt.Errorf("Gemini generate content failed: %w",
			&core.StatusError{StatusCode: httpErr.HTTPCode(), Body: err.Error()})
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unauthenticated, codes.PermissionDenied, codes.NotFound, codes.Unavailable:
			return fmt.Errorf("%w: Gemini generate content failed: %v", core.ErrUnavailable, err)
		default:
			return fmt.Errorf("%w: Gemini generate content failed: %v", core.ErrTransport, err)
		}
	}

	return fmt.Errorf("%w: Gemini generate content failed: %v", core.ErrTransport, err)
}
