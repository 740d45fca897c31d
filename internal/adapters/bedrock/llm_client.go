package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/core"
)

const (
	// DefaultModelID is used when no model is configured
	DefaultModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	// DefaultMaxTokens bounds the answer to a single short label
	DefaultMaxTokens = 10

	anthropicVersion = "bedrock-2023-05-31"
)

// InvokeModelAPI is the part of the Bedrock runtime client used here
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient classifies email with a model hosted on Amazon Bedrock
type BedrockClient struct {
	client    InvokeModelAPI
	modelID   string
	maxTokens int
	logger    *zap.Logger
}

// NewBedrockClient creates a new Bedrock client
func NewBedrockClient(client InvokeModelAPI, modelID string, maxTokens int, logger *zap.Logger) *BedrockClient {
	if modelID == "" {
		modelID = DefaultModelID
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &BedrockClient{
		client:    client,
		modelID:   modelID,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Identity describes the backend
func (c *BedrockClient) Identity() core.ProviderIdentity {
	return core.ProviderIdentity{Kind: "bedrock", Model: c.modelID}
}

// Classify invokes the model with the combined prompt and returns its answer
func (c *BedrockClient) Classify(ctx context.Context, content, taskPrompt string) (string, error) {
	payload, err := buildPayload(c.modelID, taskPrompt+"\n"+content, c.maxTokens)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", wrapError(err)
	}

	text, err := parseCompletion(c.modelID, resp.Body)
	if err != nil {
		return "", err
	}

	label := core.NormalizeLabel(text)

	c.logger.Debug("Bedrock classification",
		zap.String("model", c.modelID),
		zap.String("label", label))

	return label, nil
}

// buildPayload encodes the request body in the format of the model family
func buildPayload(modelID, prompt string, maxTokens int) ([]byte, error) {
	switch {
	case isAnthropicModel(modelID):
		return json.Marshal(map[string]any{
			"anthropic_version": anthropicVersion,
			"max_tokens":        maxTokens,
			"temperature":       0,
			"messages": []map[string]any{
				{"role": "user", "content": prompt},
			},
		})
	case isAmazonTitanModel(modelID):
		return json.Marshal(map[string]any{
			"inputText": prompt,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": maxTokens,
				"temperature":   0,
			},
		})
	default:
		return json.Marshal(map[string]any{
			"prompt":      prompt,
			"max_tokens":  maxTokens,
			"temperature": 0,
		})
	}
}

// parseCompletion extracts the generated text from a model response body
func parseCompletion(modelID string, body []byte) (string, error) {
	switch {
	case isAnthropicModel(modelID):
		var resp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("%w: failed to unmarshal Claude response: %v", core.ErrShape, err)
		}
		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		if text.Len() == 0 {
			return "", fmt.Errorf("%w: empty response from Claude model", core.ErrShape)
		}
		return text.String(), nil
	case isAmazonTitanModel(modelID):
		var resp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("%w: failed to unmarshal Titan response: %v", core.ErrShape, err)
		}
		if len(resp.Results) == 0 {
			return "", fmt.Errorf("%w: empty response from Titan model", core.ErrShape)
		}
		return resp.Results[0].OutputText, nil
	default:
		var resp struct {
			Output     string `json:"output"`
			Text       string `json:"text"`
			Response   string `json:"response"`
			Generation string `json:"generation"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("%w: failed to unmarshal generic response: %v", core.ErrShape, err)
		}
		for _, candidate := range []string{resp.Output, resp.Text, resp.Response, resp.Generation} {
			if candidate != "" {
				return candidate, nil
			}
		}
		return "", fmt.Errorf("%w: no text field in model response", core.ErrShape)
	}
}

func wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() > 0 {
		return fmt.Errorf("failed to invoke Bedrock model: %w",
			&core.StatusError{StatusCode: respErr.HTTPStatusCode(), Body: err.Error()})
	}

	return fmt.Errorf("%w: failed to invoke Bedrock model: %v", core.ErrUnavailable, err)
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func isAnthropicModel(modelID string) bool {
	return strings.Contains(modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func isAmazonTitanModel(modelID string) bool {
	return strings.Contains(modelID, "amazon.titan")
}
