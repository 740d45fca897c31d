package ollama

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/core"
)

const (
	// DefaultBaseURL is the local Ollama server
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel is used when no model is configured
	DefaultModel = "llama3.1"
)

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Model    string  `json:"model"`
	Response *string `json:"response"`
	Done     bool    `json:"done"`
}

// OllamaClient classifies email with a locally served model
type OllamaClient struct {
	baseURL    string
	modelName  string
	maxTokens  int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOllamaClient creates a new Ollama client
func NewOllamaClient(baseURL, modelName string, maxTokens int, timeout time.Duration, logger *zap.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	return &OllamaClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		modelName: modelName,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Identity describes the backend
func (c *OllamaClient) Identity() core.ProviderIdentity {
	return core.ProviderIdentity{Kind: "ollama", Model: c.modelName}
}

// Classify sends the combined prompt with streaming disabled and returns the generated text
func (c *OllamaClient) Classify(ctx context.Context, content, taskPrompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.modelName,
		Prompt: taskPrompt + "\n" + content,
		Stream: false,
		Options: generateOptions{
			Temperature: 0,
			NumPredict:  c.maxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("failed to send request: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: failed to send request: %v", core.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("Ollama generate failed: %w",
			&core.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))})
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", core.ErrShape, err)
	}
	if result.Response == nil {
		return "", fmt.Errorf("%w: response field missing", core.ErrShape)
	}

	label := core.NormalizeLabel(*result.Response)

	c.logger.Debug("Ollama classification",
		zap.String("model", c.modelName),
		zap.String("label", label))

	return label, nil
}
