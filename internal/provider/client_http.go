package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"secbrief/internal/logging"
)

// HTTPClient implements Client against an OpenAI-compatible chat
// completions endpoint. Retries are deliberately absent here: the tier
// pipeline owns the retry budget, and stacking provider-level retries
// under it would fan out unboundedly during sustained outages.
type HTTPClient struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// HTTPConfig holds configuration for the HTTP provider client.
type HTTPConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MinInterval time.Duration
}

// DefaultHTTPConfig returns sensible defaults.
func DefaultHTTPConfig(apiKey string) HTTPConfig {
	return HTTPConfig{
		APIKey:      apiKey,
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		Timeout:     120 * time.Second,
		MinInterval: 500 * time.Millisecond,
	}
}

// NewHTTPClient creates a new HTTP provider client with default config.
func NewHTTPClient(apiKey string) *HTTPClient {
	return NewHTTPClientWithConfig(DefaultHTTPConfig(apiKey))
}

// NewHTTPClientWithConfig creates a new HTTP provider client with custom config.
func NewHTTPClientWithConfig(cfg HTTPConfig) *HTTPClient {
	return &HTTPClient{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		minInterval: cfg.MinInterval,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// chatRequest represents the API request structure.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// chatMessage represents a message in the conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents the API response structure.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Complete sends a prompt and returns the completion.
func (c *HTTPClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt, opts)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *HTTPClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	if c.apiKey == "" {
		return "", &APIError{Message: "API key not configured"}
	}

	// Space requests out so a saturated fleet does not burst the
	// provider's rate limit.
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if c.minInterval > 0 && elapsed < c.minInterval {
		time.Sleep(c.minInterval - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.ProviderError("request failed: %v", err)
		return "", &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		logging.ProviderError("API request failed with status %d", resp.StatusCode)
		return "", &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", &APIError{Message: fmt.Sprintf("failed to parse response: %v", err)}
	}
	if chatResp.Error != nil {
		return "", &APIError{Message: chatResp.Error.Message}
	}
	if len(chatResp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}

	logging.Provider("completion ok: model=%s len=%d", c.model, len(content))
	return content, nil
}

// SetModel changes the model used for completions.
func (c *HTTPClient) SetModel(model string) {
	c.model = model
}
