package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"livecast/internal/logging"
)

// statusError is a non-200 response from the API.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.Code, e.Body)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	// Transport errors, including client timeouts.
	return true
}

// poster sends JSON requests to the OpenAI API with retries.
type poster struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

func newPoster(cfg Config) poster {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return poster{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// post sends body to path and returns a 200 response whose body the caller
// must close. Timeouts, 429 and 5xx are retried with a fixed pause.
func (p poster) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	if p.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}

		resp, err := p.once(ctx, path, jsonData)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		logging.LLMWarn("POST %s attempt %d/%d failed: %v", path, attempt, p.maxRetries, err)
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (p poster) once(ctx context.Context, path string, jsonData []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// OpenAIClient implements Client for the OpenAI chat completion API.
type OpenAIClient struct {
	poster
	model string
}

// NewOpenAIClient creates a new OpenAI chat client.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	return &OpenAIClient{poster: newPoster(cfg), model: cfg.Model}
}

// Model returns the chat model name.
func (c *OpenAIClient) Model() string { return c.model }

// CompleteWithSystem sends a prompt with a system message and returns the
// trimmed answer.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	startTime := time.Now()
	logging.LLMDebug("CompleteWithSystem: model=%s system_len=%d user_len=%d", c.model, len(systemPrompt), len(userPrompt))

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	resp, err := c.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		logging.LLMError("CompleteWithSystem failed after %v: %v", time.Since(startTime), err)
		return "", err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	response := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	logging.LLM("CompleteWithSystem: completed in %v response_len=%d", time.Since(startTime), len(response))
	return response, nil
}
