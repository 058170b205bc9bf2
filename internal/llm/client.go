// Package llm talks to the OpenAI chat completion and speech endpoints.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrNoAPIKey is returned when a client is used without credentials.
var ErrNoAPIKey = errors.New("API key not configured")

// Client defines the interface for chat completion providers.
type Client interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Speaker synthesizes speech for text with the given voice and writes it to path.
type Speaker interface {
	Speak(ctx context.Context, text, voice, path string) error
}

// Config holds configuration for the OpenAI clients.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	SpeechModel string
	Timeout     time.Duration
	MaxRetries  int           // total attempts
	RetryDelay  time.Duration // pause between attempts
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:      apiKey,
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o",
		SpeechModel: "tts-1-hd",
		Timeout:     120 * time.Second,
		MaxRetries:  3,
		RetryDelay:  2 * time.Second,
	}
}

// chatMessage represents a message.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest represents the chat completion request.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatResponse represents the chat completion response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// speechRequest represents the /audio/speech request.
type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
