package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// OPENAI EMBEDDING ENGINE
// =============================================================================

// OpenAIEngine generates embeddings using the OpenAI embeddings endpoint.
type OpenAIEngine struct {
	apiKey    string
	baseURL   string
	model     string
	batchSize int
	client    *http.Client
}

// NewOpenAIEngine creates a new OpenAI embedding engine.
func NewOpenAIEngine(apiKey, baseURL, model string, batchSize int) (*OpenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-large"
	}
	if batchSize <= 0 {
		batchSize = 64
	}

	return &OpenAIEngine{
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		batchSize: batchSize,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in input order.
func (e *OpenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return batched(ctx, texts, e.batchSize, e.embed)
}

func (e *OpenAIEngine) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openaiEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openai embeddings returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return out, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *OpenAIEngine) Dimensions() int {
	switch e.model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	default:
		return 3072
	}
}

// Name returns the engine name.
func (e *OpenAIEngine) Name() string {
	return fmt.Sprintf("openai:%s", e.model)
}

// =============================================================================
// OPENAI API TYPES
// =============================================================================

type openaiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}
