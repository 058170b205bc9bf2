// Package embedding provides vector embedding generation for retrieval.
// Supports two backends: OpenAI and Google GenAI.
package embedding

import (
	"context"
	"fmt"
	"math"

	"livecast/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single search query
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for document chunks
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// =============================================================================
// EMBEDDING CONFIGURATION
// =============================================================================

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "openai" or "genai"
	Provider string

	// OpenAI configuration
	OpenAIAPIKey  string
	OpenAIBaseURL string // Default: "https://api.openai.com/v1"
	OpenAIModel   string // Default: "text-embedding-3-large"

	// GenAI configuration
	GenAIAPIKey string
	GenAIModel  string // Default: "gemini-embedding-001"

	// TaskType forces a GenAI task type. Empty selects per content type.
	TaskType string

	// BatchSize caps inputs per API call.
	BatchSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:      "openai",
		OpenAIBaseURL: "https://api.openai.com/v1",
		OpenAIModel:   "text-embedding-3-large",
		GenAIModel:    "gemini-embedding-001",
		BatchSize:     64,
	}
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Embedding("Creating embedding engine with provider=%s", cfg.Provider)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "openai":
		engine, err = NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.BatchSize)
	case "genai":
		engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType, cfg.BatchSize)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'openai' or 'genai')", cfg.Provider)
	}

	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine created: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// batched splits texts into runs of at most size and embeds each run in order.
func batched(ctx context.Context, texts []string, size int, fn func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := fn(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: got %d for %d inputs", len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// =============================================================================
// COSINE SIMILARITY UTILITY
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		aMagnitude += float64(a[i]) * float64(a[i])
		bMagnitude += float64(b[i]) * float64(b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}
