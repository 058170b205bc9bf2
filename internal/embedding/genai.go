package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// =============================================================================
// GOOGLE GENAI EMBEDDING ENGINE
// =============================================================================

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	client    *genai.Client
	model     string
	docTask   string
	queryTask string
	batchSize int
}

// NewGenAIEngine creates a new GenAI embedding engine. An empty taskType
// picks RETRIEVAL_DOCUMENT for chunks and RETRIEVAL_QUERY for queries.
func NewGenAIEngine(apiKey, model, taskType string, batchSize int) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	docTask := SelectTaskType(ContentTypeChunk)
	queryTask := SelectTaskType(ContentTypeQuery)
	if taskType != "" {
		docTask = taskType
		queryTask = taskType
	}

	return &GenAIEngine{
		client:    client,
		model:     model,
		docTask:   docTask,
		queryTask: queryTask,
		batchSize: batchSize,
	}, nil
}

// Embed generates an embedding for a single query.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, e.queryTask)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for document chunks.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return batched(ctx, texts, e.batchSize, func(ctx context.Context, run []string) ([][]float32, error) {
		return e.embed(ctx, run, e.docTask)
	})
}

func (e *GenAIEngine) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: task,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *GenAIEngine) Dimensions() int {
	// gemini-embedding-001 default output size
	return 3072
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}
