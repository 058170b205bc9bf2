package store

import (
	"context"
	"strings"
)

// keywordEngine embeds text as word counts over a fixed vocabulary, which
// makes similarity rankings predictable in tests.
type keywordEngine struct {
	vocab    []string
	embedErr error
	batchErr error
}

func newKeywordEngine() *keywordEngine {
	return &keywordEngine{vocab: []string{"storm", "wind", "rain", "sun"}}
}

func (e *keywordEngine) vector(text string) []float32 {
	v := make([]float32, len(e.vocab))
	for _, w := range strings.Fields(strings.ToLower(text)) {
		for i, term := range e.vocab {
			if strings.Trim(w, ".,") == term {
				v[i]++
			}
		}
	}
	return v
}

func (e *keywordEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.embedErr != nil {
		return nil, e.embedErr
	}
	return e.vector(text), nil
}

func (e *keywordEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.batchErr != nil {
		return nil, e.batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEngine) Dimensions() int { return len(e.vocab) }

func (e *keywordEngine) Name() string { return "keyword-test-engine" }
