package vectorstore

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
)

// Embedder generates text embeddings. The production implementation lives in
// internal/llm; tests use a deterministic local one.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// toChromemFunc adapts an Embedder to chromem's single-text callback.
func toChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		results, err := e.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return nil, nil
		}
		return results[0], nil
	}
}
