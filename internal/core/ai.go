package core

import "context"

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider streams a completion. onChunk receives each text delta in
// order; returning an error from it aborts the generation.
type LLMProvider interface {
	GenerateStream(ctx context.Context, systemPrompt, userPrompt string, onChunk func(string) error) error
}
