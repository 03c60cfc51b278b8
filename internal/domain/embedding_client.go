package domain

import "context"

// EmbeddingResult carries one dense vector plus the metered usage of the call.
// Usage is zero when the vector was served from cache.
type EmbeddingResult struct {
	Vector      []float32
	Model       string
	TotalTokens int64
	Cost        float64
}

// EmbeddingBatch carries the vectors for one multi-input embedding call.
type EmbeddingBatch struct {
	Vectors     [][]float32
	Model       string
	TotalTokens int64
	Cost        float64
}

// EmbeddingClient obtains dense embeddings from the remote embedding service.
type EmbeddingClient interface {
	// EmbedQuery embeds a single query string. Idempotent; implementations
	// retry transient failures and may serve repeats from cache.
	EmbedQuery(ctx context.Context, text string) (*EmbeddingResult, error)

	// EmbedTexts embeds a batch of document texts in one call.
	EmbedTexts(ctx context.Context, texts []string) (*EmbeddingBatch, error)

	Model() string
}
