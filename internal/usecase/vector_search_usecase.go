package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"case-retriever/internal/domain"
)

// VectorSearchInput defines the input parameters for VectorSearch.
type VectorSearchInput struct {
	Query   string
	Limit   int
	Filters domain.SearchFilters
	// NumCandidates widens the ANN probe; <= 0 lets the repository pick
	// max(limit*2, floor).
	NumCandidates int
}

// VectorSearchOutput defines the output for VectorSearch.
type VectorSearchOutput struct {
	Results    []domain.Candidate
	Model      string
	Tokens     int64
	Cost       float64
	SearchTime time.Duration
}

// VectorSearchUsecase embeds the query and runs a pure ANN search. Unlike the
// hybrid paths there is nothing to degrade to, so an embedding failure fails
// the request.
type VectorSearchUsecase interface {
	Execute(ctx context.Context, input VectorSearchInput) (*VectorSearchOutput, error)
}

type vectorSearchUsecase struct {
	vectorRepo   domain.CaseVectorRepository
	embedder     domain.EmbeddingClient
	defaultLimit int
	logger       *slog.Logger
}

// NewVectorSearchUsecase creates a new VectorSearchUsecase.
func NewVectorSearchUsecase(
	vectorRepo domain.CaseVectorRepository,
	embedder domain.EmbeddingClient,
	defaultLimit int,
	logger *slog.Logger,
) VectorSearchUsecase {
	return &vectorSearchUsecase{
		vectorRepo:   vectorRepo,
		embedder:     embedder,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

func (u *vectorSearchUsecase) Execute(ctx context.Context, input VectorSearchInput) (*VectorSearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.Invalid("query is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = u.defaultLimit
	}

	started := time.Now()
	embedding, err := u.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates, err := u.vectorRepo.SearchVector(ctx, embedding.Vector, limit, input.NumCandidates, input.Filters)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	elapsed := time.Since(started)

	u.logger.Info("vector_search_completed",
		slog.Int("count", len(candidates)),
		slog.Int("limit", limit),
		slog.Int64("tokens", embedding.TotalTokens),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)
	return &VectorSearchOutput{
		Results:    candidates,
		Model:      embedding.Model,
		Tokens:     embedding.TotalTokens,
		Cost:       embedding.Cost,
		SearchTime: elapsed,
	}, nil
}
