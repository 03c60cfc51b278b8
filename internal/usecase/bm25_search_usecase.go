package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"case-retriever/internal/domain"
)

// BM25SearchInput defines the input parameters for BM25Search.
type BM25SearchInput struct {
	Query   string
	Limit   int
	Filters domain.SearchFilters
	// Fields overrides the default per-field boosts; nil keeps the defaults.
	Fields domain.FieldWeights
}

// BM25SearchOutput defines the output for BM25Search.
type BM25SearchOutput struct {
	Results    []domain.Candidate
	Count      int
	SearchTime time.Duration
}

// BM25SearchUsecase runs a weighted-field lexical query against the search
// backend.
type BM25SearchUsecase interface {
	Execute(ctx context.Context, input BM25SearchInput) (*BM25SearchOutput, error)
}

type bm25SearchUsecase struct {
	searchRepo   domain.CaseSearchRepository
	defaultLimit int
	logger       *slog.Logger
}

// NewBM25SearchUsecase creates a new BM25SearchUsecase.
func NewBM25SearchUsecase(searchRepo domain.CaseSearchRepository, defaultLimit int, logger *slog.Logger) BM25SearchUsecase {
	return &bm25SearchUsecase{
		searchRepo:   searchRepo,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

func (u *bm25SearchUsecase) Execute(ctx context.Context, input BM25SearchInput) (*BM25SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.Invalid("query is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = u.defaultLimit
	}

	started := time.Now()
	candidates, err := u.searchRepo.SearchLexical(ctx, query, limit, input.Filters, input.Fields)
	if err != nil {
		return nil, fmt.Errorf("bm25 search: %w", err)
	}
	elapsed := time.Since(started)

	u.logger.Info("bm25_search_completed",
		slog.Int("count", len(candidates)),
		slog.Int("limit", limit),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)
	return &BM25SearchOutput{
		Results:    candidates,
		Count:      len(candidates),
		SearchTime: elapsed,
	}, nil
}
