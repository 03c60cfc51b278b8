package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"case-retriever/internal/domain"

	"golang.org/x/sync/errgroup"
)

// fetchSpec describes one parallel retrieval round: how many candidates to
// pull per source and with which constraints.
type fetchSpec struct {
	Query         string
	PerSource     int
	NumCandidates int
	Filters       domain.SearchFilters
	FieldWeights  domain.FieldWeights
}

// fetchResult carries both source lists plus the embedding call metadata.
// Degraded is set when the embedding service failed after retries and the
// vector side was skipped; the lexical list is still valid in that case.
type fetchResult struct {
	Lexical []domain.Candidate
	Vector  []domain.Candidate

	EmbedModel  string
	EmbedTokens int64
	EmbedCost   float64

	Degraded       bool
	DegradedReason string

	LexicalTook time.Duration
	EmbedTook   time.Duration
	VectorTook  time.Duration
}

// candidateFetcher runs the lexical and vector retrievers concurrently and
// joins them. Failure policy: a lexical or vector backend failure aborts the
// round; an embedding failure degrades it to lexical-only.
type candidateFetcher struct {
	searchRepo domain.CaseSearchRepository
	vectorRepo domain.CaseVectorRepository
	embedder   domain.EmbeddingClient
	logger     *slog.Logger
}

func newCandidateFetcher(
	searchRepo domain.CaseSearchRepository,
	vectorRepo domain.CaseVectorRepository,
	embedder domain.EmbeddingClient,
	logger *slog.Logger,
) *candidateFetcher {
	return &candidateFetcher{
		searchRepo: searchRepo,
		vectorRepo: vectorRepo,
		embedder:   embedder,
		logger:     logger,
	}
}

func (f *candidateFetcher) fetch(ctx context.Context, spec fetchSpec) (*fetchResult, error) {
	result := &fetchResult{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		started := time.Now()
		candidates, err := f.searchRepo.SearchLexical(gctx, spec.Query, spec.PerSource, spec.Filters, spec.FieldWeights)
		result.LexicalTook = time.Since(started)
		if err != nil {
			return fmt.Errorf("lexical retrieval: %w", err)
		}
		result.Lexical = candidates
		return nil
	})

	g.Go(func() error {
		embedStart := time.Now()
		embedding, err := f.embedder.EmbedQuery(gctx, spec.Query)
		result.EmbedTook = time.Since(embedStart)
		if err != nil {
			if domain.IsKind(err, domain.ErrEmbeddingFailure) {
				// Degrade to lexical-only instead of failing the round.
				result.Degraded = true
				result.DegradedReason = err.Error()
				f.logger.Warn("vector_retrieval_degraded", slog.String("error", err.Error()))
				return nil
			}
			return err
		}
		result.EmbedModel = embedding.Model
		result.EmbedTokens = embedding.TotalTokens
		result.EmbedCost = embedding.Cost

		searchStart := time.Now()
		candidates, err := f.vectorRepo.SearchVector(gctx, embedding.Vector, spec.PerSource, spec.NumCandidates, spec.Filters)
		result.VectorTook = time.Since(searchStart)
		if err != nil {
			return fmt.Errorf("vector retrieval: %w", err)
		}
		result.Vector = candidates
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.logger.Debug("parallel_retrieval_completed",
		slog.Int("lexical", len(result.Lexical)),
		slog.Int("vector", len(result.Vector)),
		slog.Bool("degraded", result.Degraded),
	)
	return result, nil
}
