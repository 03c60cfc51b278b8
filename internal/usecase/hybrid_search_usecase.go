package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"case-retriever/internal/domain"
	"case-retriever/internal/usecase/retrieval"
)

// HybridSearchInput defines the input parameters for HybridSearch.
type HybridSearchInput struct {
	Query   string
	Limit   int
	Filters domain.SearchFilters
	// Weights split fusion influence between the sources; nil applies the
	// {bm25: 0.4, vector: 0.6} defaults.
	Weights *retrieval.FusionWeights
	// Fields overrides the lexical per-field boosts; nil keeps the defaults.
	Fields domain.FieldWeights
}

// HybridStats counts candidates at each step of one hybrid round.
type HybridStats struct {
	LexicalCount int `json:"bm25Count"`
	VectorCount  int `json:"vectorCount"`
	OverlapCount int `json:"overlapCount"`
	FusedCount   int `json:"fusedCount"`
}

// HybridTiming breaks one hybrid round into millisecond buckets. The two
// retrievals run concurrently, so the source buckets overlap wall-clock.
type HybridTiming struct {
	LexicalMs int64 `json:"bm25Ms"`
	EmbedMs   int64 `json:"embedMs"`
	VectorMs  int64 `json:"vectorMs"`
	FusionMs  int64 `json:"fusionMs"`
	TotalMs   int64 `json:"totalMs"`
}

// HybridSearchOutput defines the output for HybridSearch.
type HybridSearchOutput struct {
	Results []domain.RankedCandidate
	Stats   HybridStats
	Timing  HybridTiming
	Model   string
	Tokens  int64
	Cost    float64
	// Degraded is set when the embedding service failed after retries and
	// the results are lexical-only.
	Degraded bool
	Warnings []string
}

// HybridSearchUsecase runs lexical and vector retrieval concurrently and
// fuses them under weighted score normalization.
type HybridSearchUsecase interface {
	Execute(ctx context.Context, input HybridSearchInput) (*HybridSearchOutput, error)
}

type hybridSearchUsecase struct {
	fetcher *candidateFetcher
	cfg     SearchConfig
	logger  *slog.Logger
}

// NewHybridSearchUsecase creates a new HybridSearchUsecase.
func NewHybridSearchUsecase(
	searchRepo domain.CaseSearchRepository,
	vectorRepo domain.CaseVectorRepository,
	embedder domain.EmbeddingClient,
	cfg SearchConfig,
	logger *slog.Logger,
) HybridSearchUsecase {
	return &hybridSearchUsecase{
		fetcher: newCandidateFetcher(searchRepo, vectorRepo, embedder, logger),
		cfg:     cfg,
		logger:  logger,
	}
}

func (u *hybridSearchUsecase) Execute(ctx context.Context, input HybridSearchInput) (*HybridSearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.Invalid("query is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = u.cfg.DefaultLimit
	}
	weights := retrieval.DefaultFusionWeights()
	if input.Weights != nil {
		weights = *input.Weights
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()

	fetched, err := u.fetcher.fetch(ctx, fetchSpec{
		Query:         query,
		PerSource:     limit,
		NumCandidates: numCandidatesFor(limit, u.cfg.MinCandidates),
		Filters:       input.Filters,
		FieldWeights:  input.Fields,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	fusionStart := time.Now()
	fused, err := retrieval.Fuse(fetched.Lexical, fetched.Vector, retrieval.FusionWeighted, weights, limit)
	if err != nil {
		return nil, err
	}
	fusionTook := time.Since(fusionStart)
	total := time.Since(started)

	out := &HybridSearchOutput{
		Results: fused,
		Stats: HybridStats{
			LexicalCount: len(fetched.Lexical),
			VectorCount:  len(fetched.Vector),
			OverlapCount: overlapCount(fused),
			FusedCount:   len(fused),
		},
		Timing: HybridTiming{
			LexicalMs: fetched.LexicalTook.Milliseconds(),
			EmbedMs:   fetched.EmbedTook.Milliseconds(),
			VectorMs:  fetched.VectorTook.Milliseconds(),
			FusionMs:  fusionTook.Milliseconds(),
			TotalMs:   total.Milliseconds(),
		},
		Model:    fetched.EmbedModel,
		Tokens:   fetched.EmbedTokens,
		Cost:     fetched.EmbedCost,
		Degraded: fetched.Degraded,
	}
	if fetched.Degraded {
		out.Warnings = append(out.Warnings, "embedding service unavailable, results are lexical-only")
	}

	u.logger.Info("hybrid_search_completed",
		slog.Int("bm25", out.Stats.LexicalCount),
		slog.Int("vector", out.Stats.VectorCount),
		slog.Int("fused", out.Stats.FusedCount),
		slog.Bool("degraded", out.Degraded),
		slog.Int64("duration_ms", total.Milliseconds()),
	)
	return out, nil
}

// numCandidatesFor widens the ANN probe past the requested limit.
func numCandidatesFor(limit, floor int) int {
	n := limit * 2
	if n < floor {
		n = floor
	}
	return n
}

// overlapCount counts fused candidates found by both retrievers.
func overlapCount(fused []domain.RankedCandidate) int {
	n := 0
	for i := range fused {
		if fused[i].LexicalRank > 0 && fused[i].VectorRank > 0 {
			n++
		}
	}
	return n
}
