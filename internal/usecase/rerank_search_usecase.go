package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"case-retriever/internal/domain"
	"case-retriever/internal/usecase/retrieval"
)

// RerankSearchInput defines the input parameters for RerankSearch.
type RerankSearchInput struct {
	Query   string
	Limit   int
	Filters domain.SearchFilters
	// FusionMethod is one of rrf, weighted, reciprocal; empty means rrf.
	FusionMethod string
	// RerankTopK is the candidate pool fetched per source; <= 0 applies the
	// configured default.
	RerankTopK int
	Weights    *retrieval.FusionWeights
}

// RerankEntry is one row of the before/after ranking comparison.
type RerankEntry struct {
	ID         string                   `json:"id"`
	Title      string                   `json:"title,omitempty"`
	Rank       int                      `json:"rank"`
	Score      float64                  `json:"score"`
	Sources    []domain.CandidateSource `json:"sources"`
	RankChange int                      `json:"rankChange,omitempty"`
}

// RerankSearchOutput defines the output for RerankSearch.
type RerankSearchOutput struct {
	FusionMethod retrieval.FusionMethod
	Results      []domain.RankedCandidate
	// BeforeReranking is the candidate pool ordered by best original source
	// rank; AfterReranking is the same pool in fused order.
	BeforeReranking []RerankEntry
	AfterReranking  []RerankEntry
	Stats           HybridStats
	Timing          HybridTiming
	Model           string
	Tokens          int64
	Cost            float64
	Degraded        bool
	Warnings        []string
}

// RerankSearchUsecase fetches a deep candidate pool per source and reranks it
// under a caller-selected fusion policy, reporting the ranking movement.
type RerankSearchUsecase interface {
	Execute(ctx context.Context, input RerankSearchInput) (*RerankSearchOutput, error)
}

type rerankSearchUsecase struct {
	fetcher *candidateFetcher
	cfg     SearchConfig
	logger  *slog.Logger
}

// NewRerankSearchUsecase creates a new RerankSearchUsecase.
func NewRerankSearchUsecase(
	searchRepo domain.CaseSearchRepository,
	vectorRepo domain.CaseVectorRepository,
	embedder domain.EmbeddingClient,
	cfg SearchConfig,
	logger *slog.Logger,
) RerankSearchUsecase {
	return &rerankSearchUsecase{
		fetcher: newCandidateFetcher(searchRepo, vectorRepo, embedder, logger),
		cfg:     cfg,
		logger:  logger,
	}
}

func (u *rerankSearchUsecase) Execute(ctx context.Context, input RerankSearchInput) (*RerankSearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.Invalid("query is required")
	}
	method, err := retrieval.ParseFusionMethod(input.FusionMethod)
	if err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = u.cfg.DefaultLimit
	}
	topK := input.RerankTopK
	if topK <= 0 {
		topK = u.cfg.RerankTopK
	}
	if topK < limit {
		topK = limit
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
		PerSource:     topK,
		NumCandidates: numCandidatesFor(topK, u.cfg.MinCandidates),
		Filters:       input.Filters,
	})
	if err != nil {
		return nil, fmt.Errorf("rerank search: %w", err)
	}

	fusionStart := time.Now()
	fused, err := retrieval.Fuse(fetched.Lexical, fetched.Vector, method, weights, 0)
	if err != nil {
		return nil, err
	}
	fusionTook := time.Since(fusionStart)

	results := fused
	if len(results) > limit {
		results = results[:limit]
	}
	total := time.Since(started)

	out := &RerankSearchOutput{
		FusionMethod:    method,
		Results:         results,
		BeforeReranking: entriesBySourceRank(fused),
		AfterReranking:  entriesByFusedRank(fused),
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

	u.logger.Info("rerank_search_completed",
		slog.String("method", string(method)),
		slog.Int("pool", topK),
		slog.Int("fused", len(fused)),
		slog.Bool("degraded", out.Degraded),
		slog.Int64("duration_ms", total.Milliseconds()),
	)
	return out, nil
}

// entriesBySourceRank orders the fused pool the way it looked before fusion:
// by best original source rank, ties to the lexical side, then id.
func entriesBySourceRank(fused []domain.RankedCandidate) []RerankEntry {
	ordered := make([]domain.RankedCandidate, len(fused))
	copy(ordered, fused)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := ordered[i].BestOriginalRank(), ordered[j].BestOriginalRank()
		if ri != rj {
			return ri < rj
		}
		li, lj := ordered[i].LexicalRank > 0, ordered[j].LexicalRank > 0
		if li != lj {
			return li
		}
		return ordered[i].Document.ID < ordered[j].Document.ID
	})

	entries := make([]RerankEntry, 0, len(ordered))
	for i := range ordered {
		entries = append(entries, RerankEntry{
			ID:      ordered[i].Document.ID,
			Title:   ordered[i].Document.DisplayTitle(),
			Rank:    i + 1,
			Score:   sourceScore(&ordered[i]),
			Sources: ordered[i].Sources,
		})
	}
	return entries
}

// entriesByFusedRank projects the fused ordering with its rank movement.
func entriesByFusedRank(fused []domain.RankedCandidate) []RerankEntry {
	entries := make([]RerankEntry, 0, len(fused))
	for i := range fused {
		entries = append(entries, RerankEntry{
			ID:         fused[i].Document.ID,
			Title:      fused[i].Document.DisplayTitle(),
			Rank:       i + 1,
			Score:      fused[i].FusedScore,
			Sources:    fused[i].Sources,
			RankChange: fused[i].RankChange,
		})
	}
	return entries
}

// sourceScore is the raw score from the source that ranked the item best.
func sourceScore(rc *domain.RankedCandidate) float64 {
	if rc.LexicalRank > 0 && (rc.VectorRank == 0 || rc.LexicalRank <= rc.VectorRank) {
		return rc.LexicalScore
	}
	return rc.VectorScore
}
