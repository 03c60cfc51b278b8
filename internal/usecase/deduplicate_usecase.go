package usecase

import (
	"context"
	"log/slog"

	"case-retriever/internal/domain"
	"case-retriever/internal/usecase/retrieval"
)

// DeduplicateInput defines the input parameters for Deduplicate.
type DeduplicateInput struct {
	Results []domain.RankedCandidate
	// Threshold is the Jaccard cutoff; nil applies the standalone default.
	Threshold *float64
}

// DedupStats summarizes one deduplication round.
type DedupStats struct {
	InputCount   int     `json:"inputCount"`
	KeptCount    int     `json:"keptCount"`
	RemovedCount int     `json:"removedCount"`
	Threshold    float64 `json:"threshold"`
}

// DeduplicateOutput defines the output for Deduplicate.
type DeduplicateOutput struct {
	Deduplicated []domain.RankedCandidate
	Duplicates   []retrieval.DuplicateRecord
	Stats        DedupStats
}

// DeduplicateUsecase removes near-duplicate candidates by title similarity,
// preserving input order. Empty input is an empty result, not an error.
type DeduplicateUsecase interface {
	Execute(ctx context.Context, input DeduplicateInput) (*DeduplicateOutput, error)
}

type deduplicateUsecase struct {
	logger *slog.Logger
}

// NewDeduplicateUsecase creates a new DeduplicateUsecase.
func NewDeduplicateUsecase(logger *slog.Logger) DeduplicateUsecase {
	return &deduplicateUsecase{logger: logger}
}

func (u *deduplicateUsecase) Execute(_ context.Context, input DeduplicateInput) (*DeduplicateOutput, error) {
	threshold := retrieval.DefaultDedupThreshold
	if input.Threshold != nil {
		threshold = *input.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, domain.Invalid("threshold must be in [0, 1], got %v", threshold)
	}

	result := retrieval.Deduplicate(input.Results, threshold)

	u.logger.Info("deduplication_completed",
		slog.Int("input", len(input.Results)),
		slog.Int("kept", len(result.Kept)),
		slog.Int("removed", len(result.Removed)),
		slog.Float64("threshold", threshold),
	)
	return &DeduplicateOutput{
		Deduplicated: result.Kept,
		Duplicates:   result.Removed,
		Stats: DedupStats{
			InputCount:   len(input.Results),
			KeptCount:    len(result.Kept),
			RemovedCount: len(result.Removed),
			Threshold:    threshold,
		},
	}, nil
}
