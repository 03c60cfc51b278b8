package usecase

import (
	"context"
	"log/slog"

	"case-retriever/internal/domain"
	"case-retriever/internal/usecase/retrieval"
)

// PreprocessQueryInput defines the input parameters for PreprocessQuery.
type PreprocessQueryInput struct {
	Query string
	// Options tunes the normalizer; nil applies the pipeline defaults.
	Options *domain.TransformOptions
}

// PreprocessQueryOutput defines the output for PreprocessQuery.
type PreprocessQueryOutput struct {
	Transformation domain.QueryTransformation
}

// PreprocessQueryUsecase normalizes and expands a raw query without running
// retrieval. An empty query yields an empty transformation record, not an
// error; rejecting it is the retrieval callers' decision.
type PreprocessQueryUsecase interface {
	Execute(ctx context.Context, input PreprocessQueryInput) (*PreprocessQueryOutput, error)
}

type preprocessQueryUsecase struct {
	logger *slog.Logger
}

// NewPreprocessQueryUsecase creates a new PreprocessQueryUsecase.
func NewPreprocessQueryUsecase(logger *slog.Logger) PreprocessQueryUsecase {
	return &preprocessQueryUsecase{logger: logger}
}

func (u *preprocessQueryUsecase) Execute(_ context.Context, input PreprocessQueryInput) (*PreprocessQueryOutput, error) {
	opts := domain.DefaultTransformOptions()
	if input.Options != nil {
		opts = *input.Options
	}

	transformation := retrieval.Transform(input.Query, opts)

	u.logger.Debug("query_preprocessed",
		slog.String("normalized", transformation.Normalized),
		slog.Int("expansions", len(transformation.Expansions)),
		slog.Int("abbreviations", len(transformation.AbbreviationsApplied)),
	)
	return &PreprocessQueryOutput{Transformation: transformation}, nil
}
