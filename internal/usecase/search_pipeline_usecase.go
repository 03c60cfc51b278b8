package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"case-retriever/internal/domain"
	"case-retriever/internal/usecase/retrieval"

	"golang.org/x/sync/semaphore"
)

// Stage names of the retrieval pipeline, in execution order.
const (
	StageValidate    = "validate"
	StageNormalize   = "normalize"
	StageRetrieve    = "retrieve"
	StageFuse        = "fuse"
	StageDeduplicate = "deduplicate"
	StageSummarize   = "summarize"
)

// Progress checkpoints emitted on the stream. Monotonically non-decreasing
// within a run; a successful run ends at 100.
const (
	CheckpointValidate    = 5
	CheckpointNormalize   = 10
	CheckpointRetrieve    = 35
	CheckpointFuse        = 45
	CheckpointDeduplicate = 55
	CheckpointSummarize   = 75
	CheckpointDone        = 100
)

// StageRecord is the execution record of one pipeline stage.
type StageRecord struct {
	Name       string  `json:"name"`
	Checkpoint int     `json:"checkpoint"`
	DurationMs int64   `json:"durationMs"`
	In         int     `json:"in"`
	Out        int     `json:"out"`
	Tokens     int64   `json:"tokens,omitempty"`
	Cost       float64 `json:"cost,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// PipelineTotals rolls the stage records up.
type PipelineTotals struct {
	DurationMs int64   `json:"durationMs"`
	Tokens     int64   `json:"tokens"`
	Cost       float64 `json:"cost"`
}

// PipelineEventKind tags one event on the progress stream.
type PipelineEventKind string

const (
	PipelineEventProgress PipelineEventKind = "progress"
	PipelineEventStage    PipelineEventKind = "stage"
	PipelineEventDone     PipelineEventKind = "done"
	PipelineEventError    PipelineEventKind = "error"
)

// PipelineEvent is one progress-stream message.
type PipelineEvent struct {
	Kind       PipelineEventKind     `json:"kind"`
	Checkpoint int                   `json:"checkpoint,omitempty"`
	Stage      string                `json:"stage,omitempty"`
	Record     *StageRecord          `json:"record,omitempty"`
	Output     *SearchPipelineOutput `json:"output,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// SearchPipelineInput defines the input parameters for SearchPipeline.
type SearchPipelineInput struct {
	Query   string
	Limit   int
	Filters domain.SearchFilters
	// FusionMethod is one of rrf, weighted, reciprocal; empty means rrf.
	FusionMethod string
	Weights      *retrieval.FusionWeights
	// SummaryType is concise or detailed; empty means concise.
	SummaryType string
	// TransformOptions tunes the normalizer; nil applies the defaults.
	TransformOptions *domain.TransformOptions
}

// SearchPipelineOutput is the full execution record of one pipeline run.
type SearchPipelineOutput struct {
	Query             string                      `json:"query"`
	Transformation    domain.QueryTransformation  `json:"transformation"`
	CandidatesLexical []domain.Candidate          `json:"candidatesLexical"`
	CandidatesVector  []domain.Candidate          `json:"candidatesVector"`
	Fused             []domain.RankedCandidate    `json:"fused"`
	Deduplicated      []domain.RankedCandidate    `json:"deduplicated"`
	Duplicates        []retrieval.DuplicateRecord `json:"duplicates,omitempty"`
	Summary           *SummarizeCasesOutput       `json:"summary,omitempty"`
	Stages            []StageRecord               `json:"stages"`
	Totals            PipelineTotals              `json:"totals"`
	Degraded          bool                        `json:"degraded"`
	Warnings          []string                    `json:"warnings,omitempty"`
}

// SearchPipelineUsecase drives the full retrieval pipeline: validate,
// normalize, retrieve both sources in parallel, fuse, deduplicate, summarize.
// A summarizer failure degrades to a partial result; an embedding failure
// degrades to lexical-only. Both run surfaces share one implementation:
// Execute returns the final record, Stream additionally emits progress,
// stage, and terminal events.
type SearchPipelineUsecase interface {
	Execute(ctx context.Context, input SearchPipelineInput) (*SearchPipelineOutput, error)
	Stream(ctx context.Context, input SearchPipelineInput) <-chan PipelineEvent
}

type searchPipelineUsecase struct {
	fetcher    *candidateFetcher
	summarizer SummarizeCasesUsecase
	admission  *semaphore.Weighted
	cfg        SearchConfig
	logger     *slog.Logger
}

// NewSearchPipelineUsecase creates a new SearchPipelineUsecase. Admission is
// bounded by cfg.AdmissionSlots, sized to the backend connection pool.
func NewSearchPipelineUsecase(
	searchRepo domain.CaseSearchRepository,
	vectorRepo domain.CaseVectorRepository,
	embedder domain.EmbeddingClient,
	summarizer SummarizeCasesUsecase,
	cfg SearchConfig,
	logger *slog.Logger,
) SearchPipelineUsecase {
	return &searchPipelineUsecase{
		fetcher:    newCandidateFetcher(searchRepo, vectorRepo, embedder, logger),
		summarizer: summarizer,
		admission:  semaphore.NewWeighted(cfg.AdmissionSlots),
		cfg:        cfg,
		logger:     logger,
	}
}

// Execute runs the pipeline to completion. On failure the returned output
// still carries the stage records completed before the failing stage.
func (u *searchPipelineUsecase) Execute(ctx context.Context, input SearchPipelineInput) (*SearchPipelineOutput, error) {
	return u.run(ctx, input, nil)
}

// Stream runs the pipeline and emits progress/stage events while it goes,
// ending with a done event carrying the full output, or an error event.
func (u *searchPipelineUsecase) Stream(ctx context.Context, input SearchPipelineInput) <-chan PipelineEvent {
	events := make(chan PipelineEvent, 8)
	go func() {
		defer close(events)
		emit := func(ev PipelineEvent) bool {
			select {
			case <-ctx.Done():
				return false
			case events <- ev:
				return true
			}
		}
		out, err := u.run(ctx, input, emit)
		if err != nil {
			emit(PipelineEvent{Kind: PipelineEventError, Error: err.Error()})
			return
		}
		emit(PipelineEvent{Kind: PipelineEventDone, Checkpoint: CheckpointDone, Output: out})
	}()
	return events
}

func (u *searchPipelineUsecase) run(ctx context.Context, input SearchPipelineInput, emit func(PipelineEvent) bool) (*SearchPipelineOutput, error) {
	if emit == nil {
		emit = func(PipelineEvent) bool { return true }
	}

	// Admission. The pipeline never queues: wait at most the configured
	// budget for a slot, then fail busy.
	admitCtx, cancelAdmit := context.WithTimeout(ctx, u.cfg.AdmissionWait)
	err := u.admission.Acquire(admitCtx, 1)
	cancelAdmit()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pipeline admission: %w", ctx.Err())
		}
		return nil, domain.WrapError(domain.ErrBusy, "pipeline admission", err)
	}
	defer u.admission.Release(1)

	ctx, cancel := context.WithTimeout(ctx, u.cfg.PipelineTimeout)
	defer cancel()

	started := time.Now()
	out := &SearchPipelineOutput{Query: input.Query}
	tracker := &stageTracker{out: out, emit: emit}

	// 1. Validate. Everything the caller can get wrong is rejected here,
	// before any remote work.
	stageStart := time.Now()
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return tracker.abort(StageValidate, CheckpointValidate, stageStart, 0, domain.Invalid("query is required"))
	}
	method, err := retrieval.ParseFusionMethod(input.FusionMethod)
	if err != nil {
		return tracker.abort(StageValidate, CheckpointValidate, stageStart, 0, err)
	}
	weights := retrieval.DefaultFusionWeights()
	if input.Weights != nil {
		weights = *input.Weights
	}
	if err := weights.Validate(); err != nil {
		return tracker.abort(StageValidate, CheckpointValidate, stageStart, 0, err)
	}
	style, err := ParseSummaryStyle(input.SummaryType)
	if err != nil {
		return tracker.abort(StageValidate, CheckpointValidate, stageStart, 0, err)
	}
	limit := input.Limit
	if limit <= 0 {
		limit = u.cfg.DefaultLimit
	}
	if !tracker.complete(StageValidate, CheckpointValidate, stageStart, 0, 0, 0, 0, "") {
		return out, streamAborted(ctx)
	}

	// 2. Normalize.
	stageStart = time.Now()
	opts := domain.DefaultTransformOptions()
	if input.TransformOptions != nil {
		opts = *input.TransformOptions
	}
	out.Transformation = retrieval.Transform(query, opts)
	searchQuery := out.Transformation.Normalized
	if !tracker.complete(StageNormalize, CheckpointNormalize, stageStart, 0, len(out.Transformation.Expansions), 0, 0, "") {
		return out, streamAborted(ctx)
	}

	// 3. Retrieve lexical and vector concurrently.
	stageStart = time.Now()
	fetched, err := u.fetcher.fetch(ctx, fetchSpec{
		Query:         searchQuery,
		PerSource:     u.cfg.RerankTopK,
		NumCandidates: numCandidatesFor(u.cfg.RerankTopK, u.cfg.MinCandidates),
		Filters:       input.Filters,
	})
	if err != nil {
		return tracker.abort(StageRetrieve, CheckpointRetrieve, stageStart, 0, u.mapDeadline(ctx, err))
	}
	out.CandidatesLexical = fetched.Lexical
	out.CandidatesVector = fetched.Vector
	if fetched.Degraded {
		out.Degraded = true
		out.Warnings = append(out.Warnings, fetched.DegradedReason)
	}
	retrieved := len(fetched.Lexical) + len(fetched.Vector)
	if !tracker.complete(StageRetrieve, CheckpointRetrieve, stageStart, 0, retrieved, fetched.EmbedTokens, fetched.EmbedCost, "") {
		return out, streamAborted(ctx)
	}

	// 4. Fuse.
	stageStart = time.Now()
	fused, err := retrieval.Fuse(fetched.Lexical, fetched.Vector, method, weights, 0)
	if err != nil {
		return tracker.abort(StageFuse, CheckpointFuse, stageStart, retrieved, err)
	}
	out.Fused = fused
	if !tracker.complete(StageFuse, CheckpointFuse, stageStart, retrieved, len(fused), 0, 0, "") {
		return out, streamAborted(ctx)
	}

	// 5. Deduplicate, then cut to the caller's limit.
	stageStart = time.Now()
	dedup := retrieval.Deduplicate(fused, u.cfg.DedupThreshold)
	kept := dedup.Kept
	if len(kept) > limit {
		kept = kept[:limit]
	}
	out.Deduplicated = kept
	out.Duplicates = dedup.Removed
	if !tracker.complete(StageDeduplicate, CheckpointDeduplicate, stageStart, len(fused), len(kept), 0, 0, "") {
		return out, streamAborted(ctx)
	}

	// 6. Summarize. Failure here never aborts the run; the result ships
	// without a summary and the error becomes a warning.
	stageStart = time.Now()
	var stageErr string
	var stageTokens int64
	var stageCost float64
	if len(kept) > 0 {
		summary, err := u.summarizer.Execute(ctx, SummarizeCasesInput{
			Results:     documentsOf(kept),
			SummaryType: string(style),
		})
		if err != nil {
			stageErr = err.Error()
			out.Warnings = append(out.Warnings, err.Error())
			u.logger.Warn("pipeline_summary_skipped", slog.String("error", err.Error()))
		} else {
			out.Summary = summary
			out.Warnings = append(out.Warnings, summary.Warnings...)
			stageTokens = summary.Usage.TotalTokens
			stageCost = summary.Cost
		}
	}
	if !tracker.complete(StageSummarize, CheckpointSummarize, stageStart, len(kept), summaryCount(out.Summary), stageTokens, stageCost, stageErr) {
		return out, streamAborted(ctx)
	}

	// 7. Return.
	out.Totals.DurationMs = time.Since(started).Milliseconds()
	if !emit(PipelineEvent{Kind: PipelineEventProgress, Stage: "return", Checkpoint: CheckpointDone}) {
		return out, streamAborted(ctx)
	}

	u.logger.Info("pipeline_completed",
		slog.Int("lexical", len(out.CandidatesLexical)),
		slog.Int("vector", len(out.CandidatesVector)),
		slog.Int("fused", len(out.Fused)),
		slog.Int("results", len(out.Deduplicated)),
		slog.Int("duplicates", len(out.Duplicates)),
		slog.Bool("degraded", out.Degraded),
		slog.Bool("summarized", out.Summary != nil),
		slog.Int64("tokens", out.Totals.Tokens),
		slog.Int64("duration_ms", out.Totals.DurationMs),
	)
	return out, nil
}

// mapDeadline rewrites a stage failure caused by the pipeline deadline into
// the Timeout kind so callers can tell it apart from a backend outage.
func (u *searchPipelineUsecase) mapDeadline(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTimeout, "pipeline deadline", err)
	}
	return err
}

func streamAborted(ctx context.Context) error {
	return fmt.Errorf("pipeline stream aborted: %w", ctx.Err())
}

// stageTracker appends stage records, accumulates totals, and mirrors them
// onto the progress stream.
type stageTracker struct {
	out  *SearchPipelineOutput
	emit func(PipelineEvent) bool
}

// complete records a finished stage and emits its stage and progress events.
// A non-empty errText marks a stage that failed without aborting the run.
// Returns false when the stream consumer is gone.
func (t *stageTracker) complete(name string, checkpoint int, started time.Time, in, out int, tokens int64, cost float64, errText string) bool {
	record := StageRecord{
		Name:       name,
		Checkpoint: checkpoint,
		DurationMs: time.Since(started).Milliseconds(),
		In:         in,
		Out:        out,
		Tokens:     tokens,
		Cost:       cost,
		Error:      errText,
	}
	t.out.Stages = append(t.out.Stages, record)
	t.out.Totals.Tokens += tokens
	t.out.Totals.Cost += cost
	if !t.emit(PipelineEvent{Kind: PipelineEventStage, Stage: name, Record: &record}) {
		return false
	}
	return t.emit(PipelineEvent{Kind: PipelineEventProgress, Stage: name, Checkpoint: checkpoint})
}

// abort records the failing stage and returns the partial output with the
// error.
func (t *stageTracker) abort(name string, checkpoint int, started time.Time, in int, err error) (*SearchPipelineOutput, error) {
	record := StageRecord{
		Name:       name,
		Checkpoint: checkpoint,
		DurationMs: time.Since(started).Milliseconds(),
		In:         in,
		Error:      err.Error(),
	}
	t.out.Stages = append(t.out.Stages, record)
	t.emit(PipelineEvent{Kind: PipelineEventStage, Stage: name, Record: &record})
	return t.out, err
}

func documentsOf(candidates []domain.RankedCandidate) []domain.CaseDocument {
	docs := make([]domain.CaseDocument, 0, len(candidates))
	for i := range candidates {
		docs = append(docs, candidates[i].Document)
	}
	return docs
}

func summaryCount(summary *SummarizeCasesOutput) int {
	if summary == nil {
		return 0
	}
	return 1
}
