package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"case-retriever/internal/domain"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// BulkEmbedInput defines the input parameters for BulkEmbed.
type BulkEmbedInput struct {
	// IDs restricts the run to specific documents; empty means every
	// document still missing a vector.
	IDs []string
	// BatchSize overrides the configured batch size when positive.
	BatchSize int
}

// BulkEmbedOutput summarises one finished run.
type BulkEmbedOutput struct {
	JobID      string  `json:"jobId"`
	Total      int     `json:"total"`
	Processed  int     `json:"processed"`
	Failed     int     `json:"failed"`
	Tokens     int64   `json:"tokens"`
	Cost       float64 `json:"cost"`
	Model      string  `json:"model"`
	DurationMs int64   `json:"durationMs"`
}

// BulkEmbedStatus reports embedding coverage of the corpus.
type BulkEmbedStatus struct {
	Total    int64   `json:"total"`
	Embedded int64   `json:"embedded"`
	Missing  int64   `json:"missing"`
	Coverage float64 `json:"coverage"`
	Model    string  `json:"model"`
}

// BulkEmbedUsecase builds embeddings for documents that lack one. Execute is
// synchronous and meant to run on a worker goroutine; it reports progress
// through the job registry so API callers can poll the job while it runs.
type BulkEmbedUsecase interface {
	Execute(ctx context.Context, jobID string, input BulkEmbedInput) (*BulkEmbedOutput, error)
	Status(ctx context.Context) (*BulkEmbedStatus, error)
}

type bulkEmbedUsecase struct {
	writeRepo domain.CaseWriteRepository
	embedder  domain.EmbeddingClient
	registry  domain.JobRegistry
	txManager domain.TransactionManager
	cfg       BulkEmbedConfig
	logger    *slog.Logger
}

// NewBulkEmbedUsecase creates a new BulkEmbedUsecase.
func NewBulkEmbedUsecase(
	writeRepo domain.CaseWriteRepository,
	embedder domain.EmbeddingClient,
	registry domain.JobRegistry,
	txManager domain.TransactionManager,
	cfg BulkEmbedConfig,
	logger *slog.Logger,
) BulkEmbedUsecase {
	return &bulkEmbedUsecase{
		writeRepo: writeRepo,
		embedder:  embedder,
		registry:  registry,
		txManager: txManager,
		cfg:       cfg,
		logger:    logger,
	}
}

type batchOutcome struct {
	result domain.JobBatchResult
	tokens int64
	cost   float64
}

// Execute embeds every listed document in batches. Batches run concurrently
// up to the in-flight cap, with launches paced by the group delay so the
// embedding service is never burst-loaded. A failed batch is recorded and
// skipped; the job fails only when no batch succeeded.
func (u *bulkEmbedUsecase) Execute(ctx context.Context, jobID string, input BulkEmbedInput) (*BulkEmbedOutput, error) {
	started := time.Now()
	batchSize := u.cfg.BatchSize
	if input.BatchSize > 0 {
		batchSize = input.BatchSize
	}

	// 1. List the work.
	docs, err := u.writeRepo.ListMissingEmbeddings(ctx, input.IDs, 0)
	if err != nil {
		u.finishJob(jobID, domain.JobStatusFailed, err.Error())
		return nil, fmt.Errorf("bulk embed: %w", err)
	}
	u.registry.Update(jobID, func(j *domain.Job) { j.Total = len(docs) })

	out := &BulkEmbedOutput{JobID: jobID, Total: len(docs), Model: u.embedder.Model()}
	if len(docs) == 0 {
		u.finishJob(jobID, domain.JobStatusCompleted, "")
		out.DurationMs = time.Since(started).Milliseconds()
		u.logger.Info("bulk_embed_noop", slog.String("job_id", jobID))
		return out, nil
	}

	// 2. Embed batch by batch. Each goroutine owns one outcome slot, so the
	// fold after Wait needs no locking.
	batches := chunkDocuments(docs, batchSize)
	outcomes := make([]batchOutcome, len(batches))
	limiter := rate.NewLimiter(rate.Every(u.cfg.GroupDelay), 1)

	var g errgroup.Group
	g.SetLimit(u.cfg.MaxInFlight)
	for i, batch := range batches {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = u.processBatch(ctx, jobID, i, batch)
			return nil
		})
	}
	g.Wait()

	// 3. Fold the outcomes and settle the job.
	var firstErr string
	for _, o := range outcomes {
		out.Processed += o.result.Processed
		out.Failed += o.result.Failed
		out.Tokens += o.tokens
		out.Cost += o.cost
		if firstErr == "" && o.result.Error != "" {
			firstErr = o.result.Error
		}
	}
	out.DurationMs = time.Since(started).Milliseconds()

	if out.Processed == 0 {
		if firstErr == "" {
			firstErr = "no batch completed"
		}
		u.finishJob(jobID, domain.JobStatusFailed, firstErr)
		return out, domain.WrapError(domain.ErrEmbeddingFailure, "bulk embed", errors.New(firstErr))
	}
	u.finishJob(jobID, domain.JobStatusCompleted, "")

	u.logger.Info("bulk_embed_completed",
		slog.String("job_id", jobID),
		slog.Int("total", out.Total),
		slog.Int("processed", out.Processed),
		slog.Int("failed", out.Failed),
		slog.Int64("tokens", out.Tokens),
		slog.Int64("duration_ms", out.DurationMs),
	)
	return out, nil
}

func (u *bulkEmbedUsecase) processBatch(ctx context.Context, jobID string, index int, batch []domain.CaseDocument) batchOutcome {
	name := fmt.Sprintf("batch-%d", index+1)
	outcome := batchOutcome{result: domain.JobBatchResult{Name: name}}

	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].EmbeddingText()
	}

	embedded, err := u.embedder.EmbedTexts(ctx, texts)
	if err == nil && len(embedded.Vectors) != len(batch) {
		err = fmt.Errorf("embedding count mismatch: got %d, want %d", len(embedded.Vectors), len(batch))
	}
	if err == nil {
		updates := make([]domain.EmbeddingUpdate, len(batch))
		for i := range batch {
			updates[i] = domain.EmbeddingUpdate{ID: batch[i].ID, Embedding: embedded.Vectors[i]}
		}
		// One transaction per batch: all of its vectors land or none do.
		err = u.txManager.RunInTx(ctx, func(ctx context.Context) error {
			return u.writeRepo.UpdateEmbeddings(ctx, updates)
		})
	}

	if err != nil {
		outcome.result.Failed = len(batch)
		outcome.result.Error = err.Error()
		u.logger.Warn("bulk_embed_batch_failed",
			slog.String("job_id", jobID),
			slog.String("batch", name),
			slog.Int("size", len(batch)),
			slog.String("error", err.Error()),
		)
	} else {
		outcome.result.Processed = len(batch)
		outcome.tokens = embedded.TotalTokens
		outcome.cost = embedded.Cost
	}

	u.registry.Update(jobID, func(j *domain.Job) {
		j.Progress += len(batch)
		j.Results = append(j.Results, outcome.result)
	})
	return outcome
}

// Status reports how much of the corpus already carries a vector.
func (u *bulkEmbedUsecase) Status(ctx context.Context) (*BulkEmbedStatus, error) {
	total, embedded, err := u.writeRepo.CountEmbeddingCoverage(ctx)
	if err != nil {
		return nil, fmt.Errorf("embedding status: %w", err)
	}
	status := &BulkEmbedStatus{
		Total:    total,
		Embedded: embedded,
		Missing:  total - embedded,
		Model:    u.embedder.Model(),
	}
	if total > 0 {
		status.Coverage = float64(embedded) / float64(total)
	}
	return status, nil
}

func (u *bulkEmbedUsecase) finishJob(jobID string, status domain.JobStatus, errText string) {
	now := time.Now()
	if err := u.registry.Update(jobID, func(j *domain.Job) {
		j.Status = status
		j.Error = errText
		j.EndTime = &now
	}); err != nil {
		u.logger.Warn("job_update_failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}

func chunkDocuments(docs []domain.CaseDocument, size int) [][]domain.CaseDocument {
	if size <= 0 {
		size = DefaultBulkEmbedConfig().BatchSize
	}
	var batches [][]domain.CaseDocument
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		batches = append(batches, docs[start:end])
	}
	return batches
}
