package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"case-retriever/internal/domain"
	"case-retriever/internal/infra/logger"
	"case-retriever/internal/infra/metrics"
	"case-retriever/internal/usecase"
)

const (
	defaultQueueSize = 4
	jobTimeout       = 30 * time.Minute
)

type embedJob struct {
	id    string
	input usecase.BulkEmbedInput
}

// EmbedWorker runs bulk embedding jobs one at a time on a background
// goroutine. Jobs live in the in-process registry, so anything still queued
// or running when the process exits is lost; callers re-enqueue after a
// restart.
type EmbedWorker struct {
	bulkEmbed usecase.BulkEmbedUsecase
	registry  domain.JobRegistry
	metrics   *metrics.SearchMetrics
	logger    *slog.Logger
	jobs      chan embedJob
	stopChan  chan struct{}
}

// NewEmbedWorker creates the worker. metrics may be nil, which disables
// instrumentation.
func NewEmbedWorker(
	bulkEmbed usecase.BulkEmbedUsecase,
	registry domain.JobRegistry,
	m *metrics.SearchMetrics,
	queueSize int,
	logger *slog.Logger,
) *EmbedWorker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &EmbedWorker{
		bulkEmbed: bulkEmbed,
		registry:  registry,
		metrics:   m,
		logger:    logger,
		jobs:      make(chan embedJob, queueSize),
		stopChan:  make(chan struct{}),
	}
}

func (w *EmbedWorker) Start() {
	w.logger.Info("starting embed worker")
	go w.run()
}

func (w *EmbedWorker) Stop() {
	w.logger.Info("stopping embed worker")
	close(w.stopChan)
}

// Enqueue registers a job and hands it to the worker. The queue never
// blocks: when it is full the job is settled as failed immediately and the
// caller gets a busy error.
func (w *EmbedWorker) Enqueue(input usecase.BulkEmbedInput) (*domain.Job, error) {
	job := w.registry.Create(0)
	select {
	case w.jobs <- embedJob{id: job.ID, input: input}:
		w.logger.Info("embed_job_enqueued", slog.String("job_id", job.ID))
		return job, nil
	default:
		now := time.Now().UTC()
		if err := w.registry.Update(job.ID, func(j *domain.Job) {
			j.Status = domain.JobStatusFailed
			j.Error = "worker queue full"
			j.EndTime = &now
		}); err != nil {
			w.logger.Warn("job_update_failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
		return nil, domain.WrapError(domain.ErrBusy, "enqueue embed job", errors.New("worker queue full"))
	}
}

func (w *EmbedWorker) run() {
	for {
		select {
		case <-w.stopChan:
			return
		case job := <-w.jobs:
			w.process(job)
		}
	}
}

func (w *EmbedWorker) process(job embedJob) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	ctx = logger.WithJobID(ctx, job.id)

	w.logger.InfoContext(ctx, "embed_job_started")
	out, err := w.bulkEmbed.Execute(ctx, job.id, job.input)
	if err != nil {
		w.logger.ErrorContext(ctx, "embed_job_failed", slog.String("error", err.Error()))
		return
	}
	if w.metrics != nil {
		w.metrics.AddDocumentsEmbedded(out.Processed)
	}
	w.logger.InfoContext(ctx, "embed_job_finished")
}
