package searchhttp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"case-retriever/internal/domain"
	"case-retriever/internal/infra/metrics"
	"case-retriever/internal/usecase"
)

// JobDispatcher hands bulk embedding work to the background worker. The
// returned job is already registered so callers can poll it immediately.
type JobDispatcher interface {
	Enqueue(input usecase.BulkEmbedInput) (*domain.Job, error)
}

// Usecases groups the retrieval operations the handler serves.
type Usecases struct {
	VectorSearch usecase.VectorSearchUsecase
	BM25Search   usecase.BM25SearchUsecase
	HybridSearch usecase.HybridSearchUsecase
	RerankSearch usecase.RerankSearchUsecase
	Preprocess   usecase.PreprocessQueryUsecase
	Deduplicate  usecase.DeduplicateUsecase
	Summarize    usecase.SummarizeCasesUsecase
	Pipeline     usecase.SearchPipelineUsecase
	BulkEmbed    usecase.BulkEmbedUsecase
}

type Handler struct {
	uc         Usecases
	metadata   domain.MetadataRepository
	jobs       domain.JobRegistry
	dispatcher JobDispatcher
	metrics    *metrics.SearchMetrics
	service    string
	logger     *slog.Logger
}

// NewHandler creates the HTTP handler set. metrics may be nil, which
// disables instrumentation.
func NewHandler(
	uc Usecases,
	metadata domain.MetadataRepository,
	jobs domain.JobRegistry,
	dispatcher JobDispatcher,
	m *metrics.SearchMetrics,
	service string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		uc:         uc,
		metadata:   metadata,
		jobs:       jobs,
		dispatcher: dispatcher,
		metrics:    m,
		service:    service,
		logger:     logger,
	}
}

// RegisterRoutes mounts every API route on the given Echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")

	search := api.Group("/search")
	search.POST("", h.VectorSearch)
	search.POST("/bm25", h.BM25Search)
	search.POST("/hybrid", h.HybridSearch)
	search.POST("/rerank", h.RerankSearch)
	search.POST("/preprocess", h.PreprocessQuery)
	search.POST("/deduplicate", h.Deduplicate)
	search.POST("/summarize", h.SummarizeCases)
	search.POST("/pipeline", h.RunPipeline)
	search.POST("/pipeline/stream", h.StreamPipeline)

	api.GET("/metadata/distinct", h.DistinctMetadata)
	api.GET("/jobs/active", h.ActiveJobs)
	api.GET("/jobs/:id", h.JobByID)
	api.POST("/embeddings/generate", h.GenerateEmbeddings)
	api.GET("/embeddings/status", h.EmbeddingStatus)
}

// Pure ANN search over the corpus.
// (POST /api/search)
func (h *Handler) VectorSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}

	started := time.Now()
	output, err := h.uc.VectorSearch.Execute(c.Request().Context(), usecase.VectorSearchInput{
		Query:   req.Query,
		Limit:   req.Limit,
		Filters: req.Filters,
	})
	if err != nil {
		h.observe("vector", "error", -1, time.Since(started))
		return h.fail(c, err)
	}

	h.observe("vector", "ok", -1, time.Since(started))
	h.observeGateway("embedding", output.Model, output.Tokens, output.Cost)
	return c.JSON(http.StatusOK, SearchResponse{
		Success: true,
		Query:   req.Query,
		Filters: req.Filters,
		Results: output.Results,
		Cost:    output.Cost,
		Tokens:  output.Tokens,
	})
}

// Weighted-field lexical search.
// (POST /api/search/bm25)
func (h *Handler) BM25Search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}

	started := time.Now()
	output, err := h.uc.BM25Search.Execute(c.Request().Context(), usecase.BM25SearchInput{
		Query:   req.Query,
		Limit:   req.Limit,
		Filters: req.Filters,
		Fields:  req.Fields,
	})
	if err != nil {
		h.observe("bm25", "error", -1, time.Since(started))
		return h.fail(c, err)
	}

	h.observe("bm25", "ok", -1, time.Since(started))
	return c.JSON(http.StatusOK, BM25SearchResponse{
		Success:      true,
		SearchType:   "bm25",
		Results:      output.Results,
		Count:        output.Count,
		SearchTimeMs: output.SearchTime.Milliseconds(),
	})
}

// Concurrent lexical + vector retrieval fused under weighted normalization.
// (POST /api/search/hybrid)
func (h *Handler) HybridSearch(c echo.Context) error {
	var req HybridSearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}

	started := time.Now()
	output, err := h.uc.HybridSearch.Execute(c.Request().Context(), usecase.HybridSearchInput{
		Query:   req.Query,
		Limit:   req.Limit,
		Filters: req.Filters,
		Weights: fusionWeights(req.BM25Weight, req.VectorWeight),
		Fields:  req.BM25Fields,
	})
	if err != nil {
		h.observe("hybrid", "error", -1, time.Since(started))
		return h.fail(c, err)
	}

	outcome := "ok"
	if output.Degraded {
		outcome = "degraded"
	}
	h.observe("hybrid", outcome, output.Stats.FusedCount, time.Since(started))
	h.observeGateway("embedding", output.Model, output.Tokens, output.Cost)
	return c.JSON(http.StatusOK, HybridSearchResponse{
		Success:    true,
		SearchType: "hybrid",
		Results:    output.Results,
		Stats:      output.Stats,
		Timing:     output.Timing,
		Cost:       output.Cost,
		Tokens:     output.Tokens,
		Degraded:   output.Degraded,
		Warnings:   output.Warnings,
	})
}

// Deep-pool retrieval reranked under a caller-selected fusion policy.
// (POST /api/search/rerank)
func (h *Handler) RerankSearch(c echo.Context) error {
	var req RerankSearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}

	started := time.Now()
	output, err := h.uc.RerankSearch.Execute(c.Request().Context(), usecase.RerankSearchInput{
		Query:        req.Query,
		Limit:        req.Limit,
		Filters:      req.Filters,
		FusionMethod: req.FusionMethod,
		RerankTopK:   req.RerankTopK,
		Weights:      fusionWeights(req.BM25Weight, req.VectorWeight),
	})
	if err != nil {
		h.observe("rerank", "error", -1, time.Since(started))
		return h.fail(c, err)
	}

	outcome := "ok"
	if output.Degraded {
		outcome = "degraded"
	}
	h.observe("rerank", outcome, output.Stats.FusedCount, time.Since(started))
	h.observeGateway("embedding", output.Model, output.Tokens, output.Cost)
	return c.JSON(http.StatusOK, RerankSearchResponse{
		Success:         true,
		FusionMethod:    string(output.FusionMethod),
		Results:         output.Results,
		BeforeReranking: output.BeforeReranking,
		AfterReranking:  output.AfterReranking,
		Stats:           output.Stats,
		Timing:          output.Timing,
		Cost:            output.Cost,
		Tokens:          output.Tokens,
		Degraded:        output.Degraded,
		Warnings:        output.Warnings,
	})
}

// Query normalization without retrieval.
// (POST /api/search/preprocess)
func (h *Handler) PreprocessQuery(c echo.Context) error {
	var req PreprocessRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}

	output, err := h.uc.Preprocess.Execute(c.Request().Context(), usecase.PreprocessQueryInput{
		Query:   req.Query,
		Options: req.Options,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, output.Transformation)
}

// Near-duplicate removal over a caller-supplied candidate list.
// (POST /api/search/deduplicate)
func (h *Handler) Deduplicate(c echo.Context) error {
	var req DeduplicateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}

	output, err := h.uc.Deduplicate.Execute(c.Request().Context(), usecase.DeduplicateInput{
		Results:   req.Results,
		Threshold: req.Threshold,
	})
	if err != nil {
		return h.fail(c, err)
	}

	if h.metrics != nil {
		h.metrics.RecordDuplicatesRemoved(output.Stats.RemovedCount)
	}
	return c.JSON(http.StatusOK, DeduplicateResponse{
		Deduplicated: output.Deduplicated,
		Duplicates:   output.Duplicates,
		Stats:        output.Stats,
	})
}

// Digest generation over a caller-supplied result list. A summarizer failure
// degrades to summary null plus a warning instead of an error status.
// (POST /api/search/summarize)
func (h *Handler) SummarizeCases(c echo.Context) error {
	var req SummarizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}

	output, err := h.uc.Summarize.Execute(c.Request().Context(), usecase.SummarizeCasesInput{
		Results:     req.Results,
		SummaryType: req.SummaryType,
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrSummarizerFailure) {
			h.logger.Warn("summary_degraded", slog.String("error", err.Error()))
			return c.JSON(http.StatusOK, SummarizeResponse{
				Summary:  nil,
				Warnings: []string{err.Error()},
			})
		}
		return h.fail(c, err)
	}

	h.observeGateway("completion", output.Model, output.Usage.TotalTokens, output.Cost)
	return c.JSON(http.StatusOK, SummarizeResponse{
		Summary:  &output.Summary,
		Tokens:   output.Usage.TotalTokens,
		Cost:     output.Cost,
		Model:    output.Model,
		Warnings: output.Warnings,
	})
}

// Full pipeline run returning the complete execution record.
// (POST /api/search/pipeline)
func (h *Handler) RunPipeline(c echo.Context) error {
	var req PipelineRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}

	started := time.Now()
	output, err := h.uc.Pipeline.Execute(c.Request().Context(), req.toInput())
	if err != nil {
		h.observe("pipeline", "error", -1, time.Since(started))
		return h.fail(c, err)
	}

	h.recordPipeline(output, time.Since(started))
	return c.JSON(http.StatusOK, output)
}

// Full pipeline run relayed as server-sent events: progress and stage events
// while running, then a terminal done or error event.
// (POST /api/search/pipeline/stream)
func (h *Handler) StreamPipeline(c echo.Context) error {
	var req PipelineRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}

	started := time.Now()
	events := h.uc.Pipeline.Stream(c.Request().Context(), req.toInput())

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("pipeline_event_encode_failed", slog.String("error", err.Error()))
			continue
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "event: %s\ndata: %s\n\n", event.Kind, payload); err != nil {
			return err
		}
		c.Response().Flush()

		switch event.Kind {
		case usecase.PipelineEventDone:
			h.recordPipeline(event.Output, time.Since(started))
		case usecase.PipelineEventError:
			h.observe("pipeline", "error", -1, time.Since(started))
		}
	}
	return nil
}

// Distinct classification values for filter pickers.
// (GET /api/metadata/distinct)
func (h *Handler) DistinctMetadata(c echo.Context) error {
	values, err := h.metadata.DistinctValues(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, values)
}

// Single job lookup; unknown or expired ids are 404.
// (GET /api/jobs/:id)
func (h *Handler) JobByID(c echo.Context) error {
	job, err := h.jobs.Get(c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// Jobs still in progress.
// (GET /api/jobs/active)
func (h *Handler) ActiveJobs(c echo.Context) error {
	jobs := h.jobs.ListActive()
	if h.metrics != nil {
		h.metrics.SetActiveJobs(len(jobs))
	}
	return c.JSON(http.StatusOK, ActiveJobsResponse{Jobs: jobs, Count: len(jobs)})
}

// Starts a bulk embedding job for documents missing vectors.
// (POST /api/embeddings/generate)
func (h *Handler) GenerateEmbeddings(c echo.Context) error {
	var req GenerateEmbeddingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}

	job, err := h.dispatcher.Enqueue(usecase.BulkEmbedInput{
		IDs:       req.IDs,
		BatchSize: req.BatchSize,
	})
	if err != nil {
		return h.fail(c, err)
	}

	if h.metrics != nil {
		h.metrics.SetActiveJobs(len(h.jobs.ListActive()))
	}
	return c.JSON(http.StatusAccepted, GenerateEmbeddingsResponse{
		JobID:  job.ID,
		Status: string(job.Status),
	})
}

// Embedding coverage of the corpus.
// (GET /api/embeddings/status)
func (h *Handler) EmbeddingStatus(c echo.Context) error {
	status, err := h.uc.BulkEmbed.Status(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) fail(c echo.Context, err error) error {
	status := mapErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request_failed",
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func (h *Handler) observe(endpoint, outcome string, fused int, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordSearch(h.service, endpoint, outcome, fused, elapsed)
}

func (h *Handler) observeGateway(kind, model string, tokens int64, cost float64) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordGatewayUsage(h.service, kind, model, tokens, cost)
}

// recordPipeline folds one finished pipeline record into the collectors.
func (h *Handler) recordPipeline(output *usecase.SearchPipelineOutput, elapsed time.Duration) {
	if h.metrics == nil || output == nil {
		return
	}
	outcome := "ok"
	if output.Degraded {
		outcome = "degraded"
	}
	h.metrics.RecordSearch(h.service, "pipeline", outcome, len(output.Fused), elapsed)
	for _, stage := range output.Stages {
		h.metrics.RecordStage(h.service, stage.Name, time.Duration(stage.DurationMs)*time.Millisecond)
	}
	h.metrics.RecordDuplicatesRemoved(len(output.Duplicates))
	if output.Summary != nil {
		h.metrics.RecordGatewayUsage(h.service, "completion", output.Summary.Model, output.Summary.Usage.TotalTokens, output.Summary.Cost)
	}
}
