package di

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"case-retriever/internal/adapter/modelgateway"
	"case-retriever/internal/adapter/repository"
	"case-retriever/internal/adapter/searchhttp"
	"case-retriever/internal/domain"
	"case-retriever/internal/infra/config"
	"case-retriever/internal/infra/httpclient"
	"case-retriever/internal/infra/metrics"
	"case-retriever/internal/infra/resilience"
	"case-retriever/internal/registry"
	"case-retriever/internal/usecase"
	"case-retriever/internal/worker"
)

// ServiceName labels metrics and telemetry emitted by this process.
const ServiceName = "case-retriever"

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Repositories
	SearchRepo   domain.CaseSearchRepository
	VectorRepo   domain.CaseVectorRepository
	WriteRepo    domain.CaseWriteRepository
	MetadataRepo domain.MetadataRepository

	// Gateway clients
	Embedder  domain.EmbeddingClient
	Completer domain.CompletionClient

	// Shared infrastructure
	Metrics  *metrics.SearchMetrics
	Registry *registry.InMemoryJobRegistry

	// Usecases
	VectorSearch usecase.VectorSearchUsecase
	BM25Search   usecase.BM25SearchUsecase
	HybridSearch usecase.HybridSearchUsecase
	RerankSearch usecase.RerankSearchUsecase
	Preprocess   usecase.PreprocessQueryUsecase
	Deduplicate  usecase.DeduplicateUsecase
	Summarize    usecase.SummarizeCasesUsecase
	Pipeline     usecase.SearchPipelineUsecase
	BulkEmbed    usecase.BulkEmbedUsecase

	// Worker
	Worker *worker.EmbedWorker

	// Handler
	Handler *searchhttp.Handler
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) (*ApplicationComponents, error) {
	m := metrics.NewSearchMetrics(ServiceName)

	// Repositories
	searchRepo := repository.NewCaseSearchRepository(pool, cfg.Database.Table)
	vectorRepo := repository.NewCaseVectorRepository(pool, cfg.Database.Table)
	writeRepo := repository.NewCaseWriteRepository(pool, cfg.Database.Table)
	metadataRepo := repository.NewMetadataRepository(pool, cfg.Database.Table)
	txManager := repository.NewPostgresTransactionManager(pool)

	// Shared HTTP clients with connection pooling
	embedHTTP := httpclient.NewPooledClient(cfg.Pipeline.RemoteTimeout)
	completionHTTP := httpclient.NewPooledClient(cfg.Pipeline.RemoteTimeout)

	// Gateway clients behind retry + breaker executors. Embedding retries
	// follow the configured budget; the summarizer gets one retry only
	// because its failures degrade the response instead of aborting it.
	embedPolicy := resilience.DefaultConfig()
	embedPolicy.RetryMaxAttempts = cfg.Pipeline.EmbedRetryAttempts
	embedPolicy.RetryInitialBackoff = cfg.Pipeline.EmbedBackoffInitial
	embedPolicy.RetryMaxBackoff = cfg.Pipeline.EmbedBackoffMax
	embedExec := resilience.NewExecutor(embedPolicy, log)

	completionPolicy := resilience.DefaultConfig()
	completionPolicy.RetryMaxAttempts = 2
	completionExec := resilience.NewExecutor(completionPolicy, log)

	embedder, err := modelgateway.NewGatewayEmbeddingClient(
		modelgateway.EmbeddingClientConfig{
			BaseURL:   cfg.Gateway.EmbeddingURL,
			Model:     cfg.Gateway.EmbeddingModel,
			UserID:    cfg.Gateway.UserID,
			Token:     cfg.Gateway.Token,
			Dimension: cfg.Gateway.EmbeddingDimension,
			CacheSize: cfg.Pipeline.QueryCacheSize,
		},
		embedHTTP,
		embedExec,
		m,
		ServiceName,
		log,
	)
	if err != nil {
		return nil, err
	}
	completer := modelgateway.NewGatewayCompletionClient(
		modelgateway.CompletionClientConfig{
			BaseURL: cfg.Gateway.CompletionURL,
			Model:   cfg.Gateway.CompletionModel,
			Token:   cfg.Gateway.Token,
		},
		completionHTTP,
		completionExec,
		m,
		ServiceName,
		log,
	)

	// Job registry
	jobRegistry := registry.NewInMemoryJobRegistry(cfg.Jobs.RetainFor, cfg.Jobs.SweepInterval, log)

	// Search configuration shared by the fused paths. Admission is sized to
	// the connection pool so the pipeline never queues behind it.
	searchCfg := usecase.SearchConfig{
		DefaultLimit:    cfg.Pipeline.DefaultLimit,
		RerankTopK:      cfg.Pipeline.RerankTopK,
		MinCandidates:   cfg.Pipeline.MinCandidates,
		DedupThreshold:  cfg.Pipeline.DedupThreshold,
		SummaryMaxItems: cfg.Pipeline.SummaryMaxItems,
		PipelineTimeout: cfg.Pipeline.PipelineTimeout,
		AdmissionSlots:  int64(cfg.Database.PoolSize),
		AdmissionWait:   cfg.Database.PoolWaitBudget,
	}
	if err := searchCfg.Validate(); err != nil {
		return nil, err
	}
	bulkCfg := usecase.BulkEmbedConfig{
		BatchSize:   cfg.Jobs.BulkBatchSize,
		MaxInFlight: cfg.Jobs.BulkMaxInFlight,
		GroupDelay:  cfg.Jobs.BulkGroupDelay,
	}
	if err := bulkCfg.Validate(); err != nil {
		return nil, err
	}

	// Usecases
	vectorSearch := usecase.NewVectorSearchUsecase(vectorRepo, embedder, cfg.Pipeline.DefaultLimit, log)
	bm25Search := usecase.NewBM25SearchUsecase(searchRepo, cfg.Pipeline.DefaultLimit, log)
	hybridSearch := usecase.NewHybridSearchUsecase(searchRepo, vectorRepo, embedder, searchCfg, log)
	rerankSearch := usecase.NewRerankSearchUsecase(searchRepo, vectorRepo, embedder, searchCfg, log)
	preprocess := usecase.NewPreprocessQueryUsecase(log)
	deduplicate := usecase.NewDeduplicateUsecase(log)
	summarize := usecase.NewSummarizeCasesUsecase(completer, cfg.Pipeline.SummaryMaxItems, log)
	pipeline := usecase.NewSearchPipelineUsecase(searchRepo, vectorRepo, embedder, summarize, searchCfg, log)
	bulkEmbed := usecase.NewBulkEmbedUsecase(writeRepo, embedder, jobRegistry, txManager, bulkCfg, log)

	// Worker
	embedWorker := worker.NewEmbedWorker(bulkEmbed, jobRegistry, m, 0, log)

	// Handler
	handler := searchhttp.NewHandler(
		searchhttp.Usecases{
			VectorSearch: vectorSearch,
			BM25Search:   bm25Search,
			HybridSearch: hybridSearch,
			RerankSearch: rerankSearch,
			Preprocess:   preprocess,
			Deduplicate:  deduplicate,
			Summarize:    summarize,
			Pipeline:     pipeline,
			BulkEmbed:    bulkEmbed,
		},
		metadataRepo,
		jobRegistry,
		embedWorker,
		m,
		ServiceName,
		log,
	)

	return &ApplicationComponents{
		SearchRepo:   searchRepo,
		VectorRepo:   vectorRepo,
		WriteRepo:    writeRepo,
		MetadataRepo: metadataRepo,
		Embedder:     embedder,
		Completer:    completer,
		Metrics:      m,
		Registry:     jobRegistry,
		VectorSearch: vectorSearch,
		BM25Search:   bm25Search,
		HybridSearch: hybridSearch,
		RerankSearch: rerankSearch,
		Preprocess:   preprocess,
		Deduplicate:  deduplicate,
		Summarize:    summarize,
		Pipeline:     pipeline,
		BulkEmbed:    bulkEmbed,
		Worker:       embedWorker,
		Handler:      handler,
	}, nil
}
