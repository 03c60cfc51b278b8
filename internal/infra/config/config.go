package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries everything the service needs at start-up. Values come from
// the environment; secrets may alternatively be mounted as files.
type Config struct {
	Env  string
	Port string

	Database DatabaseConfig
	Gateway  GatewayConfig
	Pipeline PipelineConfig
	Jobs     JobsConfig
}

// DatabaseConfig holds the Postgres connection and schema names.
type DatabaseConfig struct {
	// URL is the full connection URI. Required.
	URL string
	// Name is the logical database name, used for health reporting.
	Name string
	// Table is the case document table.
	Table string
	// TextIndex is the full-text index name.
	TextIndex string
	// VectorIndex is the HNSW index name.
	VectorIndex string
	// PoolSize caps concurrent connections.
	PoolSize int
	// PoolWaitBudget is how long a request may wait for admission before
	// being rejected as busy.
	PoolWaitBudget time.Duration
}

// GatewayConfig holds the model gateway endpoints and credentials.
type GatewayConfig struct {
	// EmbeddingURL is the embedding service base URL. Required.
	EmbeddingURL string
	// CompletionURL is the completion service base URL. Required.
	CompletionURL string
	// UserID identifies the calling account on the gateway. Required.
	UserID string
	// Token is the bearer token for the gateway. Required.
	Token string

	EmbeddingModel     string
	EmbeddingDimension int
	CompletionModel    string
}

// PipelineConfig holds tunable retrieval parameters.
type PipelineConfig struct {
	// DefaultLimit is the number of results returned when the caller does
	// not ask for a specific count.
	DefaultLimit int
	// RerankTopK is the candidate pool fetched per source before fusion.
	RerankTopK int
	// MinCandidates floors the ANN candidate pool.
	MinCandidates int
	// DedupThreshold is the Jaccard cutoff used inside the full pipeline.
	DedupThreshold float64
	// SummaryMaxItems caps how many candidates are summarised.
	SummaryMaxItems int
	// QueryCacheSize bounds the embedding cache (entries).
	QueryCacheSize int

	// RemoteTimeout bounds each embedding or completion call.
	RemoteTimeout time.Duration
	// PipelineTimeout bounds one end-to-end pipeline run.
	PipelineTimeout time.Duration

	// EmbedRetryAttempts is the total number of tries per embedding call.
	EmbedRetryAttempts int
	// EmbedBackoffInitial seeds the exponential backoff between tries.
	EmbedBackoffInitial time.Duration
	// EmbedBackoffMax caps the backoff.
	EmbedBackoffMax time.Duration
}

// JobsConfig holds background job settings.
type JobsConfig struct {
	// SweepInterval is how often finished jobs are checked for expiry.
	SweepInterval time.Duration
	// RetainFor is how long a finished job stays queryable.
	RetainFor time.Duration
	// BulkBatchSize is the number of documents embedded per batch.
	BulkBatchSize int
	// BulkMaxInFlight caps concurrent embedding batches.
	BulkMaxInFlight int
	// BulkGroupDelay spaces successive batch groups.
	BulkGroupDelay time.Duration
}

// Load reads the configuration from the environment. Missing required
// values are reported together so operators can fix them in one pass.
func Load() (*Config, error) {
	cfg := &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),
		Database: DatabaseConfig{
			URL:            getEnvWithAlt("SEARCH_DB_URL", "DATABASE_URL", ""),
			Name:           getEnv("SEARCH_DB_NAME", "casedb"),
			Table:          getEnv("CASE_TABLE", "case_documents"),
			TextIndex:      getEnv("CASE_TEXT_INDEX", "case_documents_fts"),
			VectorIndex:    getEnv("CASE_VECTOR_INDEX", "case_documents_embedding"),
			PoolSize:       getEnvInt("DB_POOL_SIZE", 20),
			PoolWaitBudget: getEnvDuration("POOL_WAIT_BUDGET", 2*time.Second),
		},
		Gateway: GatewayConfig{
			EmbeddingURL:       getEnv("EMBEDDING_SERVICE_URL", ""),
			CompletionURL:      getEnv("COMPLETION_SERVICE_URL", ""),
			UserID:             getEnv("MODEL_GATEWAY_USER_ID", ""),
			Token:              getSecret("MODEL_GATEWAY_TOKEN", "MODEL_GATEWAY_TOKEN_FILE", ""),
			EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
			CompletionModel:    getEnv("COMPLETION_MODEL", "gpt-4o-mini"),
		},
		Pipeline: PipelineConfig{
			DefaultLimit:        getEnvInt("SEARCH_DEFAULT_LIMIT", 10),
			RerankTopK:          getEnvInt("SEARCH_RERANK_TOP_K", 50),
			MinCandidates:       getEnvInt("SEARCH_MIN_CANDIDATES", 100),
			DedupThreshold:      getEnvFloat("SEARCH_DEDUP_THRESHOLD", 0.95),
			SummaryMaxItems:     getEnvInt("SUMMARY_MAX_ITEMS", 5),
			QueryCacheSize:      getEnvInt("QUERY_CACHE_SIZE", 512),
			RemoteTimeout:       getEnvDuration("REMOTE_CALL_TIMEOUT", 30*time.Second),
			PipelineTimeout:     getEnvDuration("PIPELINE_TIMEOUT", 5*time.Minute),
			EmbedRetryAttempts:  getEnvInt("EMBED_RETRY_ATTEMPTS", 3),
			EmbedBackoffInitial: getEnvDuration("EMBED_BACKOFF_INITIAL", 1*time.Second),
			EmbedBackoffMax:     getEnvDuration("EMBED_BACKOFF_MAX", 10*time.Second),
		},
		Jobs: JobsConfig{
			SweepInterval:   getEnvDuration("JOB_SWEEP_INTERVAL", 10*time.Minute),
			RetainFor:       getEnvDuration("JOB_RETAIN_FOR", 60*time.Minute),
			BulkBatchSize:   getEnvInt("BULK_EMBED_BATCH_SIZE", 100),
			BulkMaxInFlight: getEnvInt("BULK_EMBED_MAX_IN_FLIGHT", 5),
			BulkGroupDelay:  getEnvDuration("BULK_EMBED_GROUP_DELAY", 1*time.Second),
		},
	}

	var missing []string
	if cfg.Database.URL == "" {
		missing = append(missing, "SEARCH_DB_URL")
	}
	if cfg.Gateway.EmbeddingURL == "" {
		missing = append(missing, "EMBEDDING_SERVICE_URL")
	}
	if cfg.Gateway.CompletionURL == "" {
		missing = append(missing, "COMPLETION_SERVICE_URL")
	}
	if cfg.Gateway.UserID == "" {
		missing = append(missing, "MODEL_GATEWAY_USER_ID")
	}
	if cfg.Gateway.Token == "" {
		missing = append(missing, "MODEL_GATEWAY_TOKEN")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required values: %s", strings.Join(missing, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks tunables that have no sensible fallback once misconfigured.
func (c *Config) Validate() error {
	if c.Database.PoolSize <= 0 {
		return fmt.Errorf("config: DB_POOL_SIZE must be positive, got %d", c.Database.PoolSize)
	}
	if c.Gateway.EmbeddingDimension <= 0 {
		return fmt.Errorf("config: EMBEDDING_DIMENSION must be positive, got %d", c.Gateway.EmbeddingDimension)
	}
	if c.Pipeline.DefaultLimit <= 0 {
		return fmt.Errorf("config: SEARCH_DEFAULT_LIMIT must be positive, got %d", c.Pipeline.DefaultLimit)
	}
	if c.Pipeline.RerankTopK < c.Pipeline.DefaultLimit {
		return fmt.Errorf("config: SEARCH_RERANK_TOP_K (%d) must be at least SEARCH_DEFAULT_LIMIT (%d)",
			c.Pipeline.RerankTopK, c.Pipeline.DefaultLimit)
	}
	if c.Pipeline.DedupThreshold < 0 || c.Pipeline.DedupThreshold > 1 {
		return fmt.Errorf("config: SEARCH_DEDUP_THRESHOLD must be in [0, 1], got %f", c.Pipeline.DedupThreshold)
	}
	if c.Pipeline.EmbedRetryAttempts <= 0 {
		return fmt.Errorf("config: EMBED_RETRY_ATTEMPTS must be positive, got %d", c.Pipeline.EmbedRetryAttempts)
	}
	if c.Jobs.BulkBatchSize <= 0 {
		return fmt.Errorf("config: BULK_EMBED_BATCH_SIZE must be positive, got %d", c.Jobs.BulkBatchSize)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvWithAlt(key, altKey, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if value, ok := os.LookupEnv(altKey); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
