package modelgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"case-retriever/internal/domain"
	"case-retriever/internal/infra/metrics"
	"case-retriever/internal/infra/resilience"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 512

// EmbeddingClientConfig carries the gateway coordinates for embedding calls.
type EmbeddingClientConfig struct {
	BaseURL   string
	Model     string
	UserID    string
	Token     string
	Dimension int
	CacheSize int
}

// GatewayEmbeddingClient implements domain.EmbeddingClient against the model
// gateway's text embedding endpoint. Single-query embeddings are cached in a
// bounded LRU keyed by model and text.
type GatewayEmbeddingClient struct {
	cfg     EmbeddingClientConfig
	client  *http.Client
	exec    *resilience.Executor
	cache   *lru.Cache[string, []float32]
	metrics *metrics.SearchMetrics
	service string
	logger  *slog.Logger
}

func NewGatewayEmbeddingClient(
	cfg EmbeddingClientConfig,
	client *http.Client,
	exec *resilience.Executor,
	m *metrics.SearchMetrics,
	service string,
	logger *slog.Logger,
) (*GatewayEmbeddingClient, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GatewayEmbeddingClient{
		cfg:     cfg,
		client:  client,
		exec:    exec,
		cache:   cache,
		metrics: m,
		service: service,
		logger:  logger,
	}, nil
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Status string      `json:"status"`
	Data   []embedItem `json:"data"`
	Usage  embedUsage  `json:"usage"`
	Cost   float64     `json:"cost"`
}

type embedItem struct {
	Embedding []float32 `json:"embedding"`
}

type embedUsage struct {
	TotalTokens int64 `json:"total_tokens"`
}

// EmbedQuery embeds one query string, serving repeats from the cache. Cached
// hits report zero token usage and zero cost.
func (c *GatewayEmbeddingClient) EmbedQuery(ctx context.Context, text string) (*domain.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.Invalid("embedding input must not be empty")
	}

	key := c.cfg.Model + "\x00" + text
	if vector, ok := c.cache.Get(key); ok {
		if c.metrics != nil {
			c.metrics.RecordEmbedCacheHit()
		}
		return &domain.EmbeddingResult{Vector: vector, Model: c.cfg.Model}, nil
	}
	if c.metrics != nil {
		c.metrics.RecordEmbedCacheMiss()
	}

	batch, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	vector := batch.Vectors[0]
	c.cache.Add(key, vector)
	return &domain.EmbeddingResult{
		Vector:      vector,
		Model:       batch.Model,
		TotalTokens: batch.TotalTokens,
		Cost:        batch.Cost,
	}, nil
}

// EmbedTexts embeds a batch of texts in one gateway call. Transient gateway
// failures are retried with exponential backoff before giving up.
func (c *GatewayEmbeddingClient) EmbedTexts(ctx context.Context, texts []string) (*domain.EmbeddingBatch, error) {
	if len(texts) == 0 {
		return nil, domain.Invalid("embedding batch must not be empty")
	}

	start := time.Now()
	var resp *embedResponse
	err := c.exec.Execute(ctx, "embed", func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.embed(ctx, texts)
		return callErr
	}, transientClassifier)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordGatewayError(c.service, "embed")
		}
		c.logger.Error("embedding_failed",
			slog.Int("text_count", len(texts)),
			slog.String("model", c.cfg.Model),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
			slog.String("error", err.Error()),
		)
		return nil, domain.WrapError(domain.ErrEmbeddingFailure, "embed texts", err)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		if c.cfg.Dimension > 0 && len(item.Embedding) != c.cfg.Dimension {
			return nil, domain.WrapError(domain.ErrEmbeddingFailure, "embed texts",
				fmt.Errorf("vector %d has dimension %d, want %d", i, len(item.Embedding), c.cfg.Dimension))
		}
		vectors[i] = item.Embedding
	}

	if c.metrics != nil {
		c.metrics.RecordGatewayUsage(c.service, "embedding", c.cfg.Model, resp.Usage.TotalTokens, resp.Cost)
	}
	c.logger.Info("embedding_completed",
		slog.Int("text_count", len(texts)),
		slog.String("model", c.cfg.Model),
		slog.Int64("total_tokens", resp.Usage.TotalTokens),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	return &domain.EmbeddingBatch{
		Vectors:     vectors,
		Model:       c.cfg.Model,
		TotalTokens: resp.Usage.TotalTokens,
		Cost:        resp.Cost,
	}, nil
}

func (c *GatewayEmbeddingClient) Model() string {
	return c.cfg.Model
}

func (c *GatewayEmbeddingClient) embed(ctx context.Context, texts []string) (*embedResponse, error) {
	payload, err := json.Marshal(embedRequest{Input: texts, Model: c.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	url := fmt.Sprintf("%s/embedding/text/%s", c.cfg.BaseURL, c.cfg.UserID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &gatewayError{StatusCode: resp.StatusCode, Body: truncateString(string(body), 500)}
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(decoded.Data) != len(texts) {
		return nil, fmt.Errorf("gateway returned %d embeddings for %d inputs", len(decoded.Data), len(texts))
	}
	return &decoded, nil
}

var _ domain.EmbeddingClient = (*GatewayEmbeddingClient)(nil)
