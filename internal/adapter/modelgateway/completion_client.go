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
)

// CompletionClientConfig carries the gateway coordinates for chat completions.
type CompletionClientConfig struct {
	BaseURL string
	Model   string
	Token   string
}

// GatewayCompletionClient implements domain.CompletionClient against the
// gateway's OpenAI-compatible chat endpoint. The gateway wraps the upstream
// response in a transaction envelope that also reports the billed cost.
type GatewayCompletionClient struct {
	cfg     CompletionClientConfig
	client  *http.Client
	exec    *resilience.Executor
	metrics *metrics.SearchMetrics
	service string
	logger  *slog.Logger
}

func NewGatewayCompletionClient(
	cfg CompletionClientConfig,
	client *http.Client,
	exec *resilience.Executor,
	m *metrics.SearchMetrics,
	service string,
	logger *slog.Logger,
) *GatewayCompletionClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GatewayCompletionClient{
		cfg:     cfg,
		client:  client,
		exec:    exec,
		metrics: m,
		service: service,
		logger:  logger,
	}
}

type completionRequest struct {
	Model     string               `json:"model"`
	Messages  []domain.ChatMessage `json:"messages"`
	MaxTokens int                  `json:"max_tokens,omitempty"`
}

type completionEnvelope struct {
	Transaction completionTransaction `json:"transaction"`
}

type completionTransaction struct {
	Response completionResponse `json:"response"`
	Cost     float64            `json:"cost"`
}

type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	Usage   completionUsage    `json:"usage"`
	Model   string             `json:"model"`
}

type completionChoice struct {
	Message domain.ChatMessage `json:"message"`
}

type completionUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Complete sends one chat exchange and returns the first choice. Transient
// gateway failures are retried with backoff; anything else surfaces
// immediately.
func (c *GatewayCompletionClient) Complete(ctx context.Context, messages []domain.ChatMessage, maxTokens int) (*domain.CompletionResult, error) {
	if len(messages) == 0 {
		return nil, domain.Invalid("completion needs at least one message")
	}

	start := time.Now()
	var envelope *completionEnvelope
	err := c.exec.Execute(ctx, "complete", func(ctx context.Context) error {
		var callErr error
		envelope, callErr = c.complete(ctx, messages, maxTokens)
		return callErr
	}, transientClassifier)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordGatewayError(c.service, "complete")
		}
		c.logger.Warn("completion_failed",
			slog.String("model", c.cfg.Model),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
			slog.String("error", err.Error()),
		)
		return nil, domain.WrapError(domain.ErrSummarizerFailure, "complete", err)
	}

	response := envelope.Transaction.Response
	if len(response.Choices) == 0 {
		return nil, domain.WrapError(domain.ErrSummarizerFailure, "complete",
			fmt.Errorf("gateway returned no choices"))
	}

	model := response.Model
	if model == "" {
		model = c.cfg.Model
	}
	if c.metrics != nil {
		c.metrics.RecordGatewayUsage(c.service, "completion", model, response.Usage.TotalTokens, envelope.Transaction.Cost)
	}
	c.logger.Info("completion_completed",
		slog.String("model", model),
		slog.Int64("total_tokens", response.Usage.TotalTokens),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	return &domain.CompletionResult{
		Text:  response.Choices[0].Message.Content,
		Model: model,
		Usage: domain.CompletionUsage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
		},
		Cost: envelope.Transaction.Cost,
	}, nil
}

func (c *GatewayCompletionClient) Model() string {
	return c.cfg.Model
}

func (c *GatewayCompletionClient) complete(ctx context.Context, messages []domain.ChatMessage, maxTokens int) (*completionEnvelope, error) {
	payload, err := json.Marshal(completionRequest{
		Model:     c.cfg.Model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", c.cfg.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call completion gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &gatewayError{StatusCode: resp.StatusCode, Body: truncateString(string(body), 500)}
	}

	var envelope completionEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}
	return &envelope, nil
}

var _ domain.CompletionClient = (*GatewayCompletionClient)(nil)
