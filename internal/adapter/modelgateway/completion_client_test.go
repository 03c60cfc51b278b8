package modelgateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"case-retriever/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompletionClient(baseURL string, attempts int) *GatewayCompletionClient {
	return NewGatewayCompletionClient(CompletionClientConfig{
		BaseURL: baseURL,
		Model:   "gpt-4o-mini",
		Token:   "secret-token",
	}, nil, testExecutor(attempts), nil, "case-retriever", slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func completionEnvelopeJSON(content string) completionEnvelope {
	return completionEnvelope{
		Transaction: completionTransaction{
			Response: completionResponse{
				Choices: []completionChoice{
					{Message: domain.ChatMessage{Role: "assistant", Content: content}},
				},
				Usage: completionUsage{PromptTokens: 120, CompletionTokens: 45, TotalTokens: 165},
				Model: "gpt-4o-mini",
			},
			Cost: 0.0021,
		},
	}
}

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 800, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionEnvelopeJSON(`{"summaries":[]}`))
	}))
	defer server.Close()

	client := newCompletionClient(server.URL, 2)

	result, err := client.Complete(context.Background(), []domain.ChatMessage{
		{Role: "system", Content: "You summarise test cases."},
		{Role: "user", Content: "Summarise the following."},
	}, 800)
	require.NoError(t, err)

	assert.Equal(t, `{"summaries":[]}`, result.Text)
	assert.Equal(t, "gpt-4o-mini", result.Model)
	assert.Equal(t, int64(165), result.Usage.TotalTokens)
	assert.InDelta(t, 0.0021, result.Cost, 1e-9)
}

func TestComplete_RetriesOnceOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionEnvelopeJSON("ok"))
	}))
	defer server.Close()

	client := newCompletionClient(server.URL, 2)

	result, err := client.Complete(context.Background(), []domain.ChatMessage{
		{Role: "user", Content: "hello"},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestComplete_FailureWearsSummarizerKind(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newCompletionClient(server.URL, 2)

	_, err := client.Complete(context.Background(), []domain.ChatMessage{
		{Role: "user", Content: "hello"},
	}, 0)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrSummarizerFailure))
	assert.Equal(t, int32(2), calls.Load(), "one retry only")
}

func TestComplete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionEnvelope{})
	}))
	defer server.Close()

	client := newCompletionClient(server.URL, 2)

	_, err := client.Complete(context.Background(), []domain.ChatMessage{
		{Role: "user", Content: "hello"},
	}, 0)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrSummarizerFailure))
	assert.Contains(t, err.Error(), "no choices")
}

func TestComplete_RejectsEmptyMessages(t *testing.T) {
	client := newCompletionClient("http://localhost:1", 2)

	_, err := client.Complete(context.Background(), nil, 0)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidArgument))
}
