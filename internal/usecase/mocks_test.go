package usecase_test

import (
	"context"
	"io"
	"log/slog"

	"case-retriever/internal/domain"
	"case-retriever/internal/usecase"

	"github.com/stretchr/testify/mock"
)

// MockCaseSearchRepository
type MockCaseSearchRepository struct {
	mock.Mock
}

func (m *MockCaseSearchRepository) SearchLexical(ctx context.Context, query string, limit int, filters domain.SearchFilters, weights domain.FieldWeights) ([]domain.Candidate, error) {
	args := m.Called(ctx, query, limit, filters, weights)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Candidate), args.Error(1)
}

// MockCaseVectorRepository
type MockCaseVectorRepository struct {
	mock.Mock
}

func (m *MockCaseVectorRepository) SearchVector(ctx context.Context, embedding []float32, limit, numCandidates int, filters domain.SearchFilters) ([]domain.Candidate, error) {
	args := m.Called(ctx, embedding, limit, numCandidates, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Candidate), args.Error(1)
}

// MockEmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) EmbedQuery(ctx context.Context, text string) (*domain.EmbeddingResult, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EmbeddingResult), args.Error(1)
}

func (m *MockEmbeddingClient) EmbedTexts(ctx context.Context, texts []string) (*domain.EmbeddingBatch, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EmbeddingBatch), args.Error(1)
}

func (m *MockEmbeddingClient) Model() string {
	return "mock-embedder"
}

// MockCompletionClient
type MockCompletionClient struct {
	mock.Mock
}

func (m *MockCompletionClient) Complete(ctx context.Context, messages []domain.ChatMessage, maxTokens int) (*domain.CompletionResult, error) {
	args := m.Called(ctx, messages, maxTokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CompletionResult), args.Error(1)
}

func (m *MockCompletionClient) Model() string {
	return "mock-completion"
}

// MockCaseWriteRepository
type MockCaseWriteRepository struct {
	mock.Mock
}

func (m *MockCaseWriteRepository) ListMissingEmbeddings(ctx context.Context, ids []string, limit int) ([]domain.CaseDocument, error) {
	args := m.Called(ctx, ids, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CaseDocument), args.Error(1)
}

func (m *MockCaseWriteRepository) CountEmbeddingCoverage(ctx context.Context) (int64, int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func (m *MockCaseWriteRepository) UpdateEmbeddings(ctx context.Context, updates []domain.EmbeddingUpdate) error {
	args := m.Called(ctx, updates)
	return args.Error(0)
}

// MockTransactionManager executes the callback directly, outside any
// transaction.
type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// MockSummarizer
type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Execute(ctx context.Context, input usecase.SummarizeCasesInput) (*usecase.SummarizeCasesOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.SummarizeCasesOutput), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testCase(id, title string) domain.CaseDocument {
	return domain.CaseDocument{ID: id, Title: title, Module: "Appointments"}
}

func lexicalCandidate(id, title string, rank int, score float64) domain.Candidate {
	return domain.Candidate{
		Document: testCase(id, title),
		Score:    score,
		Rank:     rank,
		Source:   domain.SourceLexical,
	}
}

func vectorCandidate(id, title string, rank int, score float64) domain.Candidate {
	return domain.Candidate{
		Document: testCase(id, title),
		Score:    score,
		Rank:     rank,
		Source:   domain.SourceVector,
	}
}
