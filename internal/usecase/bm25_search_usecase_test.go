package usecase_test

import (
	"context"
	"errors"
	"testing"

	"case-retriever/internal/domain"
	"case-retriever/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBM25Search_Execute_Success(t *testing.T) {
	mockRepo := new(MockCaseSearchRepository)
	uc := usecase.NewBM25SearchUsecase(mockRepo, 10, testLogger())

	ctx := context.Background()
	candidates := []domain.Candidate{
		lexicalCandidate("TC_1", "Verify patient consent", 1, 12.4),
		lexicalCandidate("TC_2", "Verify consent withdrawal", 2, 9.1),
	}
	mockRepo.On("SearchLexical", ctx, "patient consent", 5, domain.SearchFilters(nil), domain.FieldWeights(nil)).
		Return(candidates, nil)

	output, err := uc.Execute(ctx, usecase.BM25SearchInput{Query: "  patient consent ", Limit: 5})

	require.NoError(t, err)
	assert.Equal(t, 2, output.Count)
	assert.Equal(t, candidates, output.Results)
	assert.GreaterOrEqual(t, output.SearchTime.Nanoseconds(), int64(0))
	mockRepo.AssertExpectations(t)
}

func TestBM25Search_Execute_EmptyQueryFails(t *testing.T) {
	mockRepo := new(MockCaseSearchRepository)
	uc := usecase.NewBM25SearchUsecase(mockRepo, 10, testLogger())

	for _, query := range []string{"", "   ", "\t\n"} {
		_, err := uc.Execute(context.Background(), usecase.BM25SearchInput{Query: query})
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.ErrInvalidArgument))
	}
	mockRepo.AssertNotCalled(t, "SearchLexical")
}

func TestBM25Search_Execute_DefaultLimit(t *testing.T) {
	mockRepo := new(MockCaseSearchRepository)
	uc := usecase.NewBM25SearchUsecase(mockRepo, 10, testLogger())

	ctx := context.Background()
	mockRepo.On("SearchLexical", ctx, "consent", 10, domain.SearchFilters(nil), domain.FieldWeights(nil)).
		Return([]domain.Candidate{}, nil)

	_, err := uc.Execute(ctx, usecase.BM25SearchInput{Query: "consent"})

	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestBM25Search_Execute_FiltersAndFieldsPassThrough(t *testing.T) {
	mockRepo := new(MockCaseSearchRepository)
	uc := usecase.NewBM25SearchUsecase(mockRepo, 10, testLogger())

	ctx := context.Background()
	filters := domain.SearchFilters{"module": "Appointments", "priority": "P1"}
	fields := domain.FieldWeights{"title": 20}
	mockRepo.On("SearchLexical", ctx, "consent", 10, filters, fields).
		Return([]domain.Candidate{}, nil)

	_, err := uc.Execute(ctx, usecase.BM25SearchInput{Query: "consent", Filters: filters, Fields: fields})

	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestBM25Search_Execute_BackendErrorPropagates(t *testing.T) {
	mockRepo := new(MockCaseSearchRepository)
	uc := usecase.NewBM25SearchUsecase(mockRepo, 10, testLogger())

	ctx := context.Background()
	backendErr := domain.WrapError(domain.ErrBackendUnavailable, "lexical query", errors.New("connection refused"))
	mockRepo.On("SearchLexical", ctx, "consent", 10, domain.SearchFilters(nil), domain.FieldWeights(nil)).
		Return(nil, backendErr)

	_, err := uc.Execute(ctx, usecase.BM25SearchInput{Query: "consent"})

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrBackendUnavailable))
}
