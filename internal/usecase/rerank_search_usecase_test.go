package usecase_test

import (
	"context"
	"testing"

	"case-retriever/internal/domain"
	"case-retriever/internal/usecase"
	"case-retriever/internal/usecase/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRerankUsecase(search *MockCaseSearchRepository, vector *MockCaseVectorRepository, embed *MockEmbeddingClient) usecase.RerankSearchUsecase {
	return usecase.NewRerankSearchUsecase(search, vector, embed, usecase.DefaultSearchConfig(), testLogger())
}

func TestRerankSearch_Execute_ReportsRankingMovement(t *testing.T) {
	mockSearch := new(MockCaseSearchRepository)
	mockVector := new(MockCaseVectorRepository)
	mockEmbed := new(MockEmbeddingClient)
	uc := newRerankUsecase(mockSearch, mockVector, mockEmbed)

	queryVec := []float32{0.3, 0.7}
	mockEmbed.On("EmbedQuery", mock.Anything, "consent").Return(&domain.EmbeddingResult{Vector: queryVec}, nil)
	// The pool is fetched at the configured top-k, not the result limit.
	mockSearch.On("SearchLexical", mock.Anything, "consent", 50, domain.SearchFilters(nil), domain.FieldWeights(nil)).
		Return([]domain.Candidate{
			lexicalCandidate("TC_1", "Verify patient consent", 1, 10.0),
			lexicalCandidate("TC_2", "Record consent withdrawal", 2, 6.0),
		}, nil)
	mockVector.On("SearchVector", mock.Anything, queryVec, 50, 100, domain.SearchFilters(nil)).
		Return([]domain.Candidate{
			vectorCandidate("TC_3", "Consent form rendering", 1, 0.9),
			vectorCandidate("TC_1", "Verify patient consent", 2, 0.8),
		}, nil)

	output, err := uc.Execute(context.Background(), usecase.RerankSearchInput{Query: "consent", Limit: 2})

	require.NoError(t, err)
	assert.Equal(t, retrieval.FusionRRF, output.FusionMethod)

	// Results honour the limit; the comparison covers the whole pool.
	require.Len(t, output.Results, 2)
	assert.Equal(t, "TC_1", output.Results[0].Document.ID)
	assert.Equal(t, "TC_3", output.Results[1].Document.ID)

	require.Len(t, output.BeforeReranking, 3)
	before := output.BeforeReranking
	// Best original rank first; rank-1 tie resolved to the lexical side.
	assert.Equal(t, []string{"TC_1", "TC_3", "TC_2"}, []string{before[0].ID, before[1].ID, before[2].ID})
	assert.Equal(t, 1, before[0].Rank)
	assert.InDelta(t, 10.0, before[0].Score, 1e-9)
	assert.InDelta(t, 0.9, before[1].Score, 1e-9)

	require.Len(t, output.AfterReranking, 3)
	after := output.AfterReranking
	assert.Equal(t, []string{"TC_1", "TC_3", "TC_2"}, []string{after[0].ID, after[1].ID, after[2].ID})
	assert.Equal(t, 0, after[0].RankChange)
	assert.Equal(t, -1, after[1].RankChange)
	assert.Equal(t, -1, after[2].RankChange)
	// RRF scores at k=60: 1/61 + 1/62 for the item both sources ranked.
	assert.InDelta(t, 1.0/61.0+1.0/62.0, after[0].Score, 1e-9)

	assert.Equal(t, usecase.HybridStats{LexicalCount: 2, VectorCount: 2, OverlapCount: 1, FusedCount: 3}, output.Stats)
}

func TestRerankSearch_Execute_TopKOverride(t *testing.T) {
	mockSearch := new(MockCaseSearchRepository)
	mockVector := new(MockCaseVectorRepository)
	mockEmbed := new(MockEmbeddingClient)
	uc := newRerankUsecase(mockSearch, mockVector, mockEmbed)

	queryVec := []float32{0.5}
	mockEmbed.On("EmbedQuery", mock.Anything, "consent").Return(&domain.EmbeddingResult{Vector: queryVec}, nil)
	mockSearch.On("SearchLexical", mock.Anything, "consent", 20, domain.SearchFilters(nil), domain.FieldWeights(nil)).
		Return([]domain.Candidate{}, nil)
	mockVector.On("SearchVector", mock.Anything, queryVec, 20, 100, domain.SearchFilters(nil)).
		Return([]domain.Candidate{}, nil)

	_, err := uc.Execute(context.Background(), usecase.RerankSearchInput{Query: "consent", RerankTopK: 20})

	require.NoError(t, err)
	mockSearch.AssertExpectations(t)
	mockVector.AssertExpectations(t)
}

func TestRerankSearch_Execute_TopKNeverBelowLimit(t *testing.T) {
	mockSearch := new(MockCaseSearchRepository)
	mockVector := new(MockCaseVectorRepository)
	mockEmbed := new(MockEmbeddingClient)
	uc := newRerankUsecase(mockSearch, mockVector, mockEmbed)

	queryVec := []float32{0.5}
	mockEmbed.On("EmbedQuery", mock.Anything, "consent").Return(&domain.EmbeddingResult{Vector: queryVec}, nil)
	mockSearch.On("SearchLexical", mock.Anything, "consent", 30, domain.SearchFilters(nil), domain.FieldWeights(nil)).
		Return([]domain.Candidate{}, nil)
	mockVector.On("SearchVector", mock.Anything, queryVec, 30, 100, domain.SearchFilters(nil)).
		Return([]domain.Candidate{}, nil)

	_, err := uc.Execute(context.Background(), usecase.RerankSearchInput{Query: "consent", Limit: 30, RerankTopK: 5})

	require.NoError(t, err)
	mockSearch.AssertExpectations(t)
}

func TestRerankSearch_Execute_WeightedMethod(t *testing.T) {
	mockSearch := new(MockCaseSearchRepository)
	mockVector := new(MockCaseVectorRepository)
	mockEmbed := new(MockEmbeddingClient)
	uc := newRerankUsecase(mockSearch, mockVector, mockEmbed)

	queryVec := []float32{0.5}
	mockEmbed.On("EmbedQuery", mock.Anything, "consent").Return(&domain.EmbeddingResult{Vector: queryVec}, nil)
	mockSearch.On("SearchLexical", mock.Anything, "consent", 50, domain.SearchFilters(nil), domain.FieldWeights(nil)).
		Return([]domain.Candidate{lexicalCandidate("TC_1", "Verify patient consent", 1, 10.0)}, nil)
	mockVector.On("SearchVector", mock.Anything, queryVec, 50, 100, domain.SearchFilters(nil)).
		Return([]domain.Candidate{vectorCandidate("TC_2", "Consent form rendering", 1, 0.9)}, nil)

	output, err := uc.Execute(context.Background(), usecase.RerankSearchInput{Query: "consent", FusionMethod: "weighted"})

	require.NoError(t, err)
	assert.Equal(t, retrieval.FusionWeighted, output.FusionMethod)
	// Single-item lists normalize to 1.0 per source; the default weights
	// then favour the vector side.
	require.Len(t, output.Results, 2)
	assert.Equal(t, "TC_2", output.Results[0].Document.ID)
}

func TestRerankSearch_Execute_UnknownMethodFails(t *testing.T) {
	mockSearch := new(MockCaseSearchRepository)
	uc := newRerankUsecase(mockSearch, new(MockCaseVectorRepository), new(MockEmbeddingClient))

	_, err := uc.Execute(context.Background(), usecase.RerankSearchInput{Query: "consent", FusionMethod: "borda"})

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidArgument))
	mockSearch.AssertNotCalled(t, "SearchLexical")
}
