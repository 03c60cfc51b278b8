package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"case-retriever/internal/domain"
	"case-retriever/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type pipelineMocks struct {
	search     *MockCaseSearchRepository
	vector     *MockCaseVectorRepository
	embed      *MockEmbeddingClient
	summarizer *MockSummarizer
}

func newPipelineUsecase(cfg usecase.SearchConfig) (usecase.SearchPipelineUsecase, *pipelineMocks) {
	m := &pipelineMocks{
		search:     new(MockCaseSearchRepository),
		vector:     new(MockCaseVectorRepository),
		embed:      new(MockEmbeddingClient),
		summarizer: new(MockSummarizer),
	}
	uc := usecase.NewSearchPipelineUsecase(m.search, m.vector, m.embed, m.summarizer, cfg, testLogger())
	return uc, m
}

// expectHappyRetrieval wires a three-plus-two candidate round where TC_2 is a
// title-identical duplicate of TC_1.
func expectHappyRetrieval(m *pipelineMocks) {
	queryVec := []float32{0.2, 0.8}
	m.embed.On("EmbedQuery", mock.Anything, "patient consent").Return(&domain.EmbeddingResult{
		Vector:      queryVec,
		Model:       "text-embedding-3-small",
		TotalTokens: 5,
		Cost:        0.00001,
	}, nil)
	m.search.On("SearchLexical", mock.Anything, "patient consent", 50, domain.SearchFilters(nil), domain.FieldWeights(nil)).
		Return([]domain.Candidate{
			lexicalCandidate("TC_1", "Verify patient consent capture", 1, 12.0),
			lexicalCandidate("TC_2", "verify PATIENT consent capture", 2, 10.0),
			lexicalCandidate("TC_3", "Consent audit trail", 3, 5.0),
		}, nil)
	m.vector.On("SearchVector", mock.Anything, queryVec, 50, 100, domain.SearchFilters(nil)).
		Return([]domain.Candidate{
			vectorCandidate("TC_1", "Verify patient consent capture", 1, 0.95),
			vectorCandidate("TC_3", "Consent audit trail", 2, 0.80),
		}, nil)
}

func stageNames(stages []usecase.StageRecord) []string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Name)
	}
	return names
}

var fullStageOrder = []string{
	usecase.StageValidate, usecase.StageNormalize, usecase.StageRetrieve,
	usecase.StageFuse, usecase.StageDeduplicate, usecase.StageSummarize,
}

func TestSearchPipeline_Execute_FullRun(t *testing.T) {
	uc, m := newPipelineUsecase(usecase.DefaultSearchConfig())
	expectHappyRetrieval(m)
	m.summarizer.On("Execute", mock.Anything, mock.MatchedBy(func(in usecase.SummarizeCasesInput) bool {
		return len(in.Results) == 2 && in.Results[0].ID == "TC_1" && in.SummaryType == "concise"
	})).Return(&usecase.SummarizeCasesOutput{
		Summary: "Consent capture and audit coverage.",
		Model:   "gpt-4o-mini",
		Usage:   domain.CompletionUsage{TotalTokens: 200},
		Cost:    0.0003,
	}, nil)

	output, err := uc.Execute(context.Background(), usecase.SearchPipelineInput{Query: "Pt consent"})

	require.NoError(t, err)
	assert.Equal(t, "Pt consent", output.Query)
	assert.Equal(t, "patient consent", output.Transformation.Normalized)

	assert.Len(t, output.CandidatesLexical, 3)
	assert.Len(t, output.CandidatesVector, 2)
	assert.Len(t, output.Fused, 3)

	// The title-identical duplicate is dropped, survivors keep fused order.
	require.Len(t, output.Deduplicated, 2)
	assert.Equal(t, "TC_1", output.Deduplicated[0].Document.ID)
	assert.Equal(t, "TC_3", output.Deduplicated[1].Document.ID)
	require.Len(t, output.Duplicates, 1)
	assert.Equal(t, "TC_2", output.Duplicates[0].Document.ID)
	assert.Equal(t, "TC_1", output.Duplicates[0].DuplicateOf)

	require.NotNil(t, output.Summary)
	assert.Equal(t, "Consent capture and audit coverage.", output.Summary.Summary)
	assert.False(t, output.Degraded)
	assert.Empty(t, output.Warnings)

	assert.Equal(t, fullStageOrder, stageNames(output.Stages))
	checkpoints := []int{
		usecase.CheckpointValidate, usecase.CheckpointNormalize, usecase.CheckpointRetrieve,
		usecase.CheckpointFuse, usecase.CheckpointDeduplicate, usecase.CheckpointSummarize,
	}
	for i, s := range output.Stages {
		assert.Equal(t, checkpoints[i], s.Checkpoint)
		assert.Empty(t, s.Error)
	}

	assert.Equal(t, int64(205), output.Totals.Tokens)
	assert.InDelta(t, 0.00031, output.Totals.Cost, 1e-9)
	m.summarizer.AssertExpectations(t)
}

func TestSearchPipeline_Execute_SummarizerFailureIsPartial(t *testing.T) {
	uc, m := newPipelineUsecase(usecase.DefaultSearchConfig())
	expectHappyRetrieval(m)
	m.summarizer.On("Execute", mock.Anything, mock.Anything).
		Return(nil, domain.WrapError(domain.ErrSummarizerFailure, "summarize cases", errors.New("deadline exceeded")))

	output, err := uc.Execute(context.Background(), usecase.SearchPipelineInput{Query: "Pt consent"})

	// Results ship without a summary; the failure becomes a warning.
	require.NoError(t, err)
	assert.Nil(t, output.Summary)
	assert.Len(t, output.Deduplicated, 2)
	require.NotEmpty(t, output.Warnings)
	assert.Contains(t, output.Warnings[0], "summarizer failure")

	assert.Equal(t, fullStageOrder, stageNames(output.Stages))
	last := output.Stages[len(output.Stages)-1]
	assert.Equal(t, usecase.StageSummarize, last.Name)
	assert.NotEmpty(t, last.Error)
}

func TestSearchPipeline_Execute_DegradedLexicalOnly(t *testing.T) {
	uc, m := newPipelineUsecase(usecase.DefaultSearchConfig())
	m.embed.On("EmbedQuery", mock.Anything, "patient consent").
		Return(nil, domain.WrapError(domain.ErrEmbeddingFailure, "embed query", errors.New("503 after retries")))
	m.search.On("SearchLexical", mock.Anything, "patient consent", 50, domain.SearchFilters(nil), domain.FieldWeights(nil)).
		Return([]domain.Candidate{
			lexicalCandidate("TC_1", "Verify patient consent capture", 1, 12.0),
			lexicalCandidate("TC_3", "Consent audit trail", 2, 5.0),
		}, nil)
	m.summarizer.On("Execute", mock.Anything, mock.Anything).
		Return(&usecase.SummarizeCasesOutput{Summary: "Lexical-only digest."}, nil)

	output, err := uc.Execute(context.Background(), usecase.SearchPipelineInput{Query: "Pt consent"})

	require.NoError(t, err)
	assert.True(t, output.Degraded)
	require.NotEmpty(t, output.Warnings)
	assert.Contains(t, output.Warnings[0], "embedding service failure")
	assert.Empty(t, output.CandidatesVector)
	assert.Len(t, output.Deduplicated, 2)
	require.NotNil(t, output.Summary)
	m.vector.AssertNotCalled(t, "SearchVector")
}

func TestSearchPipeline_Execute_EmptyQueryFails(t *testing.T) {
	uc, m := newPipelineUsecase(usecase.DefaultSearchConfig())

	output, err := uc.Execute(context.Background(), usecase.SearchPipelineInput{Query: "   "})

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidArgument))

	// The failing stage is still on the record.
	require.NotNil(t, output)
	require.Len(t, output.Stages, 1)
	assert.Equal(t, usecase.StageValidate, output.Stages[0].Name)
	assert.NotEmpty(t, output.Stages[0].Error)
	m.search.AssertNotCalled(t, "SearchLexical")
	m.embed.AssertNotCalled(t, "EmbedQuery")
}

func TestSearchPipeline_Execute_LexicalFailureAborts(t *testing.T) {
	uc, m := newPipelineUsecase(usecase.DefaultSearchConfig())
	m.search.On("SearchLexical", mock.Anything, "consent", 50, domain.SearchFilters(nil), domain.FieldWeights(nil)).
		Return(nil, domain.WrapError(domain.ErrBackendUnavailable, "lexical query", errors.New("connection refused")))
	m.embed.On("EmbedQuery", mock.Anything, "consent").
		Return(&domain.EmbeddingResult{Vector: []float32{0.1}}, nil).Maybe()
	m.vector.On("SearchVector", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.Candidate{}, nil).Maybe()

	output, err := uc.Execute(context.Background(), usecase.SearchPipelineInput{Query: "consent"})

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrBackendUnavailable))
	assert.Equal(t, []string{usecase.StageValidate, usecase.StageNormalize, usecase.StageRetrieve}, stageNames(output.Stages))
	m.summarizer.AssertNotCalled(t, "Execute")
}

func TestSearchPipeline_Execute_BusyWhenSaturated(t *testing.T) {
	cfg := usecase.DefaultSearchConfig()
	cfg.AdmissionSlots = 1
	cfg.AdmissionWait = 40 * time.Millisecond
	uc, m := newPipelineUsecase(cfg)

	entered := make(chan struct{})
	release := make(chan struct{})
	m.search.On("SearchLexical", mock.Anything, "consent", 50, domain.SearchFilters(nil), domain.FieldWeights(nil)).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(nil, errors.New("released")).Once()
	m.embed.On("EmbedQuery", mock.Anything, "consent").
		Return(nil, domain.WrapError(domain.ErrEmbeddingFailure, "embed query", errors.New("down"))).Maybe()

	firstDone := make(chan error, 1)
	go func() {
		_, err := uc.Execute(context.Background(), usecase.SearchPipelineInput{Query: "consent"})
		firstDone <- err
	}()

	// Once the first run is inside retrieval it holds the only slot.
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never reached retrieval")
	}

	started := time.Now()
	_, err := uc.Execute(context.Background(), usecase.SearchPipelineInput{Query: "consent"})
	waited := time.Since(started)

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrBusy))
	assert.GreaterOrEqual(t, waited, 35*time.Millisecond, "busy must only fire after the wait budget")

	close(release)
	<-firstDone
}

func TestSearchPipeline_Execute_TimeoutMapsToTimeout(t *testing.T) {
	cfg := usecase.DefaultSearchConfig()
	cfg.PipelineTimeout = 50 * time.Millisecond
	uc, m := newPipelineUsecase(cfg)

	m.search.On("SearchLexical", mock.Anything, "consent", 50, domain.SearchFilters(nil), domain.FieldWeights(nil)).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(nil, context.DeadlineExceeded)
	m.embed.On("EmbedQuery", mock.Anything, "consent").
		Return(nil, domain.WrapError(domain.ErrEmbeddingFailure, "embed query", errors.New("down"))).Maybe()

	_, err := uc.Execute(context.Background(), usecase.SearchPipelineInput{Query: "consent"})

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrTimeout))
	m.summarizer.AssertNotCalled(t, "Execute")
}

func TestSearchPipeline_Stream_EmitsOrderedProgress(t *testing.T) {
	uc, m := newPipelineUsecase(usecase.DefaultSearchConfig())
	expectHappyRetrieval(m)
	m.summarizer.On("Execute", mock.Anything, mock.Anything).
		Return(&usecase.SummarizeCasesOutput{Summary: "digest"}, nil)

	var events []usecase.PipelineEvent
	for ev := range uc.Stream(context.Background(), usecase.SearchPipelineInput{Query: "Pt consent"}) {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)

	var progress []int
	var stages []string
	for _, ev := range events {
		switch ev.Kind {
		case usecase.PipelineEventProgress:
			progress = append(progress, ev.Checkpoint)
		case usecase.PipelineEventStage:
			require.NotNil(t, ev.Record)
			stages = append(stages, ev.Record.Name)
		case usecase.PipelineEventError:
			t.Fatalf("unexpected error event: %s", ev.Error)
		}
	}

	assert.Equal(t, []int{5, 10, 35, 45, 55, 75, 100}, progress)
	assert.Equal(t, fullStageOrder, stages)

	last := events[len(events)-1]
	assert.Equal(t, usecase.PipelineEventDone, last.Kind)
	assert.Equal(t, usecase.CheckpointDone, last.Checkpoint)
	require.NotNil(t, last.Output)
	assert.NotNil(t, last.Output.Summary)
	assert.Len(t, last.Output.Deduplicated, 2)
}

func TestSearchPipeline_Stream_EmitsErrorEvent(t *testing.T) {
	uc, _ := newPipelineUsecase(usecase.DefaultSearchConfig())

	var events []usecase.PipelineEvent
	for ev := range uc.Stream(context.Background(), usecase.SearchPipelineInput{Query: ""}) {
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, usecase.PipelineEventError, last.Kind)
	assert.Contains(t, last.Error, "query is required")
	for _, ev := range events {
		assert.NotEqual(t, usecase.PipelineEventDone, ev.Kind)
	}
}
