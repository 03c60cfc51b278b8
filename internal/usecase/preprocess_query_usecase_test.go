package usecase_test

import (
	"context"
	"testing"

	"case-retriever/internal/domain"
	"case-retriever/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessQuery_Execute_Defaults(t *testing.T) {
	uc := usecase.NewPreprocessQueryUsecase(testLogger())

	output, err := uc.Execute(context.Background(), usecase.PreprocessQueryInput{Query: "Pt consent check"})

	require.NoError(t, err)
	tr := output.Transformation
	assert.Equal(t, "Pt consent check", tr.Original)
	assert.Equal(t, "patient consent check", tr.Normalized)
	assert.Contains(t, tr.AbbreviationsApplied, "pt -> patient")
	require.NotEmpty(t, tr.Expansions)
	assert.Equal(t, tr.Normalized, tr.Expansions[0])
	// Defaults allow up to three synonym rewrites.
	assert.Len(t, tr.Expansions, 4)
}

func TestPreprocessQuery_Execute_EmptyQueryIsNotAnError(t *testing.T) {
	uc := usecase.NewPreprocessQueryUsecase(testLogger())

	output, err := uc.Execute(context.Background(), usecase.PreprocessQueryInput{Query: "   "})

	require.NoError(t, err)
	assert.Equal(t, "   ", output.Transformation.Original)
	assert.Empty(t, output.Transformation.Normalized)
	assert.Empty(t, output.Transformation.Expansions)
}

func TestPreprocessQuery_Execute_CustomOptions(t *testing.T) {
	uc := usecase.NewPreprocessQueryUsecase(testLogger())

	output, err := uc.Execute(context.Background(), usecase.PreprocessQueryInput{
		Query:   "Pt APPT  verify",
		Options: &domain.TransformOptions{},
	})

	require.NoError(t, err)
	tr := output.Transformation
	// Everything off: lowercase and whitespace collapse only.
	assert.Equal(t, "pt appt verify", tr.Normalized)
	assert.Empty(t, tr.AbbreviationsApplied)
	assert.Empty(t, tr.SynonymsApplied)
	assert.Equal(t, []string{"pt appt verify"}, tr.Expansions)
}

func TestPreprocessQuery_Execute_IdentifiersSurvive(t *testing.T) {
	uc := usecase.NewPreprocessQueryUsecase(testLogger())

	output, err := uc.Execute(context.Background(), usecase.PreprocessQueryInput{Query: "Verify TC_101 against HC-22"})

	require.NoError(t, err)
	assert.Contains(t, output.Transformation.Normalized, "TC_101")
	assert.Contains(t, output.Transformation.Normalized, "HC-22")
}
