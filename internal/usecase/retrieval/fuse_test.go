package retrieval_test

import (
	"testing"

	"case-retriever/internal/domain"
	"case-retriever/internal/usecase/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(source domain.CandidateSource, idsAndScores ...interface{}) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(idsAndScores)/2)
	for i := 0; i < len(idsAndScores); i += 2 {
		id := idsAndScores[i].(string)
		score := idsAndScores[i+1].(float64)
		out = append(out, domain.Candidate{
			Document: domain.CaseDocument{ID: id, Title: "title " + id},
			Score:    score,
			Rank:     len(out) + 1,
			Source:   source,
		})
	}
	return out
}

func fusedIDs(list []domain.RankedCandidate) []string {
	ids := make([]string, len(list))
	for i, rc := range list {
		ids[i] = rc.Document.ID
	}
	return ids
}

func TestFuse_RRF_MergesBothSources(t *testing.T) {
	lexical := candidates(domain.SourceLexical, "a", 12.0, "b", 8.0, "c", 3.0)
	vector := candidates(domain.SourceVector, "b", 0.92, "d", 0.81)

	fused, err := retrieval.Fuse(lexical, vector, retrieval.FusionRRF, retrieval.DefaultFusionWeights(), 0)
	require.NoError(t, err)

	// b appears in both sources (ranks 2 and 1) and must win.
	assert.Equal(t, []string{"b", "a", "d", "c"}, fusedIDs(fused))
	assert.InDelta(t, 1.0/62.0+1.0/61.0, fused[0].FusedScore, 1e-9)
	assert.ElementsMatch(t, []domain.CandidateSource{domain.SourceLexical, domain.SourceVector}, fused[0].Sources)
	assert.Equal(t, 2, fused[0].LexicalRank)
	assert.Equal(t, 1, fused[0].VectorRank)

	// Never longer than the sum of the inputs.
	assert.LessOrEqual(t, len(fused), len(lexical)+len(vector))
}

func TestFuse_RRF_SymmetricUnderSwap(t *testing.T) {
	first := candidates(domain.SourceLexical, "a", 12.0, "b", 8.0, "c", 3.0)
	second := candidates(domain.SourceVector, "b", 0.92, "d", 0.81, "a", 0.4)

	fused, err := retrieval.Fuse(first, second, retrieval.FusionRRF, retrieval.DefaultFusionWeights(), 0)
	require.NoError(t, err)
	swapped, err := retrieval.Fuse(second, first, retrieval.FusionRRF, retrieval.DefaultFusionWeights(), 0)
	require.NoError(t, err)

	assert.Equal(t, fusedIDs(fused), fusedIDs(swapped))
}

func TestFuse_Weighted_EmptySourcePreservesOtherOrder(t *testing.T) {
	lexical := candidates(domain.SourceLexical, "a", 5.0, "b", 3.0, "c", 1.0)

	fused, err := retrieval.Fuse(lexical, nil, retrieval.FusionWeighted, retrieval.DefaultFusionWeights(), 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, fusedIDs(fused))
}

func TestFuse_Weighted_PureWeightsReproduceSourceOrder(t *testing.T) {
	lexical := candidates(domain.SourceLexical, "a", 9.0, "b", 7.0, "c", 2.0)
	vector := candidates(domain.SourceVector, "c", 0.99, "b", 0.9, "e", 0.2)

	positions := func(list []domain.RankedCandidate) map[string]int {
		pos := make(map[string]int, len(list))
		for i, rc := range list {
			pos[rc.Document.ID] = i
		}
		return pos
	}

	lexOnly, err := retrieval.Fuse(lexical, vector, retrieval.FusionWeighted, retrieval.FusionWeights{Lexical: 1, Vector: 0}, 0)
	require.NoError(t, err)
	pos := positions(lexOnly)
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["b"], pos["c"])

	vecOnly, err := retrieval.Fuse(lexical, vector, retrieval.FusionWeighted, retrieval.FusionWeights{Lexical: 0, Vector: 1}, 0)
	require.NoError(t, err)
	pos = positions(vecOnly)
	assert.Less(t, pos["c"], pos["b"])
	assert.Less(t, pos["b"], pos["e"])
}

func TestFuse_Weighted_RenormalizesWeights(t *testing.T) {
	lexical := candidates(domain.SourceLexical, "a", 10.0, "b", 5.0)
	vector := candidates(domain.SourceVector, "b", 0.9, "a", 0.3)

	// {2, 6} must behave exactly like {0.25, 0.75}.
	scaled, err := retrieval.Fuse(lexical, vector, retrieval.FusionWeighted, retrieval.FusionWeights{Lexical: 2, Vector: 6}, 0)
	require.NoError(t, err)
	unit, err := retrieval.Fuse(lexical, vector, retrieval.FusionWeighted, retrieval.FusionWeights{Lexical: 0.25, Vector: 0.75}, 0)
	require.NoError(t, err)

	require.Equal(t, len(unit), len(scaled))
	for i := range unit {
		assert.InDelta(t, unit[i].FusedScore, scaled[i].FusedScore, 1e-9)
	}
}

func TestFuse_Reciprocal_MissingRankContributesZero(t *testing.T) {
	lexical := candidates(domain.SourceLexical, "a", 4.0)
	vector := candidates(domain.SourceVector, "b", 0.8)

	fused, err := retrieval.Fuse(lexical, vector, retrieval.FusionReciprocal, retrieval.FusionWeights{Lexical: 0.4, Vector: 0.6}, 0)
	require.NoError(t, err)

	byID := map[string]float64{}
	for _, rc := range fused {
		byID[rc.Document.ID] = rc.FusedScore
	}
	assert.InDelta(t, 0.4, byID["a"], 1e-9)
	assert.InDelta(t, 0.6, byID["b"], 1e-9)
}

func TestFuse_DeterministicTieBreaks(t *testing.T) {
	// Same fused score, same best original rank: id decides.
	lexical := candidates(domain.SourceLexical, "b", 2.0)
	vector := candidates(domain.SourceVector, "a", 0.7)

	fused, err := retrieval.Fuse(lexical, vector, retrieval.FusionWeighted, retrieval.FusionWeights{Lexical: 0.5, Vector: 0.5}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fusedIDs(fused))

	// Same fused score, different best original rank: lower rank decides.
	lexical = candidates(domain.SourceLexical, "x", 2.0, "y", 2.0)
	fused, err = retrieval.Fuse(lexical, nil, retrieval.FusionWeighted, retrieval.DefaultFusionWeights(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, fusedIDs(fused))
}

func TestFuse_RecordsRankChange(t *testing.T) {
	lexical := candidates(domain.SourceLexical, "a", 9.0, "b", 8.0, "c", 7.0)
	vector := candidates(domain.SourceVector, "c", 0.95)

	fused, err := retrieval.Fuse(lexical, vector, retrieval.FusionRRF, retrieval.DefaultFusionWeights(), 0)
	require.NoError(t, err)

	// c held rank 3 lexically but rank 1 in the vector source; its best
	// original rank is 1 and it fuses to rank 1.
	require.Equal(t, "c", fused[0].Document.ID)
	assert.Equal(t, 0, fused[0].RankChange)
	// a drops from best rank 1 to fused rank 2.
	require.Equal(t, "a", fused[1].Document.ID)
	assert.Equal(t, -1, fused[1].RankChange)
}

func TestFuse_TruncatesToLimit(t *testing.T) {
	lexical := candidates(domain.SourceLexical, "a", 5.0, "b", 4.0, "c", 3.0)
	vector := candidates(domain.SourceVector, "d", 0.9, "e", 0.8)

	fused, err := retrieval.Fuse(lexical, vector, retrieval.FusionRRF, retrieval.DefaultFusionWeights(), 2)
	require.NoError(t, err)
	assert.Len(t, fused, 2)
}

func TestFuse_RejectsInvalidWeights(t *testing.T) {
	lexical := candidates(domain.SourceLexical, "a", 1.0)

	_, err := retrieval.Fuse(lexical, nil, retrieval.FusionWeighted, retrieval.FusionWeights{Lexical: -0.2, Vector: 1.2}, 0)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidArgument))

	_, err = retrieval.Fuse(lexical, nil, retrieval.FusionWeighted, retrieval.FusionWeights{}, 0)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidArgument))
}

func TestFuse_RejectsUnknownMethod(t *testing.T) {
	lexical := candidates(domain.SourceLexical, "a", 1.0)

	_, err := retrieval.Fuse(lexical, nil, retrieval.FusionMethod("cosine"), retrieval.DefaultFusionWeights(), 0)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidArgument))
}

func TestFuse_IgnoresDuplicateIDsWithinASource(t *testing.T) {
	lexical := candidates(domain.SourceLexical, "a", 5.0, "a", 4.0, "b", 3.0)

	fused, err := retrieval.Fuse(lexical, nil, retrieval.FusionRRF, retrieval.DefaultFusionWeights(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fusedIDs(fused))
	assert.Equal(t, 1, fused[0].LexicalRank)
}

func TestParseFusionMethod(t *testing.T) {
	for _, name := range []string{"rrf", "weighted", "reciprocal"} {
		method, err := retrieval.ParseFusionMethod(name)
		require.NoError(t, err)
		assert.Equal(t, retrieval.FusionMethod(name), method)
	}

	method, err := retrieval.ParseFusionMethod("")
	require.NoError(t, err)
	assert.Equal(t, retrieval.FusionRRF, method)

	_, err = retrieval.ParseFusionMethod("cosine")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidArgument))
}
