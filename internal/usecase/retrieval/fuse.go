package retrieval

import (
	"sort"

	"case-retriever/internal/domain"
)

// FusionMethod selects how the two source rankings combine.
type FusionMethod string

const (
	FusionRRF        FusionMethod = "rrf"
	FusionWeighted   FusionMethod = "weighted"
	FusionReciprocal FusionMethod = "reciprocal"
)

// RRFConstant is the k in 1/(k+rank).
const RRFConstant = 60.0

// FusionWeights splits influence between the two sources.
type FusionWeights struct {
	Lexical float64 `json:"lexical"`
	Vector  float64 `json:"vector"`
}

// DefaultFusionWeights favours the dense side, matching the hybrid search
// defaults.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Lexical: 0.4, Vector: 0.6}
}

// ParseFusionMethod validates a caller-supplied method name. Empty input
// falls back to RRF.
func ParseFusionMethod(s string) (FusionMethod, error) {
	switch FusionMethod(s) {
	case FusionRRF, FusionWeighted, FusionReciprocal:
		return FusionMethod(s), nil
	case "":
		return FusionRRF, nil
	}
	return "", domain.Invalid("unknown fusion method %q", s)
}

// Validate rejects weights fusion cannot work with. Callers that accept
// weights over the wire check them before any retrieval work starts.
func (w FusionWeights) Validate() error {
	if w.Lexical < 0 || w.Vector < 0 {
		return domain.Invalid("fusion weights must be non-negative, got lexical=%v vector=%v", w.Lexical, w.Vector)
	}
	if w.Lexical == 0 && w.Vector == 0 {
		return domain.Invalid("fusion weights must not both be zero")
	}
	return nil
}

// normalized scales the weights to sum to 1.
func (w FusionWeights) normalized() FusionWeights {
	sum := w.Lexical + w.Vector
	return FusionWeights{Lexical: w.Lexical / sum, Vector: w.Vector / sum}
}

// Fuse merges the lexical and vector candidate lists into one ranking under
// the given method. Scores are min-max normalized per source before weighted
// fusion; rank-based methods ignore raw scores entirely. Ordering is fused
// score descending, then lower best original rank, then id. limit <= 0 keeps
// every fused candidate.
func Fuse(lexical, vector []domain.Candidate, method FusionMethod, weights FusionWeights, limit int) ([]domain.RankedCandidate, error) {
	switch method {
	case FusionRRF, FusionWeighted, FusionReciprocal:
	default:
		return nil, domain.Invalid("unknown fusion method %q", string(method))
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if method == FusionWeighted {
		weights = weights.normalized()
	}

	lexNorm := NormalizeMinMax(scoresOf(lexical))
	vecNorm := NormalizeMinMax(scoresOf(vector))

	merged := make(map[string]*domain.RankedCandidate, len(lexical)+len(vector))
	order := make([]string, 0, len(lexical)+len(vector))

	for i, c := range lexical {
		if _, seen := merged[c.Document.ID]; seen {
			continue
		}
		merged[c.Document.ID] = &domain.RankedCandidate{
			Document:     c.Document,
			Sources:      []domain.CandidateSource{domain.SourceLexical},
			LexicalScore: c.Score,
			LexicalNorm:  lexNorm[i],
			LexicalRank:  i + 1,
		}
		order = append(order, c.Document.ID)
	}
	for i, c := range vector {
		if rc, seen := merged[c.Document.ID]; seen {
			if rc.VectorRank != 0 {
				continue
			}
			rc.Sources = append(rc.Sources, domain.SourceVector)
			rc.VectorScore = c.Score
			rc.VectorNorm = vecNorm[i]
			rc.VectorRank = i + 1
			continue
		}
		merged[c.Document.ID] = &domain.RankedCandidate{
			Document:    c.Document,
			Sources:     []domain.CandidateSource{domain.SourceVector},
			VectorScore: c.Score,
			VectorNorm:  vecNorm[i],
			VectorRank:  i + 1,
		}
		order = append(order, c.Document.ID)
	}

	fused := make([]domain.RankedCandidate, 0, len(order))
	for _, id := range order {
		rc := merged[id]
		rc.FusedScore = fusedScore(rc, method, weights)
		fused = append(fused, *rc)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].FusedScore != fused[j].FusedScore {
			return fused[i].FusedScore > fused[j].FusedScore
		}
		ri, rj := fused[i].BestOriginalRank(), fused[j].BestOriginalRank()
		if ri != rj {
			return ri < rj
		}
		return fused[i].Document.ID < fused[j].Document.ID
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	for i := range fused {
		fused[i].RankChange = fused[i].BestOriginalRank() - (i + 1)
	}
	return fused, nil
}

func fusedScore(rc *domain.RankedCandidate, method FusionMethod, w FusionWeights) float64 {
	switch method {
	case FusionRRF:
		var score float64
		if rc.LexicalRank > 0 {
			score += 1.0 / (RRFConstant + float64(rc.LexicalRank))
		}
		if rc.VectorRank > 0 {
			score += 1.0 / (RRFConstant + float64(rc.VectorRank))
		}
		return score
	case FusionWeighted:
		return w.Lexical*rc.LexicalNorm + w.Vector*rc.VectorNorm
	default:
		var score float64
		if rc.LexicalRank > 0 {
			score += w.Lexical / float64(rc.LexicalRank)
		}
		if rc.VectorRank > 0 {
			score += w.Vector / float64(rc.VectorRank)
		}
		return score
	}
}

func scoresOf(candidates []domain.Candidate) []float64 {
	if len(candidates) == 0 {
		return nil
	}
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = c.Score
	}
	return out
}
