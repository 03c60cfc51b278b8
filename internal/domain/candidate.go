package domain

// CandidateSource tags which retriever emitted a candidate.
type CandidateSource string

const (
	SourceLexical CandidateSource = "lexical"
	SourceVector  CandidateSource = "vector"
)

// Candidate is one item emitted by a single retriever for one query.
// It exists only for the lifetime of that request.
type Candidate struct {
	Document CaseDocument `json:"document"`
	// Score is the raw backend score: BM25-style relevance for lexical,
	// cosine-derived similarity in [0,1] for vector.
	Score float64 `json:"score"`
	// Rank is 1-based within the emitting source.
	Rank   int             `json:"rank"`
	Source CandidateSource `json:"source"`
}

// RankedCandidate is a fused candidate with per-source bookkeeping kept for
// observability. Rank fields are 0 when the item was absent from that source.
type RankedCandidate struct {
	Document     CaseDocument      `json:"document"`
	FusedScore   float64           `json:"fusedScore"`
	Sources      []CandidateSource `json:"sources"`
	LexicalScore float64           `json:"lexicalScore"`
	VectorScore  float64           `json:"vectorScore"`
	LexicalNorm  float64           `json:"lexicalNorm"`
	VectorNorm   float64           `json:"vectorNorm"`
	LexicalRank  int               `json:"lexicalRank,omitempty"`
	VectorRank   int               `json:"vectorRank,omitempty"`
	// RankChange is original best rank minus fused rank; positive means the
	// item moved up during fusion.
	RankChange int `json:"rankChange"`
}

// BestOriginalRank returns the lower of the per-source ranks, ignoring
// sources the item was absent from. Zero when the item has no rank at all.
func (r *RankedCandidate) BestOriginalRank() int {
	switch {
	case r.LexicalRank == 0:
		return r.VectorRank
	case r.VectorRank == 0:
		return r.LexicalRank
	case r.LexicalRank < r.VectorRank:
		return r.LexicalRank
	default:
		return r.VectorRank
	}
}

// FoundIn reports whether the candidate was emitted by the given source.
func (r *RankedCandidate) FoundIn(source CandidateSource) bool {
	for _, s := range r.Sources {
		if s == source {
			return true
		}
	}
	return false
}
