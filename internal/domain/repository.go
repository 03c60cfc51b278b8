package domain

import "context"

// SearchFilters are AND-composed equality predicates over classification
// fields. Keys are API field names; repositories validate them against an
// allow-list before they reach the backend.
type SearchFilters map[string]string

// FieldWeights maps a searchable field name to its lexical boost.
type FieldWeights map[string]float64

// DefaultFieldWeights returns the per-field boosts applied to lexical search
// when the caller supplies none.
func DefaultFieldWeights() FieldWeights {
	return FieldWeights{
		"id":              10.0,
		"title":           8.0,
		"module":          5.0,
		"description":     2.0,
		"expectedResults": 1.5,
		"steps":           1.0,
		"preRequisites":   0.8,
	}
}

// CaseSearchRepository is the lexical primitive of the search backend:
// a weighted-field full-text query with fuzziness and prefix matching.
type CaseSearchRepository interface {
	// SearchLexical returns at most limit candidates ordered by lexical score
	// descending, each carrying the raw backend score and its 1-based rank.
	SearchLexical(ctx context.Context, query string, limit int, filters SearchFilters, weights FieldWeights) ([]Candidate, error)
}

// CaseVectorRepository is the ANN primitive of the search backend.
type CaseVectorRepository interface {
	// SearchVector returns at most limit candidates by cosine similarity,
	// scores mapped into [0,1]. numCandidates widens the index probe.
	SearchVector(ctx context.Context, embedding []float32, limit, numCandidates int, filters SearchFilters) ([]Candidate, error)
}

// DistinctMetadata lists the distinct classification values present in the
// corpus, used by callers to build filter pickers.
type DistinctMetadata struct {
	Modules    []string `json:"modules"`
	Priorities []string `json:"priorities"`
	Risks      []string `json:"risks"`
	Types      []string `json:"types"`
}

// MetadataRepository reads corpus-wide classification values.
type MetadataRepository interface {
	DistinctValues(ctx context.Context) (*DistinctMetadata, error)
}

// EmbeddingUpdate pairs a document with its freshly generated vector.
type EmbeddingUpdate struct {
	ID        string
	Embedding []float32
}

// CaseWriteRepository is the bulk loader's view of the corpus: listing
// documents still missing vectors and writing generated ones back.
type CaseWriteRepository interface {
	// ListMissingEmbeddings returns up to limit documents without a stored
	// vector. When ids is non-empty the scan is restricted to those ids.
	ListMissingEmbeddings(ctx context.Context, ids []string, limit int) ([]CaseDocument, error)

	// CountEmbeddingCoverage reports corpus size and how many documents
	// already carry a vector.
	CountEmbeddingCoverage(ctx context.Context) (total int64, embedded int64, err error)

	// UpdateEmbeddings writes vectors for the given documents.
	UpdateEmbeddings(ctx context.Context, updates []EmbeddingUpdate) error
}

// TransactionManager defines the interface for handling database transactions.
type TransactionManager interface {
	// RunInTx executes the given function within a transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
