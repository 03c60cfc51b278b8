package searchhttp

import (
	"case-retriever/internal/domain"
	"case-retriever/internal/usecase"
	"case-retriever/internal/usecase/retrieval"
)

// SearchRequest is the body of the pure-vector and bm25 search routes.
// Fields only applies to bm25.
type SearchRequest struct {
	Query   string               `json:"query"`
	Limit   int                  `json:"limit"`
	Filters domain.SearchFilters `json:"filters"`
	Fields  domain.FieldWeights  `json:"fields"`
}

type HybridSearchRequest struct {
	Query   string               `json:"query"`
	Limit   int                  `json:"limit"`
	Filters domain.SearchFilters `json:"filters"`
	// BM25Weight and VectorWeight resolve independently; an omitted side
	// keeps its default so callers can pin just one.
	BM25Weight   *float64            `json:"bm25Weight"`
	VectorWeight *float64            `json:"vectorWeight"`
	BM25Fields   domain.FieldWeights `json:"bm25Fields"`
}

type RerankSearchRequest struct {
	Query        string               `json:"query"`
	Limit        int                  `json:"limit"`
	Filters      domain.SearchFilters `json:"filters"`
	FusionMethod string               `json:"fusionMethod"`
	RerankTopK   int                  `json:"rerankTopK"`
	BM25Weight   *float64             `json:"bm25Weight"`
	VectorWeight *float64             `json:"vectorWeight"`
}

type PreprocessRequest struct {
	Query   string                   `json:"query"`
	Options *domain.TransformOptions `json:"options"`
}

type DeduplicateRequest struct {
	Results   []domain.RankedCandidate `json:"results"`
	Threshold *float64                 `json:"threshold"`
}

type SummarizeRequest struct {
	Results     []domain.CaseDocument `json:"results"`
	SummaryType string                `json:"summaryType"`
}

type PipelineRequest struct {
	Query        string                   `json:"query"`
	Limit        int                      `json:"limit"`
	Filters      domain.SearchFilters     `json:"filters"`
	FusionMethod string                   `json:"fusionMethod"`
	BM25Weight   *float64                 `json:"bm25Weight"`
	VectorWeight *float64                 `json:"vectorWeight"`
	SummaryType  string                   `json:"summaryType"`
	Options      *domain.TransformOptions `json:"options"`
}

func (r PipelineRequest) toInput() usecase.SearchPipelineInput {
	return usecase.SearchPipelineInput{
		Query:            r.Query,
		Limit:            r.Limit,
		Filters:          r.Filters,
		FusionMethod:     r.FusionMethod,
		Weights:          fusionWeights(r.BM25Weight, r.VectorWeight),
		SummaryType:      r.SummaryType,
		TransformOptions: r.Options,
	}
}

type GenerateEmbeddingsRequest struct {
	IDs       []string `json:"ids"`
	BatchSize int      `json:"batchSize"`
}

// SearchResponse is the pure-vector search envelope.
type SearchResponse struct {
	Success bool                 `json:"success"`
	Query   string               `json:"query"`
	Filters domain.SearchFilters `json:"filters,omitempty"`
	Results []domain.Candidate   `json:"results"`
	Cost    float64              `json:"cost"`
	Tokens  int64                `json:"tokens"`
}

// BM25SearchResponse reports searchTime in milliseconds.
type BM25SearchResponse struct {
	Success      bool               `json:"success"`
	SearchType   string             `json:"searchType"`
	Results      []domain.Candidate `json:"results"`
	Count        int                `json:"count"`
	SearchTimeMs int64              `json:"searchTime"`
}

type HybridSearchResponse struct {
	Success    bool                     `json:"success"`
	SearchType string                   `json:"searchType"`
	Results    []domain.RankedCandidate `json:"results"`
	Stats      usecase.HybridStats      `json:"stats"`
	Timing     usecase.HybridTiming     `json:"timing"`
	Cost       float64                  `json:"cost"`
	Tokens     int64                    `json:"tokens"`
	Degraded   bool                     `json:"degraded,omitempty"`
	Warnings   []string                 `json:"warnings,omitempty"`
}

type RerankSearchResponse struct {
	Success         bool                     `json:"success"`
	FusionMethod    string                   `json:"fusionMethod"`
	Results         []domain.RankedCandidate `json:"results"`
	BeforeReranking []usecase.RerankEntry    `json:"beforeReranking"`
	AfterReranking  []usecase.RerankEntry    `json:"afterReranking"`
	Stats           usecase.HybridStats      `json:"stats"`
	Timing          usecase.HybridTiming     `json:"timing"`
	Cost            float64                  `json:"cost"`
	Tokens          int64                    `json:"tokens"`
	Degraded        bool                     `json:"degraded,omitempty"`
	Warnings        []string                 `json:"warnings,omitempty"`
}

type DeduplicateResponse struct {
	Deduplicated []domain.RankedCandidate    `json:"deduplicated"`
	Duplicates   []retrieval.DuplicateRecord `json:"duplicates"`
	Stats        usecase.DedupStats          `json:"stats"`
}

// SummarizeResponse keeps summary nullable: a summarizer failure degrades to
// summary null plus a warning instead of an error status.
type SummarizeResponse struct {
	Summary  *string  `json:"summary"`
	Tokens   int64    `json:"tokens"`
	Cost     float64  `json:"cost"`
	Model    string   `json:"model,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type ActiveJobsResponse struct {
	Jobs  []*domain.Job `json:"jobs"`
	Count int           `json:"count"`
}

type GenerateEmbeddingsResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// fusionWeights resolves the optional per-source weights against the
// defaults. Both sides omitted means nil, i.e. the usecase defaults.
func fusionWeights(bm25, vector *float64) *retrieval.FusionWeights {
	if bm25 == nil && vector == nil {
		return nil
	}
	w := retrieval.DefaultFusionWeights()
	if bm25 != nil {
		w.Lexical = *bm25
	}
	if vector != nil {
		w.Vector = *vector
	}
	return &w
}
