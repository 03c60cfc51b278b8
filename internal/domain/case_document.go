package domain

import (
	"strings"

	"github.com/pgvector/pgvector-go"
)

// CaseDocument is one stored corpus item. The corpus mixes two projections of
// the same concept: healthcare test cases (ID/Title/Steps/ExpectedResults) and
// user stories (Key/Summary/BusinessValue/AcceptanceCriteria). Either subset
// may be populated; pick fields through the accessors instead of guessing the
// collection a request targets.
type CaseDocument struct {
	ID              string `json:"id"`
	Module          string `json:"module,omitempty"`
	Title           string `json:"title,omitempty"`
	Description     string `json:"description,omitempty"`
	Steps           string `json:"steps,omitempty"`
	ExpectedResults string `json:"expectedResults,omitempty"`
	PreRequisites   string `json:"preRequisites,omitempty"`
	Priority        string `json:"priority,omitempty"`
	Risk            string `json:"risk,omitempty"`
	Type            string `json:"type,omitempty"`

	// User-story projection.
	Key                string `json:"key,omitempty"`
	Summary            string `json:"summary,omitempty"`
	BusinessValue      string `json:"businessValue,omitempty"`
	AcceptanceCriteria string `json:"acceptanceCriteria,omitempty"`

	// Embedding is populated by the bulk loader and read by ANN search.
	// It never crosses the HTTP boundary.
	Embedding pgvector.Vector `json:"-"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// DisplayTitle returns the best human-readable title across both projections.
// Empty when the document carries no title-like field at all.
func (d *CaseDocument) DisplayTitle() string {
	switch {
	case d.Title != "":
		return d.Title
	case d.Summary != "":
		return d.Summary
	default:
		return d.Key
	}
}

// FullText concatenates every populated text field. Used for similarity
// comparison when titles are empty.
func (d *CaseDocument) FullText() string {
	parts := make([]string, 0, 12)
	for _, s := range []string{
		d.Title, d.Summary, d.Module, d.Description, d.Steps,
		d.ExpectedResults, d.PreRequisites, d.BusinessValue, d.AcceptanceCriteria,
	} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// EmbeddingText is the canonical text embedded for this document: the same
// concatenation order the bulk loader used when the corpus was built.
func (d *CaseDocument) EmbeddingText() string {
	parts := make([]string, 0, 6)
	if t := d.DisplayTitle(); t != "" {
		parts = append(parts, t)
	}
	for _, s := range []string{d.Module, d.Description, d.Steps, d.ExpectedResults, d.AcceptanceCriteria} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
