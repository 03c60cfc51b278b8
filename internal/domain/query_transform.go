package domain

// QueryTransformation records how a raw query was normalized and expanded
// before retrieval.
type QueryTransformation struct {
	Original   string `json:"original"`
	Normalized string `json:"normalized"`
	// Expansions holds the ordered rewrites actually sent to retrieval;
	// index 0 is always the normalized form itself.
	Expansions           []string `json:"expansions,omitempty"`
	AbbreviationsApplied []string `json:"abbreviationsApplied,omitempty"`
	SynonymsApplied      []string `json:"synonymsApplied,omitempty"`
}

// TransformOptions tunes the query normalizer. The zero value disables
// everything; use DefaultTransformOptions for the pipeline defaults.
type TransformOptions struct {
	EnableAbbreviations  bool                `json:"enableAbbreviations"`
	EnableSynonyms       bool                `json:"enableSynonyms"`
	MaxSynonymVariations int                 `json:"maxSynonymVariations"`
	PreserveIdentifiers  bool                `json:"preserveIdentifiers"`
	CustomAbbreviations  map[string]string   `json:"customAbbreviations,omitempty"`
	CustomSynonyms       map[string][]string `json:"customSynonyms,omitempty"`
}

// DefaultTransformOptions returns the normalizer settings the pipeline uses
// when the caller supplies none.
func DefaultTransformOptions() TransformOptions {
	return TransformOptions{
		EnableAbbreviations:  true,
		EnableSynonyms:       true,
		MaxSynonymVariations: 3,
		PreserveIdentifiers:  true,
	}
}
