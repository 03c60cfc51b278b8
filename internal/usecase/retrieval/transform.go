package retrieval

import (
	"regexp"
	"strings"

	"case-retriever/internal/domain"

	"golang.org/x/text/unicode/norm"
)

// identifierPattern matches literal domain identifiers (test case ids,
// healthcare requirement ids, story keys) that must survive rewriting.
var identifierPattern = regexp.MustCompile(`(?i)\b(?:tc_\d+|hc-\d+|us-\d+|req-\d+)\b`)

// builtinAbbreviations maps whole-token clinical shorthand to its expansion.
// Expansions never contain abbreviation keys, so transformation is a fixpoint.
var builtinAbbreviations = map[string]string{
	"appt": "appointment",
	"auth": "authentication",
	"dx":   "diagnosis",
	"ehr":  "electronic health record",
	"emr":  "electronic medical record",
	"hcp":  "healthcare provider",
	"hx":   "history",
	"med":  "medication",
	"meds": "medications",
	"msg":  "message",
	"otp":  "one time password",
	"pt":   "patient",
	"rx":   "prescription",
	"tx":   "treatment",
	"wa":   "whatsapp",
}

var builtinSynonyms = map[string][]string{
	"appointment":  {"booking", "visit", "schedule"},
	"cancel":       {"abort", "revoke"},
	"consent":      {"authorization", "permission", "approval"},
	"create":       {"add", "register"},
	"delete":       {"remove", "purge"},
	"error":        {"failure", "fault"},
	"notification": {"alert", "reminder"},
	"patient":      {"client"},
	"update":       {"modify", "edit"},
	"verify":       {"validate", "confirm", "check"},
}

// Transform applies the fixed normalization pipeline to a raw query:
// unicode NFKC + whitespace collapse + lowercase, identifier protection,
// whole-token abbreviation expansion, then synonym variants. An empty query
// yields an empty record; rejecting it is the caller's decision.
func Transform(raw string, opts domain.TransformOptions) domain.QueryTransformation {
	out := domain.QueryTransformation{Original: raw}

	normalized := normalize(raw)
	if normalized == "" {
		return out
	}

	protected := map[string]string{}
	if opts.PreserveIdentifiers {
		for _, m := range identifierPattern.FindAllString(norm.NFKC.String(raw), -1) {
			protected[strings.ToLower(m)] = m
		}
	}

	tokens := strings.Fields(normalized)

	if opts.EnableAbbreviations {
		abbreviations := mergeAbbreviations(opts.CustomAbbreviations)
		expanded := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if _, isProtected := protected[tok]; isProtected {
				expanded = append(expanded, tok)
				continue
			}
			if full, ok := abbreviations[tok]; ok {
				expanded = append(expanded, strings.Fields(full)...)
				out.AbbreviationsApplied = append(out.AbbreviationsApplied, tok+" -> "+full)
				continue
			}
			expanded = append(expanded, tok)
		}
		tokens = expanded
	}

	out.Normalized = restoreIdentifiers(tokens, protected)
	out.Expansions = []string{out.Normalized}

	if opts.EnableSynonyms && opts.MaxSynonymVariations > 0 {
		synonyms := mergeSynonyms(opts.CustomSynonyms)
		for _, variant := range synonymVariants(tokens, synonyms, protected, opts.MaxSynonymVariations, &out.SynonymsApplied) {
			out.Expansions = append(out.Expansions, restoreIdentifiers(variant, protected))
		}
	}

	return out
}

func normalize(raw string) string {
	s := norm.NFKC.String(raw)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// synonymVariants produces up to max single-substitution rewrites, walking
// tokens left to right and each token's synonyms in listed order.
func synonymVariants(tokens []string, synonyms map[string][]string, protected map[string]string, max int, applied *[]string) [][]string {
	var variants [][]string
	for i, tok := range tokens {
		if _, isProtected := protected[tok]; isProtected {
			continue
		}
		for _, alt := range synonyms[tok] {
			if len(variants) >= max {
				return variants
			}
			if alt == tok {
				continue
			}
			variant := make([]string, 0, len(tokens)+1)
			variant = append(variant, tokens[:i]...)
			variant = append(variant, strings.Fields(alt)...)
			variant = append(variant, tokens[i+1:]...)
			variants = append(variants, variant)
			*applied = append(*applied, tok+" -> "+alt)
		}
	}
	return variants
}

// restoreIdentifiers joins tokens back into a query string, putting protected
// identifiers back in their original casing.
func restoreIdentifiers(tokens []string, protected map[string]string) string {
	if len(protected) == 0 {
		return strings.Join(tokens, " ")
	}
	restored := make([]string, len(tokens))
	for i, tok := range tokens {
		if original, ok := protected[tok]; ok {
			restored[i] = original
			continue
		}
		restored[i] = tok
	}
	return strings.Join(restored, " ")
}

func mergeAbbreviations(custom map[string]string) map[string]string {
	if len(custom) == 0 {
		return builtinAbbreviations
	}
	merged := make(map[string]string, len(builtinAbbreviations)+len(custom))
	for k, v := range builtinAbbreviations {
		merged[k] = v
	}
	for k, v := range custom {
		merged[strings.ToLower(k)] = v
	}
	return merged
}

func mergeSynonyms(custom map[string][]string) map[string][]string {
	if len(custom) == 0 {
		return builtinSynonyms
	}
	merged := make(map[string][]string, len(builtinSynonyms)+len(custom))
	for k, v := range builtinSynonyms {
		merged[k] = v
	}
	for k, v := range custom {
		merged[strings.ToLower(k)] = v
	}
	return merged
}
