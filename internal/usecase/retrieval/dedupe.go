package retrieval

import (
	"strings"

	"case-retriever/internal/domain"
)

// DefaultDedupThreshold is the standalone deduplication default. The
// pipeline orchestrator runs stricter; see its config.
const DefaultDedupThreshold = 0.85

// DuplicateRecord describes one removed near-duplicate and the kept item it
// collided with.
type DuplicateRecord struct {
	Document    domain.CaseDocument `json:"document"`
	DuplicateOf string              `json:"duplicateOf"`
	Similarity  float64             `json:"similarity"`
}

// DedupResult splits a candidate list into kept items, in their original
// order, and removed near-duplicates.
type DedupResult struct {
	Kept    []domain.RankedCandidate
	Removed []DuplicateRecord
}

// Deduplicate walks the list in order and removes every item whose Jaccard
// title similarity against an already-kept item reaches the threshold. The
// removed record carries the first colliding kept id. O(n^2); candidate
// lists are a few dozen entries at this stage.
func Deduplicate(candidates []domain.RankedCandidate, threshold float64) DedupResult {
	var result DedupResult
	if len(candidates) == 0 {
		return result
	}

	type keptEntry struct {
		id     string
		tokens map[string]struct{}
	}
	kept := make([]keptEntry, 0, len(candidates))

	for _, cand := range candidates {
		tokens := similarityTokens(&cand.Document)
		removed := false
		for i := range kept {
			if s := jaccard(tokens, kept[i].tokens); s >= threshold {
				result.Removed = append(result.Removed, DuplicateRecord{
					Document:    cand.Document,
					DuplicateOf: kept[i].id,
					Similarity:  s,
				})
				removed = true
				break
			}
		}
		if removed {
			continue
		}
		kept = append(kept, keptEntry{id: cand.Document.ID, tokens: tokens})
		result.Kept = append(result.Kept, cand)
	}
	return result
}

// similarityTokens tokenizes the comparison text: the display title, or the
// full document when no title-like field is populated.
func similarityTokens(doc *domain.CaseDocument) map[string]struct{} {
	text := doc.DisplayTitle()
	if text == "" {
		text = doc.FullText()
	}
	fields := strings.Fields(strings.ToLower(text))
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}

// jaccard computes |a∩b| / |a∪b| over token sets. Two empty sets compare as
// identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
