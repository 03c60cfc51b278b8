package usecase

import (
	"fmt"
	"time"
)

// SearchConfig holds the tunable retrieval parameters shared by the search
// usecases. The zero value is not usable; start from DefaultSearchConfig.
type SearchConfig struct {
	// DefaultLimit is the result count used when the caller asks for none.
	DefaultLimit int

	// RerankTopK is the candidate pool fetched per source before fusion in
	// the rerank and pipeline paths. Must not be smaller than DefaultLimit.
	RerankTopK int

	// MinCandidates floors the ANN candidate pool (num_candidates is at
	// least max(limit*2, MinCandidates)).
	MinCandidates int

	// DedupThreshold is the Jaccard cutoff applied inside the full pipeline.
	// The standalone deduplicate endpoint defaults looser (0.85).
	DedupThreshold float64

	// SummaryMaxItems caps how many survivors reach the summarizer prompt.
	SummaryMaxItems int

	// PipelineTimeout bounds one end-to-end pipeline run.
	PipelineTimeout time.Duration

	// AdmissionSlots is the number of pipeline runs admitted concurrently,
	// sized to the backend connection pool.
	AdmissionSlots int64

	// AdmissionWait is how long a run may wait for a slot before failing
	// busy.
	AdmissionWait time.Duration
}

// DefaultSearchConfig returns the pipeline defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		DefaultLimit:    10,
		RerankTopK:      50,
		MinCandidates:   100,
		DedupThreshold:  0.95,
		SummaryMaxItems: 5,
		PipelineTimeout: 5 * time.Minute,
		AdmissionSlots:  20,
		AdmissionWait:   2 * time.Second,
	}
}

// Validate checks the configuration values are within acceptable ranges.
func (c SearchConfig) Validate() error {
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("defaultLimit must be positive, got %d", c.DefaultLimit)
	}
	if c.RerankTopK < c.DefaultLimit {
		return fmt.Errorf("rerankTopK (%d) must not be smaller than defaultLimit (%d)", c.RerankTopK, c.DefaultLimit)
	}
	if c.MinCandidates <= 0 {
		return fmt.Errorf("minCandidates must be positive, got %d", c.MinCandidates)
	}
	if c.DedupThreshold < 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("dedupThreshold must be in [0, 1], got %f", c.DedupThreshold)
	}
	if c.SummaryMaxItems <= 0 {
		return fmt.Errorf("summaryMaxItems must be positive, got %d", c.SummaryMaxItems)
	}
	if c.PipelineTimeout <= 0 {
		return fmt.Errorf("pipelineTimeout must be positive, got %v", c.PipelineTimeout)
	}
	if c.AdmissionSlots <= 0 {
		return fmt.Errorf("admissionSlots must be positive, got %d", c.AdmissionSlots)
	}
	if c.AdmissionWait <= 0 {
		return fmt.Errorf("admissionWait must be positive, got %v", c.AdmissionWait)
	}
	return nil
}

// BulkEmbedConfig holds the rate and concurrency settings for bulk embedding
// jobs.
type BulkEmbedConfig struct {
	// BatchSize is the number of documents embedded per gateway call.
	BatchSize int
	// MaxInFlight caps concurrent batches.
	MaxInFlight int
	// GroupDelay spaces successive batch launches.
	GroupDelay time.Duration
}

// DefaultBulkEmbedConfig returns the bulk loader defaults.
func DefaultBulkEmbedConfig() BulkEmbedConfig {
	return BulkEmbedConfig{
		BatchSize:   100,
		MaxInFlight: 5,
		GroupDelay:  time.Second,
	}
}

// Validate checks the bulk embedding configuration.
func (c BulkEmbedConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batchSize must be positive, got %d", c.BatchSize)
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("maxInFlight must be positive, got %d", c.MaxInFlight)
	}
	if c.GroupDelay < 0 {
		return fmt.Errorf("groupDelay must not be negative, got %v", c.GroupDelay)
	}
	return nil
}
