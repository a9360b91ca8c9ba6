package usecase

import (
	"fmt"
	"time"

	"reuse-detector/internal/domain"
	"reuse-detector/internal/usecase/similarity"

	"github.com/google/uuid"
)

// SearchConfig holds every recognized option of a similarity search and its
// default. Request-level overrides are merged over the server defaults and
// validated exactly once at the orchestrator boundary.
type SearchConfig struct {
	OwnerID string

	// Stage0
	Stage0TopK    int
	Stage0Filters map[string]string
	// TargetDocumentIDs restricts Stage0 to an explicit set of documents.
	TargetDocumentIDs []uuid.UUID

	// Stage1
	Stage1Enabled           bool
	Stage1TopK              int
	Stage1NeighborsPerChunk int
	Stage1Workers           int
	Stage1Timeout           time.Duration

	// Stage2
	Stage2ParallelWorkers   int
	Stage2FallbackThreshold float64
	Stage2CandidateTimeout  time.Duration
	ReusableThreshold       float64
	MinSectionChunks        int
	MinSectionTokens        int
	OverlapFormula          string
	SectionPageGap          int

	// Request-level
	ExcludeRanges      []domain.PageRange
	MaxResults         int
	IncludeDiagnostics bool

	// Orchestrator
	UpstreamRetries        int
	UpstreamInitialBackoff time.Duration
}

// DefaultSearchConfig returns the documented defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Stage0TopK:              600,
		Stage1Enabled:           true,
		Stage1TopK:              250,
		Stage1NeighborsPerChunk: 8,
		Stage1Workers:           16,
		Stage1Timeout:           20 * time.Second,
		Stage2ParallelWorkers:   1,
		Stage2FallbackThreshold: 0.8,
		Stage2CandidateTimeout:  15 * time.Second,
		ReusableThreshold:       0.85,
		MinSectionChunks:        2,
		MinSectionTokens:        200,
		OverlapFormula:          "harmonic",
		SectionPageGap:          1,
		MaxResults:              50,
		UpstreamRetries:         3,
		UpstreamInitialBackoff:  200 * time.Millisecond,
	}
}

// Validate checks the merged configuration.
func (c SearchConfig) Validate() error {
	if c.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if c.Stage0TopK <= 0 {
		return fmt.Errorf("stage0_topk must be positive, got %d", c.Stage0TopK)
	}
	if c.Stage1TopK <= 0 {
		return fmt.Errorf("stage1_topk must be positive, got %d", c.Stage1TopK)
	}
	if c.Stage1NeighborsPerChunk <= 0 {
		return fmt.Errorf("stage1_neighbors_per_chunk must be positive, got %d", c.Stage1NeighborsPerChunk)
	}
	if c.Stage1Workers <= 0 {
		return fmt.Errorf("stage1 worker cap must be positive, got %d", c.Stage1Workers)
	}
	if c.Stage2ParallelWorkers <= 0 {
		return fmt.Errorf("stage2_parallel_workers must be positive, got %d", c.Stage2ParallelWorkers)
	}
	if c.Stage2FallbackThreshold < 0 || c.Stage2FallbackThreshold > 1 {
		return fmt.Errorf("stage2_fallback_threshold must be in [0,1], got %f", c.Stage2FallbackThreshold)
	}
	if c.ReusableThreshold < 0 || c.ReusableThreshold > 1 {
		return fmt.Errorf("reusable_threshold must be in [0,1], got %f", c.ReusableThreshold)
	}
	if c.OverlapFormula != "harmonic" && c.OverlapFormula != "min" {
		return fmt.Errorf("overlap_formula must be %q or %q, got %q", "harmonic", "min", c.OverlapFormula)
	}
	if c.MinSectionChunks < 1 {
		return fmt.Errorf("min_section_chunks must be at least 1, got %d", c.MinSectionChunks)
	}
	for _, r := range c.ExcludeRanges {
		if r.StartPage > r.EndPage {
			return fmt.Errorf("exclude range start page %d after end page %d", r.StartPage, r.EndPage)
		}
	}
	return nil
}

func (c SearchConfig) stage0() similarity.Stage0Config {
	return similarity.Stage0Config{
		TopK:              c.Stage0TopK,
		Filters:           c.Stage0Filters,
		TargetDocumentIDs: c.TargetDocumentIDs,
	}
}

func (c SearchConfig) stage1() similarity.Stage1Config {
	return similarity.Stage1Config{
		TopK:              c.Stage1TopK,
		NeighborsPerChunk: c.Stage1NeighborsPerChunk,
		Workers:           c.Stage1Workers,
		Timeout:           c.Stage1Timeout,
		Enabled:           c.Stage1Enabled,
	}
}

func (c SearchConfig) stage2() similarity.Stage2Config {
	return similarity.Stage2Config{
		Workers:           c.Stage2ParallelWorkers,
		FallbackThreshold: c.Stage2FallbackThreshold,
		ReusableThreshold: c.ReusableThreshold,
		MinSectionChunks:  c.MinSectionChunks,
		MinSectionTokens:  c.MinSectionTokens,
		OverlapFormula:    c.OverlapFormula,
		CandidateTimeout:  c.Stage2CandidateTimeout,
		SectionPageGap:    c.SectionPageGap,
	}
}
