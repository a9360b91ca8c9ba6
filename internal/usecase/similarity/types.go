package similarity

import (
	"time"

	"reuse-detector/internal/domain"

	"github.com/google/uuid"
)

// StageContext carries data between pipeline stages.
type StageContext struct {
	// Input
	SearchID         string
	SourceDocumentID uuid.UUID
	OwnerID          string
	ExcludeRanges    []domain.PageRange

	// Source data, loaded once before Stage0
	SourceCentroid []float32
	SourceChunks   []domain.Chunk
	SourceVectors  map[uuid.UUID][]float32
	SourceTotals   domain.DocumentTotals

	// Stage0 outputs
	Candidates      []domain.Candidate
	Stage0Retrieved int

	// Stage1 outputs
	Stage1Skipped    bool
	Stage1SkipReason string
	Stage1Retained   int

	// Stage2 outputs
	Results  []domain.SimilarityResult
	Failures []domain.CandidateFailure

	// Timings
	Stage0Duration time.Duration
	Stage1Duration time.Duration
	Stage2Duration time.Duration
}

// Stage0Config holds centroid retrieval parameters.
type Stage0Config struct {
	TopK    int
	Filters map[string]string
	// TargetDocumentIDs restricts Stage0 to an explicit set instead of the
	// open-ended centroid sweep. Stage1/Stage2 run unchanged.
	TargetDocumentIDs []uuid.UUID
}

// Stage1Config holds chunk-level prefilter parameters.
type Stage1Config struct {
	TopK              int
	NeighborsPerChunk int
	Workers           int
	Timeout           time.Duration
	Enabled           bool
}

// Stage2Config holds adaptive scoring parameters.
type Stage2Config struct {
	Workers           int
	FallbackThreshold float64
	ReusableThreshold float64
	MinSectionChunks  int
	MinSectionTokens  int
	// OverlapFormula selects how overlapScore combines the directional
	// scores: "harmonic" (default) or "min".
	OverlapFormula   string
	CandidateTimeout time.Duration
	// SectionPageGap is the maximum page gap for two matches to join the
	// same section.
	SectionPageGap int
}
