package domain

import "github.com/google/uuid"

// Candidate is a document surviving the funnel so far. Transient; rebuilt
// per search and never persisted.
type Candidate struct {
	DocumentID  uuid.UUID `json:"document_id"`
	Stage0Score float64   `json:"stage0_score"`
	Stage1Hits  int       `json:"stage1_hits,omitempty"`
	Stage1Best  float64   `json:"stage1_best,omitempty"`
}

// Match pairs one source chunk with one target chunk. After non-max
// suppression each chunk index appears in at most one retained Match,
// which is what prevents double-counted tokens.
type Match struct {
	SourceChunkIndex int     `json:"source_chunk_index"`
	TargetChunkIndex int     `json:"target_chunk_index"`
	Similarity       float64 `json:"similarity"`

	// Page ranges and token counts carried along for section grouping.
	SourcePages  PageRange `json:"source_pages"`
	TargetPages  PageRange `json:"target_pages"`
	SourceTokens int       `json:"source_tokens"`
	TargetTokens int       `json:"target_tokens"`
}

// Section aggregates contiguous or overlapping matches by page range,
// summarizing where reuse occurs.
type Section struct {
	SourcePages  PageRange `json:"source_pages"`
	TargetPages  PageRange `json:"target_pages"`
	AvgScore     float64   `json:"avg_score"`
	ChunkCount   int       `json:"chunk_count"`
	SourceTokens int       `json:"source_tokens"`
	TargetTokens int       `json:"target_tokens"`
	Reusable     bool      `json:"reusable"`
}

// SimilarityScores are the directional reuse fractions for one candidate.
type SimilarityScores struct {
	// SourceScore is the fraction of the source document's tokens found in
	// the candidate — the primary "is this derivative" signal.
	SourceScore float64 `json:"source_score"`
	// TargetScore is the fraction of the candidate explained by the source,
	// flagging near-duplicate or fully subsumed candidates.
	TargetScore  float64 `json:"target_score"`
	OverlapScore float64 `json:"overlap_score"`
	LengthRatio  float64 `json:"length_ratio"`
}

// SimilarityResult is the scored outcome for one candidate document.
// Created fresh per search request and never cached across requests,
// because embeddings and chunks may change between requests.
type SimilarityResult struct {
	Document            Document         `json:"document"`
	Scores              SimilarityScores `json:"scores"`
	MatchedSourceTokens int              `json:"matched_source_tokens"`
	MatchedTargetTokens int              `json:"matched_target_tokens"`
	Sections            []Section        `json:"sections"`
}
