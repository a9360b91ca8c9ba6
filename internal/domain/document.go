package domain

import (
	"time"

	"github.com/google/uuid"
)

// Document holds the metadata of an ingested document. The centroid vector
// lives in the vector index and is never loaded into memory here.
type Document struct {
	ID                  uuid.UUID         `json:"id"`
	OwnerID             string            `json:"owner_id"`
	Title               string            `json:"title"`
	UploadedAt          time.Time         `json:"uploaded_at"`
	TotalTokens         int               `json:"total_tokens"`
	EffectiveChunkCount int               `json:"effective_chunk_count"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// DocumentTotals is the per-document aggregate the scorer needs.
// EffectiveChunkCount counts chunks after exclusion ranges are applied.
type DocumentTotals struct {
	TotalTokens         int
	EffectiveChunkCount int
	HasCentroid         bool
}

// PageRange is an inclusive page interval.
type PageRange struct {
	StartPage int `json:"start_page"`
	EndPage   int `json:"end_page"`
}

// Overlaps reports whether the two ranges share at least one page or
// directly abut within the given page gap.
func (r PageRange) Overlaps(other PageRange, gap int) bool {
	return r.StartPage <= other.EndPage+gap && other.StartPage <= r.EndPage+gap
}

// Extend widens the range to cover the other range.
func (r PageRange) Extend(other PageRange) PageRange {
	if other.StartPage < r.StartPage {
		r.StartPage = other.StartPage
	}
	if other.EndPage > r.EndPage {
		r.EndPage = other.EndPage
	}
	return r
}

// Chunk is one ordered unit of document text. Chunks are immutable once
// created; exclusion ranges remove chunks before retrieval, never after.
// Embeddings are fetched separately through the vector index, keyed by ID.
type Chunk struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Index      int       `json:"chunk_index"`
	Content    string    `json:"content,omitempty"`
	TokenCount int       `json:"token_count"`
	StartPage  int       `json:"start_page"`
	EndPage    int       `json:"end_page"`
}

// Pages returns the chunk's page range.
func (c Chunk) Pages() PageRange {
	return PageRange{StartPage: c.StartPage, EndPage: c.EndPage}
}
