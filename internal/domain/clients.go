package domain

import (
	"context"

	"github.com/google/uuid"
)

// IndexMatch is one hit returned by an ANN query.
type IndexMatch struct {
	DocumentID uuid.UUID
	ChunkID    uuid.UUID // zero for centroid-level queries
	Score      float64   // cosine similarity in [0,1]
}

// CentroidFilter scopes a centroid query. OwnerID is always required;
// Metadata entries are matched as equality filters against the document's
// business metadata.
type CentroidFilter struct {
	OwnerID  string
	Metadata map[string]string
	// DocumentIDs, when non-empty, restricts the query to exactly this set
	// instead of sweeping the whole index.
	DocumentIDs []uuid.UUID
}

// VectorIndex is the approximate-nearest-neighbor index over chunk and
// per-document centroid vectors. Implementations must be safe for
// concurrent use.
type VectorIndex interface {
	// QueryCentroids returns up to topK documents ranked by centroid cosine
	// similarity to the given vector, highest first.
	QueryCentroids(ctx context.Context, vector []float32, topK int, filter CentroidFilter) ([]IndexMatch, error)

	// QueryChunks returns up to topK chunk hits for the given vector,
	// restricted to chunks belonging to the candidate documents.
	QueryChunks(ctx context.Context, vector []float32, topK int, candidateDocIDs []uuid.UUID) ([]IndexMatch, error)

	// FetchCentroid returns the stored centroid for a document, or
	// NotFoundError when the document has none.
	FetchCentroid(ctx context.Context, documentID uuid.UUID) ([]float32, error)

	// FetchChunkVectors returns embeddings for the given chunk IDs.
	FetchChunkVectors(ctx context.Context, chunkIDs []uuid.UUID) (map[uuid.UUID][]float32, error)
}

// ChunkStore provides read-only access to a document's ordered chunks.
type ChunkStore interface {
	// GetChunks returns the document's chunks ordered by chunk index, with
	// the document's stored exclusion ranges and any extra ranges applied.
	GetChunks(ctx context.Context, documentID uuid.UUID, exclude []PageRange) ([]Chunk, error)

	// GetDocumentTotals returns the per-document aggregates.
	GetDocumentTotals(ctx context.Context, documentID uuid.UUID) (DocumentTotals, error)
}

// DocumentRepository provides read-only document metadata.
type DocumentRepository interface {
	// GetDocument returns a document's metadata, or NotFoundError.
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)

	// GetDocuments returns metadata for a set of documents, keyed by ID.
	// Unknown IDs are silently absent from the result.
	GetDocuments(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Document, error)
}
