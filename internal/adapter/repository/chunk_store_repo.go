package repository

import (
	"context"
	"errors"
	"fmt"

	"reuse-detector/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type chunkStoreRepository struct {
	pool *pgxpool.Pool
}

// NewChunkStoreRepository creates a pgx-backed domain.ChunkStore. The store
// is read-only; ingestion owns all writes.
func NewChunkStoreRepository(pool *pgxpool.Pool) domain.ChunkStore {
	return &chunkStoreRepository{pool: pool}
}

func (r *chunkStoreRepository) GetChunks(ctx context.Context, documentID uuid.UUID, exclude []domain.PageRange) ([]domain.Chunk, error) {
	// Stored per-document exclusions and the caller's extra ranges are both
	// applied here, before anything downstream sees the chunk set.
	query := `
		SELECT c.id, c.document_id, c.chunk_index, c.token_count, c.start_page, c.end_page
		FROM chunks c
		WHERE c.document_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM document_exclusions e
			WHERE e.document_id = c.document_id
			  AND c.start_page <= e.end_page
			  AND e.start_page <= c.end_page
		  )
		ORDER BY c.chunk_index ASC
	`
	rows, err := r.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, &domain.UpstreamServiceError{Service: "chunk_store", Op: "get_chunks", Err: err}
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.TokenCount, &c.StartPage, &c.EndPage); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if excluded(c, exclude) {
			continue
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.UpstreamServiceError{Service: "chunk_store", Op: "get_chunks", Err: err}
	}
	return chunks, nil
}

func (r *chunkStoreRepository) GetDocumentTotals(ctx context.Context, documentID uuid.UUID) (domain.DocumentTotals, error) {
	query := `
		SELECT total_tokens, effective_chunk_count, centroid IS NOT NULL
		FROM documents
		WHERE id = $1
	`
	var totals domain.DocumentTotals
	err := r.pool.QueryRow(ctx, query, documentID).Scan(
		&totals.TotalTokens, &totals.EffectiveChunkCount, &totals.HasCentroid)
	if err != nil {
		if isNoRows(err) {
			return domain.DocumentTotals{}, &domain.NotFoundError{DocumentID: documentID}
		}
		return domain.DocumentTotals{}, &domain.UpstreamServiceError{Service: "chunk_store", Op: "get_document_totals", Err: err}
	}
	return totals, nil
}

func excluded(c domain.Chunk, ranges []domain.PageRange) bool {
	for _, r := range ranges {
		if c.StartPage <= r.EndPage && r.StartPage <= c.EndPage {
			return true
		}
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
