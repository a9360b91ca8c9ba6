package repository

import (
	"context"
	"fmt"
	"time"

	"reuse-detector/internal/domain"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	metadataCacheSize = 4096
	metadataCacheTTL  = 30 * time.Second
)

type documentRepository struct {
	pool *pgxpool.Pool
	// Short-TTL cache for document metadata. Totals and titles change only
	// when a document is reprocessed; search results themselves are never
	// cached anywhere.
	cache *expirable.LRU[uuid.UUID, *domain.Document]
}

// NewDocumentRepository creates a pgx-backed domain.DocumentRepository.
func NewDocumentRepository(pool *pgxpool.Pool) domain.DocumentRepository {
	return &documentRepository{
		pool:  pool,
		cache: expirable.NewLRU[uuid.UUID, *domain.Document](metadataCacheSize, nil, metadataCacheTTL),
	}
}

const documentColumns = `id, owner_id, title, uploaded_at, total_tokens, effective_chunk_count, metadata`

func (r *documentRepository) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	if doc, ok := r.cache.Get(id); ok {
		return doc, nil
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)

	var doc domain.Document
	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.UploadedAt,
		&doc.TotalTokens, &doc.EffectiveChunkCount, &doc.Metadata)
	if err != nil {
		if isNoRows(err) {
			return nil, &domain.NotFoundError{DocumentID: id}
		}
		return nil, &domain.UpstreamServiceError{Service: "chunk_store", Op: "get_document", Err: err}
	}

	r.cache.Add(id, &doc)
	return &doc, nil
}

func (r *documentRepository) GetDocuments(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Document, error) {
	result := make(map[uuid.UUID]*domain.Document, len(ids))
	var missing []uuid.UUID
	for _, id := range ids {
		if doc, ok := r.cache.Get(id); ok {
			result[id] = doc
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, missing)
	if err != nil {
		return nil, &domain.UpstreamServiceError{Service: "chunk_store", Op: "get_documents", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var doc domain.Document
		err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.UploadedAt,
			&doc.TotalTokens, &doc.EffectiveChunkCount, &doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		r.cache.Add(doc.ID, &doc)
		result[doc.ID] = &doc
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.UpstreamServiceError{Service: "chunk_store", Op: "get_documents", Err: err}
	}
	return result, nil
}
