package repository

import (
	"context"
	"fmt"

	"reuse-detector/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/time/rate"
)

type vectorIndexRepository struct {
	pool    *pgxpool.Pool
	limiter *rate.Limiter
}

// NewVectorIndexRepository creates a pgvector-backed domain.VectorIndex.
// The rate limiter caps ANN query throughput against the shared index;
// queriesPerSecond <= 0 disables the cap.
func NewVectorIndexRepository(pool *pgxpool.Pool, queriesPerSecond float64, burst int) domain.VectorIndex {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if queriesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(queriesPerSecond), burst)
	}
	return &vectorIndexRepository{pool: pool, limiter: limiter}
}

func (r *vectorIndexRepository) QueryCentroids(ctx context.Context, vector []float32, topK int, filter domain.CentroidFilter) ([]domain.IndexMatch, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// The owner filter is always applied. Metadata entries become jsonb
	// containment checks; an explicit document set bypasses the sweep.
	query := `
		SELECT id, 1 - (centroid <=> $1) AS score
		FROM documents
		WHERE owner_id = $2
		  AND centroid IS NOT NULL
	`
	args := []interface{}{pgvector.NewVector(vector), filter.OwnerID}

	if len(filter.Metadata) > 0 {
		args = append(args, filter.Metadata)
		query += fmt.Sprintf(" AND metadata @> $%d", len(args))
	}
	if len(filter.DocumentIDs) > 0 {
		args = append(args, filter.DocumentIDs)
		query += fmt.Sprintf(" AND id = ANY($%d)", len(args))
	}

	args = append(args, topK)
	query += fmt.Sprintf(" ORDER BY centroid <=> $1 LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &domain.UpstreamServiceError{Service: "vector_index", Op: "query_centroids", Err: err}
	}
	defer rows.Close()

	var matches []domain.IndexMatch
	for rows.Next() {
		var m domain.IndexMatch
		if err := rows.Scan(&m.DocumentID, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan centroid match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.UpstreamServiceError{Service: "vector_index", Op: "query_centroids", Err: err}
	}
	return matches, nil
}

func (r *vectorIndexRepository) QueryChunks(ctx context.Context, vector []float32, topK int, candidateDocIDs []uuid.UUID) ([]domain.IndexMatch, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT c.id, c.document_id, 1 - (c.embedding <=> $1) AS score
		FROM chunks c
		WHERE c.document_id = ANY($2)
		ORDER BY c.embedding <=> $1
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(vector), candidateDocIDs, topK)
	if err != nil {
		return nil, &domain.UpstreamServiceError{Service: "vector_index", Op: "query_chunks", Err: err}
	}
	defer rows.Close()

	var matches []domain.IndexMatch
	for rows.Next() {
		var m domain.IndexMatch
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.UpstreamServiceError{Service: "vector_index", Op: "query_chunks", Err: err}
	}
	return matches, nil
}

func (r *vectorIndexRepository) FetchCentroid(ctx context.Context, documentID uuid.UUID) ([]float32, error) {
	query := `SELECT centroid FROM documents WHERE id = $1`

	var centroid *pgvector.Vector
	err := r.pool.QueryRow(ctx, query, documentID).Scan(&centroid)
	if err != nil {
		if isNoRows(err) {
			return nil, &domain.NotFoundError{DocumentID: documentID}
		}
		return nil, &domain.UpstreamServiceError{Service: "vector_index", Op: "fetch_centroid", Err: err}
	}
	if centroid == nil {
		return nil, &domain.NotFoundError{DocumentID: documentID}
	}
	return centroid.Slice(), nil
}

func (r *vectorIndexRepository) FetchChunkVectors(ctx context.Context, chunkIDs []uuid.UUID) (map[uuid.UUID][]float32, error) {
	if len(chunkIDs) == 0 {
		return map[uuid.UUID][]float32{}, nil
	}

	query := `SELECT id, embedding FROM chunks WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, chunkIDs)
	if err != nil {
		return nil, &domain.UpstreamServiceError{Service: "vector_index", Op: "fetch_chunk_vectors", Err: err}
	}
	defer rows.Close()

	vectors := make(map[uuid.UUID][]float32, len(chunkIDs))
	for rows.Next() {
		var id uuid.UUID
		var embedding pgvector.Vector
		if err := rows.Scan(&id, &embedding); err != nil {
			return nil, fmt.Errorf("failed to scan chunk vector: %w", err)
		}
		vectors[id] = embedding.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.UpstreamServiceError{Service: "vector_index", Op: "fetch_chunk_vectors", Err: err}
	}
	return vectors, nil
}
