package usecase

import (
	"context"
	"errors"
	"log/slog"

	"reuse-detector/internal/domain"

	"github.com/google/uuid"
)

// minChunksWarning is the chunk count below which similarity scores get
// noisy enough to warrant a warning.
const minChunksWarning = 3

// ValidationReport is the outcome of the precondition check.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateDocumentUsecase checks whether a document is ready to be the
// source of a similarity search.
type ValidateDocumentUsecase interface {
	Execute(ctx context.Context, documentID uuid.UUID) (*ValidationReport, error)
}

type validateDocumentUsecase struct {
	chunks domain.ChunkStore
	docs   domain.DocumentRepository
	logger *slog.Logger
}

// NewValidateDocumentUsecase creates a new ValidateDocumentUsecase.
func NewValidateDocumentUsecase(chunks domain.ChunkStore, docs domain.DocumentRepository, logger *slog.Logger) ValidateDocumentUsecase {
	return &validateDocumentUsecase{chunks: chunks, docs: docs, logger: logger}
}

func (u *validateDocumentUsecase) Execute(ctx context.Context, documentID uuid.UUID) (*ValidationReport, error) {
	if _, err := u.docs.GetDocument(ctx, documentID); err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		return nil, err
	}

	totals, err := u.chunks.GetDocumentTotals(ctx, documentID)
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{Valid: true}
	if !totals.HasCentroid {
		report.Valid = false
		report.Errors = append(report.Errors, "document has no centroid vector; reprocessing required")
	}
	if totals.EffectiveChunkCount == 0 {
		report.Valid = false
		report.Errors = append(report.Errors, "document has no effective chunks; check exclusion ranges or reprocess")
	}
	if totals.TotalTokens == 0 {
		report.Valid = false
		report.Errors = append(report.Errors, "document has no tokens")
	}
	if report.Valid && totals.EffectiveChunkCount < minChunksWarning {
		report.Warnings = append(report.Warnings, "document has very few chunks; scores may be coarse")
	}

	u.logger.Info("document_validated",
		slog.String("document_id", documentID.String()),
		slog.Bool("valid", report.Valid),
		slog.Int("errors", len(report.Errors)),
		slog.Int("warnings", len(report.Warnings)))

	return report, nil
}
