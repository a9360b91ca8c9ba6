package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reuse-detector/internal/domain"
)

// SelectCandidates retrieves a bounded candidate set by centroid similarity
// to the source document (Stage 0). The source document itself is excluded.
// Fewer than topK matches is a valid outcome, not an error.
func SelectCandidates(
	ctx context.Context,
	sc *StageContext,
	cfg Stage0Config,
	index domain.VectorIndex,
	logger *slog.Logger,
) error {
	start := time.Now()

	filter := domain.CentroidFilter{
		OwnerID:     sc.OwnerID,
		Metadata:    cfg.Filters,
		DocumentIDs: cfg.TargetDocumentIDs,
	}

	// Request one extra so the self hit does not eat a slot.
	matches, err := index.QueryCentroids(ctx, sc.SourceCentroid, cfg.TopK+1, filter)
	if err != nil {
		return fmt.Errorf("failed to query document centroids: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(matches))
	for _, m := range matches {
		if m.DocumentID == sc.SourceDocumentID {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			DocumentID:  m.DocumentID,
			Stage0Score: m.Score,
		})
		if len(candidates) == cfg.TopK {
			break
		}
	}

	sc.Candidates = candidates
	sc.Stage0Retrieved = len(candidates)
	sc.Stage0Duration = time.Since(start)

	logger.Info("stage0_completed",
		slog.String("search_id", sc.SearchID),
		slog.Int("candidates", len(candidates)),
		slog.Bool("constrained", len(cfg.TargetDocumentIDs) > 0),
		slog.Int64("duration_ms", sc.Stage0Duration.Milliseconds()))

	return nil
}
