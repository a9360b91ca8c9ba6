package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"reuse-detector/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// chunkHitStats accumulates per-candidate chunk hits. The reduction is
// commutative (count and max), so completion order of the parallel
// queries cannot affect the final ranked set.
type chunkHitStats struct {
	hits int
	best float64
}

// Prefilter narrows the Stage0 candidate set using chunk-level ANN lookups
// (Stage 1). It runs only when the candidate count exceeds cfg.TopK;
// otherwise all candidates pass through unchanged and the stage is recorded
// as skipped. A stage timeout also degrades to skipped: the Stage0 set is
// kept and the request continues.
func Prefilter(
	ctx context.Context,
	sc *StageContext,
	cfg Stage1Config,
	index domain.VectorIndex,
	logger *slog.Logger,
) error {
	start := time.Now()

	if !cfg.Enabled {
		sc.Stage1Skipped = true
		sc.Stage1SkipReason = "disabled"
		sc.Stage1Retained = len(sc.Candidates)
		return nil
	}
	if len(sc.Candidates) <= cfg.TopK {
		sc.Stage1Skipped = true
		sc.Stage1SkipReason = "candidate_count_below_threshold"
		sc.Stage1Retained = len(sc.Candidates)
		logger.Info("stage1_skipped",
			slog.String("search_id", sc.SearchID),
			slog.Int("candidates", len(sc.Candidates)),
			slog.Int("stage1_topk", cfg.TopK))
		return nil
	}

	candidateIDs := make([]uuid.UUID, len(sc.Candidates))
	for i, c := range sc.Candidates {
		candidateIDs[i] = c.DocumentID
	}

	stageCtx := ctx
	cancel := context.CancelFunc(func() {})
	if cfg.Timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	}
	defer cancel()

	// Fan-out: one ANN query per source chunk, all of them, bounded by the
	// worker cap. Aggregation under the mutex is count/max only.
	var mu sync.Mutex
	stats := make(map[uuid.UUID]*chunkHitStats)

	g, gctx := errgroup.WithContext(stageCtx)
	g.SetLimit(cfg.Workers)

	for _, chunk := range sc.SourceChunks {
		vector, ok := sc.SourceVectors[chunk.ID]
		if !ok {
			continue
		}
		g.Go(func() error {
			hits, err := index.QueryChunks(gctx, vector, cfg.NeighborsPerChunk, candidateIDs)
			if err != nil {
				return fmt.Errorf("chunk query failed: %w", err)
			}
			mu.Lock()
			for _, h := range hits {
				s, ok := stats[h.DocumentID]
				if !ok {
					s = &chunkHitStats{}
					stats[h.DocumentID] = s
				}
				s.hits++
				if h.Score > s.best {
					s.best = h.Score
				}
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// The stage's own deadline degrades gracefully to "skipped"; parent
		// cancellation and upstream failures remain request-fatal.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			sc.Stage1Skipped = true
			sc.Stage1SkipReason = "timeout"
			sc.Stage1Retained = len(sc.Candidates)
			sc.Stage1Duration = time.Since(start)
			logger.Warn("stage1_timeout_degraded",
				slog.String("search_id", sc.SearchID),
				slog.Int64("duration_ms", sc.Stage1Duration.Milliseconds()))
			return nil
		}
		return err
	}

	// Rank candidates by (hit count, best score) descending. The document
	// ID tiebreak keeps the retained set deterministic.
	ranked := make([]domain.Candidate, 0, len(sc.Candidates))
	for _, c := range sc.Candidates {
		if s, ok := stats[c.DocumentID]; ok {
			c.Stage1Hits = s.hits
			c.Stage1Best = s.best
			ranked = append(ranked, c)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Stage1Hits != ranked[j].Stage1Hits {
			return ranked[i].Stage1Hits > ranked[j].Stage1Hits
		}
		if ranked[i].Stage1Best != ranked[j].Stage1Best {
			return ranked[i].Stage1Best > ranked[j].Stage1Best
		}
		return ranked[i].DocumentID.String() < ranked[j].DocumentID.String()
	})
	if len(ranked) > cfg.TopK {
		ranked = ranked[:cfg.TopK]
	}

	sc.Candidates = ranked
	sc.Stage1Retained = len(ranked)
	sc.Stage1Duration = time.Since(start)

	logger.Info("stage1_completed",
		slog.String("search_id", sc.SearchID),
		slog.Int("source_chunks", len(sc.SourceChunks)),
		slog.Int("retained", len(ranked)),
		slog.Int64("duration_ms", sc.Stage1Duration.Milliseconds()))

	return nil
}
