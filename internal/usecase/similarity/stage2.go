package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"reuse-detector/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ScoreCandidates scores all surviving candidates in parallel, bounded by
// cfg.Workers (Stage 2). Each worker owns its candidate's chunk fetch and
// scoring exclusively; the only shared state is the mutex-guarded result
// append. Per-candidate failures drop only that candidate and are recorded
// as diagnostics; final ordering is left entirely to the ranker.
func ScoreCandidates(
	ctx context.Context,
	sc *StageContext,
	cfg Stage2Config,
	index domain.VectorIndex,
	chunks domain.ChunkStore,
	docs domain.DocumentRepository,
	logger *slog.Logger,
) error {
	start := time.Now()

	if len(sc.Candidates) == 0 {
		sc.Stage2Duration = time.Since(start)
		return nil
	}

	ids := make([]uuid.UUID, len(sc.Candidates))
	for i, c := range sc.Candidates {
		ids[i] = c.DocumentID
	}
	metadata, err := docs.GetDocuments(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load candidate metadata: %w", err)
	}

	var (
		mu       sync.Mutex
		results  []domain.SimilarityResult
		failures []domain.CandidateFailure
		wg       sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(cfg.Workers))

	for _, candidate := range sc.Candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancellation: abandon remaining candidates, let the
			// orchestrator discard partial results.
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			doc, ok := metadata[candidate.DocumentID]
			if !ok {
				mu.Lock()
				failures = append(failures, domain.CandidateFailure{
					DocumentID: candidate.DocumentID,
					Stage:      "stage2",
					Reason:     "document metadata missing",
				})
				mu.Unlock()
				return
			}

			candCtx := ctx
			cancel := context.CancelFunc(func() {})
			if cfg.CandidateTimeout > 0 {
				candCtx, cancel = context.WithTimeout(ctx, cfg.CandidateTimeout)
			}
			defer cancel()

			result, err := ScoreCandidate(candCtx, sc, cfg, candidate, *doc, index, chunks)
			if err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return // whole-request cancellation, not a candidate failure
				}
				logger.Warn("stage2_candidate_dropped",
					slog.String("search_id", sc.SearchID),
					slog.String("document_id", candidate.DocumentID.String()),
					slog.String("error", err.Error()))
				mu.Lock()
				failures = append(failures, domain.CandidateFailure{
					DocumentID: candidate.DocumentID,
					Stage:      "stage2",
					Reason:     err.Error(),
				})
				mu.Unlock()
				return
			}
			if result == nil {
				return // no section survived minimum evidence
			}
			mu.Lock()
			results = append(results, *result)
			mu.Unlock()
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	sc.Results = results
	sc.Failures = failures
	sc.Stage2Duration = time.Since(start)

	logger.Info("stage2_completed",
		slog.String("search_id", sc.SearchID),
		slog.Int("candidates", len(sc.Candidates)),
		slog.Int("scored", len(results)),
		slog.Int("dropped", len(failures)),
		slog.Int64("duration_ms", sc.Stage2Duration.Milliseconds()))

	return nil
}

// ScoreCandidate computes the bidirectional, token-weighted reuse result
// for one candidate document. Returns nil when no section survives the
// minimum-evidence floor; the candidate is then silently dropped.
func ScoreCandidate(
	ctx context.Context,
	sc *StageContext,
	cfg Stage2Config,
	candidate domain.Candidate,
	doc domain.Document,
	index domain.VectorIndex,
	chunks domain.ChunkStore,
) (*domain.SimilarityResult, error) {
	targetChunks, err := chunks.GetChunks(ctx, candidate.DocumentID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate chunks: %w", err)
	}
	if len(targetChunks) == 0 {
		return nil, nil
	}

	targetIDs := make([]uuid.UUID, len(targetChunks))
	for i, c := range targetChunks {
		targetIDs[i] = c.ID
	}
	targetVectors, err := index.FetchChunkVectors(ctx, targetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidate chunk vectors: %w", err)
	}

	totals, err := chunks.GetDocumentTotals(ctx, candidate.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate totals: %w", err)
	}
	if totals.TotalTokens == 0 || sc.SourceTotals.TotalTokens == 0 {
		return nil, nil
	}

	matches := matchChunks(sc.SourceChunks, sc.SourceVectors, targetChunks, targetVectors, cfg.FallbackThreshold)
	sections, retained := BuildSections(matches, cfg)
	if len(sections) == 0 {
		return nil, nil
	}

	matchedSourceTokens := 0
	matchedTargetTokens := 0
	for _, m := range retained {
		matchedSourceTokens += m.SourceTokens
		matchedTargetTokens += m.TargetTokens
	}

	sourceScore := float64(matchedSourceTokens) / float64(sc.SourceTotals.TotalTokens)
	targetScore := float64(matchedTargetTokens) / float64(totals.TotalTokens)

	return &domain.SimilarityResult{
		Document: doc,
		Scores: domain.SimilarityScores{
			SourceScore:  sourceScore,
			TargetScore:  targetScore,
			OverlapScore: overlapScore(sourceScore, targetScore, cfg.OverlapFormula),
			LengthRatio:  float64(sc.SourceTotals.TotalTokens) / float64(totals.TotalTokens),
		},
		MatchedSourceTokens: matchedSourceTokens,
		MatchedTargetTokens: matchedTargetTokens,
		Sections:            sections,
	}, nil
}

// matchChunks runs the bidirectional best-match assignment over the full
// pairwise similarity matrix and applies non-max suppression followed by
// the acceptance threshold. After suppression no two retained matches
// share a source or a target chunk index.
func matchChunks(
	source []domain.Chunk,
	sourceVectors map[uuid.UUID][]float32,
	target []domain.Chunk,
	targetVectors map[uuid.UUID][]float32,
	threshold float64,
) []domain.Match {
	type proposal struct {
		src, tgt int
		sim      float64
	}

	// Full pairwise cosine matrix. Candidate chunk counts are modest here
	// because Stage0/1 narrowed documents, not chunks.
	sims := make([][]float64, len(source))
	for i, sChunk := range source {
		sims[i] = make([]float64, len(target))
		sv, ok := sourceVectors[sChunk.ID]
		if !ok {
			continue
		}
		for j, tChunk := range target {
			tv, ok := targetVectors[tChunk.ID]
			if !ok {
				continue
			}
			sims[i][j] = cosine(sv, tv)
		}
	}

	// Directional proposals: best target per source chunk, best source per
	// target chunk. The same pair proposed in both directions is kept once
	// via the key set.
	proposed := make(map[[2]int]float64)
	for i := range source {
		bestJ, bestSim := -1, 0.0
		for j := range target {
			if sims[i][j] > bestSim {
				bestJ, bestSim = j, sims[i][j]
			}
		}
		if bestJ >= 0 {
			proposed[[2]int{i, bestJ}] = bestSim
		}
	}
	for j := range target {
		bestI, bestSim := -1, 0.0
		for i := range source {
			if sims[i][j] > bestSim {
				bestI, bestSim = i, sims[i][j]
			}
		}
		if bestI >= 0 {
			proposed[[2]int{bestI, j}] = bestSim
		}
	}

	proposals := make([]proposal, 0, len(proposed))
	for key, sim := range proposed {
		proposals = append(proposals, proposal{src: key[0], tgt: key[1], sim: sim})
	}
	// Highest similarity wins a contested index; index order breaks exact
	// ties so suppression is deterministic.
	sort.Slice(proposals, func(i, j int) bool {
		if proposals[i].sim != proposals[j].sim {
			return proposals[i].sim > proposals[j].sim
		}
		if proposals[i].src != proposals[j].src {
			return proposals[i].src < proposals[j].src
		}
		return proposals[i].tgt < proposals[j].tgt
	})

	usedSrc := make(map[int]bool)
	usedTgt := make(map[int]bool)
	var matches []domain.Match
	for _, p := range proposals {
		if usedSrc[p.src] || usedTgt[p.tgt] {
			continue
		}
		if p.sim < threshold {
			continue
		}
		usedSrc[p.src] = true
		usedTgt[p.tgt] = true

		sChunk, tChunk := source[p.src], target[p.tgt]
		matches = append(matches, domain.Match{
			SourceChunkIndex: sChunk.Index,
			TargetChunkIndex: tChunk.Index,
			Similarity:       p.sim,
			SourcePages:      sChunk.Pages(),
			TargetPages:      tChunk.Pages(),
			SourceTokens:     sChunk.TokenCount,
			TargetTokens:     tChunk.TokenCount,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].SourceChunkIndex < matches[j].SourceChunkIndex
	})
	return matches
}

// cosine returns the cosine similarity of two vectors, clamped to [0,1].
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

func overlapScore(sourceScore, targetScore float64, formula string) float64 {
	switch formula {
	case "min":
		return math.Min(sourceScore, targetScore)
	default: // harmonic
		if sourceScore+targetScore == 0 {
			return 0
		}
		return 2 * sourceScore * targetScore / (sourceScore + targetScore)
	}
}
