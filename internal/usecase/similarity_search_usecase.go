package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reuse-detector/internal/domain"
	"reuse-detector/internal/usecase/similarity"

	"github.com/google/uuid"
)

// SimilaritySearchInput encapsulates the parameters of one search request.
// Config must already carry the merged server defaults and request
// overrides.
type SimilaritySearchInput struct {
	SourceDocumentID uuid.UUID
	Config           SearchConfig
}

// StageCounts reports how many candidates survived each stage.
type StageCounts struct {
	Stage0Candidates int  `json:"stage0_candidates"`
	Stage1Candidates int  `json:"stage1_candidates"`
	Stage1Skipped    bool `json:"stage1_skipped"`
	FinalResults     int  `json:"final_results"`
}

// StageTiming reports per-stage wall times in milliseconds.
type StageTiming struct {
	Stage0Ms int64 `json:"stage0_ms"`
	Stage1Ms int64 `json:"stage1_ms"`
	Stage2Ms int64 `json:"stage2_ms"`
	TotalMs  int64 `json:"total_ms"`
}

// SearchDiagnostics carries optional per-candidate failure details.
type SearchDiagnostics struct {
	DroppedCandidates []domain.CandidateFailure `json:"dropped_candidates,omitempty"`
}

// SimilaritySearchOutput is the assembled response of one search.
type SimilaritySearchOutput struct {
	SearchID    string                    `json:"search_id"`
	Results     []domain.SimilarityResult `json:"results"`
	Stages      StageCounts               `json:"stages"`
	Timing      StageTiming               `json:"timing"`
	Diagnostics *SearchDiagnostics        `json:"diagnostics,omitempty"`
}

// ConcurrencyLimiter is the process-wide cap the pipeline shares with other
// subsystems. The cap is a configuration input, never computed here.
type ConcurrencyLimiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// SimilaritySearchUsecase runs the three-stage reuse detection funnel.
type SimilaritySearchUsecase interface {
	Execute(ctx context.Context, input SimilaritySearchInput) (*SimilaritySearchOutput, error)
}

type similaritySearchUsecase struct {
	index   domain.VectorIndex
	chunks  domain.ChunkStore
	docs    domain.DocumentRepository
	limiter ConcurrencyLimiter
	logger  *slog.Logger
}

// NewSimilaritySearchUsecase creates a new SimilaritySearchUsecase.
func NewSimilaritySearchUsecase(
	index domain.VectorIndex,
	chunks domain.ChunkStore,
	docs domain.DocumentRepository,
	limiter ConcurrencyLimiter,
	logger *slog.Logger,
) SimilaritySearchUsecase {
	return &similaritySearchUsecase{
		index:   index,
		chunks:  chunks,
		docs:    docs,
		limiter: limiter,
		logger:  logger,
	}
}

func (u *similaritySearchUsecase) Execute(ctx context.Context, input SimilaritySearchInput) (*SimilaritySearchOutput, error) {
	totalStart := time.Now()

	cfg := input.Config
	if err := cfg.Validate(); err != nil {
		return nil, &domain.ValidationError{
			DocumentID:  input.SourceDocumentID,
			Reasons:     []string{err.Error()},
			Remediation: "fix the request configuration and retry",
		}
	}

	if err := u.limiter.Acquire(ctx); err != nil {
		return nil, &domain.AbortedError{Stage: "admission", Err: err}
	}
	defer u.limiter.Release()

	sc := &similarity.StageContext{
		SearchID:         uuid.NewString(),
		SourceDocumentID: input.SourceDocumentID,
		OwnerID:          cfg.OwnerID,
		ExcludeRanges:    cfg.ExcludeRanges,
	}

	u.logger.Info("similarity_search_started",
		slog.String("search_id", sc.SearchID),
		slog.String("source_document_id", input.SourceDocumentID.String()),
		slog.Int("stage0_topk", cfg.Stage0TopK),
		slog.Bool("constrained", len(cfg.TargetDocumentIDs) > 0))

	if err := u.loadSource(ctx, sc, cfg); err != nil {
		return nil, u.classify(ctx, "load_source", err)
	}

	// Stage 0: centroid retrieval. Fatal on failure; reads are idempotent
	// so upstream errors are retried first.
	err := u.withRetry(ctx, cfg, func() error {
		return similarity.SelectCandidates(ctx, sc, cfg.stage0(), u.index, u.logger)
	})
	if err != nil {
		return nil, u.classify(ctx, "stage0", err)
	}

	// Stage 1: chunk-level prefilter, conditional. Its own timeout degrades
	// to skipped inside Prefilter; other failures are request-fatal.
	if err := similarity.Prefilter(ctx, sc, cfg.stage1(), u.index, u.logger); err != nil {
		return nil, u.classify(ctx, "stage1", err)
	}

	// Stage 2: per-candidate parallel scoring. Candidate failures are
	// isolated; only whole-request cancellation propagates.
	if err := similarity.ScoreCandidates(ctx, sc, cfg.stage2(), u.index, u.chunks, u.docs, u.logger); err != nil {
		return nil, u.classify(ctx, "stage2", err)
	}

	if ctx.Err() != nil {
		return nil, &domain.AbortedError{Stage: "rank", Err: ctx.Err()}
	}

	// Full deterministic ordering before any truncation.
	similarity.RankResults(sc.Results)
	results := similarity.Truncate(sc.Results, cfg.MaxResults)

	out := &SimilaritySearchOutput{
		SearchID: sc.SearchID,
		Results:  results,
		Stages: StageCounts{
			Stage0Candidates: sc.Stage0Retrieved,
			Stage1Candidates: sc.Stage1Retained,
			Stage1Skipped:    sc.Stage1Skipped,
			FinalResults:     len(results),
		},
		Timing: StageTiming{
			Stage0Ms: sc.Stage0Duration.Milliseconds(),
			Stage1Ms: sc.Stage1Duration.Milliseconds(),
			Stage2Ms: sc.Stage2Duration.Milliseconds(),
			TotalMs:  time.Since(totalStart).Milliseconds(),
		},
	}
	if cfg.IncludeDiagnostics && len(sc.Failures) > 0 {
		out.Diagnostics = &SearchDiagnostics{DroppedCandidates: sc.Failures}
	}

	u.logger.Info("similarity_search_completed",
		slog.String("search_id", sc.SearchID),
		slog.Int("stage0_candidates", out.Stages.Stage0Candidates),
		slog.Int("stage1_candidates", out.Stages.Stage1Candidates),
		slog.Bool("stage1_skipped", out.Stages.Stage1Skipped),
		slog.Int("final_results", out.Stages.FinalResults),
		slog.Int64("total_ms", out.Timing.TotalMs))

	return out, nil
}

// loadSource validates the source document and loads its chunks, vectors
// and centroid into the stage context.
func (u *similaritySearchUsecase) loadSource(ctx context.Context, sc *similarity.StageContext, cfg SearchConfig) error {
	var totals domain.DocumentTotals
	err := u.withRetry(ctx, cfg, func() error {
		var err error
		totals, err = u.chunks.GetDocumentTotals(ctx, sc.SourceDocumentID)
		return err
	})
	if err != nil {
		return err
	}

	var reasons []string
	if !totals.HasCentroid {
		reasons = append(reasons, "document has no centroid vector")
	}
	if totals.EffectiveChunkCount == 0 {
		reasons = append(reasons, "document has no effective chunks")
	}
	if totals.TotalTokens == 0 {
		reasons = append(reasons, "document has no tokens")
	}
	if len(reasons) > 0 {
		return &domain.ValidationError{
			DocumentID:  sc.SourceDocumentID,
			Reasons:     reasons,
			Remediation: "document needs reprocessing before similarity search",
		}
	}
	sc.SourceTotals = totals

	centroid, err := u.index.FetchCentroid(ctx, sc.SourceDocumentID)
	if err != nil {
		return err
	}
	sc.SourceCentroid = centroid

	chunks, err := u.chunks.GetChunks(ctx, sc.SourceDocumentID, cfg.ExcludeRanges)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return &domain.ValidationError{
			DocumentID:  sc.SourceDocumentID,
			Reasons:     []string{"all chunks are excluded by page ranges"},
			Remediation: "relax the exclude page ranges",
		}
	}
	sc.SourceChunks = chunks

	ids := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	vectors, err := u.index.FetchChunkVectors(ctx, ids)
	if err != nil {
		return err
	}
	sc.SourceVectors = vectors

	return nil
}

// withRetry retries idempotent reads on upstream failures with doubling
// backoff. Everything else passes through untouched.
func (u *similaritySearchUsecase) withRetry(ctx context.Context, cfg SearchConfig, fn func() error) error {
	backoff := cfg.UpstreamInitialBackoff
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		var upstream *domain.UpstreamServiceError
		if !errors.As(err, &upstream) {
			return err
		}
		if attempt >= cfg.UpstreamRetries {
			return err
		}
		u.logger.Warn("upstream_retry",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry interrupted: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// classify maps a stage failure to the error taxonomy. Cancellation always
// wins: a stage that failed because the request context died is an abort,
// not an upstream error.
func (u *similaritySearchUsecase) classify(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return &domain.AbortedError{Stage: stage, Err: err}
	}
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return validation
	}
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return notFound
	}
	var upstream *domain.UpstreamServiceError
	if errors.As(err, &upstream) {
		return upstream
	}
	return fmt.Errorf("%s failed: %w", stage, err)
}
