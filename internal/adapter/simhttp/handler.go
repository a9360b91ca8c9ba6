package simhttp

import (
	"errors"
	"net/http"

	"reuse-detector/internal/domain"
	"reuse-detector/internal/infra/logger"
	"reuse-detector/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// SearchRequest is the wire form of a similarity search invocation.
// Unset overrides fall back to the server defaults.
type SearchRequest struct {
	SourceDocumentID        string             `json:"source_document_id"`
	OwnerID                 string             `json:"owner_id"`
	Stage0TopK              *int               `json:"stage0_topk,omitempty"`
	Stage0Filters           map[string]string  `json:"stage0_filters,omitempty"`
	Stage1Enabled           *bool              `json:"stage1_enabled,omitempty"`
	Stage1TopK              *int               `json:"stage1_topk,omitempty"`
	Stage1NeighborsPerChunk *int               `json:"stage1_neighbors_per_chunk,omitempty"`
	Stage2ParallelWorkers   *int               `json:"stage2_parallel_workers,omitempty"`
	Stage2FallbackThreshold *float64           `json:"stage2_fallback_threshold,omitempty"`
	TargetDocumentIDs       []string           `json:"target_document_ids,omitempty"`
	ExcludePageRanges       []domain.PageRange `json:"exclude_page_ranges,omitempty"`
	MaxResults              *int               `json:"max_results,omitempty"`
	IncludeDiagnostics      bool               `json:"include_diagnostics,omitempty"`
}

// ValidateRequest asks whether a document can be a similarity source.
type ValidateRequest struct {
	DocumentID string `json:"document_id"`
}

type Handler struct {
	searchUsecase   usecase.SimilaritySearchUsecase
	validateUsecase usecase.ValidateDocumentUsecase
	defaults        usecase.SearchConfig
}

// NewHandler creates the HTTP handler. defaults carries the server-level
// search configuration that request overrides are merged onto.
func NewHandler(
	searchUsecase usecase.SimilaritySearchUsecase,
	validateUsecase usecase.ValidateDocumentUsecase,
	defaults usecase.SearchConfig,
) *Handler {
	return &Handler{
		searchUsecase:   searchUsecase,
		validateUsecase: validateUsecase,
		defaults:        defaults,
	}
}

// Register wires the handler routes onto the echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/v1/similarity/search", h.Search)
	e.POST("/v1/similarity/validate", h.Validate)
}

// Search runs the reuse detection funnel for a source document.
// (POST /v1/similarity/search)
func (h *Handler) Search(ctx echo.Context) error {
	var req SearchRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	sourceID, err := uuid.Parse(req.SourceDocumentID)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "source_document_id must be a UUID"})
	}

	cfg, err := h.buildConfig(req)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	reqCtx := logger.WithDocumentID(ctx.Request().Context(), sourceID.String())
	logger.GlobalContext.WithContext(reqCtx).Info("similarity_search_received",
		"owner_id", req.OwnerID,
		"constrained", len(req.TargetDocumentIDs) > 0)

	output, err := h.searchUsecase.Execute(reqCtx, usecase.SimilaritySearchInput{
		SourceDocumentID: sourceID,
		Config:           cfg,
	})
	if err != nil {
		return h.mapError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, output)
}

// Validate checks the similarity-search preconditions for a document.
// (POST /v1/similarity/validate)
func (h *Handler) Validate(ctx echo.Context) error {
	var req ValidateRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	documentID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "document_id must be a UUID"})
	}

	reqCtx := logger.WithDocumentID(ctx.Request().Context(), documentID.String())
	report, err := h.validateUsecase.Execute(reqCtx, documentID)
	if err != nil {
		return h.mapError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, report)
}

func (h *Handler) buildConfig(req SearchRequest) (usecase.SearchConfig, error) {
	cfg := h.defaults
	cfg.OwnerID = req.OwnerID
	cfg.Stage0Filters = req.Stage0Filters
	cfg.ExcludeRanges = req.ExcludePageRanges
	cfg.IncludeDiagnostics = req.IncludeDiagnostics

	if req.Stage0TopK != nil {
		cfg.Stage0TopK = *req.Stage0TopK
	}
	if req.Stage1Enabled != nil {
		cfg.Stage1Enabled = *req.Stage1Enabled
	}
	if req.Stage1TopK != nil {
		cfg.Stage1TopK = *req.Stage1TopK
	}
	if req.Stage1NeighborsPerChunk != nil {
		cfg.Stage1NeighborsPerChunk = *req.Stage1NeighborsPerChunk
	}
	if req.Stage2ParallelWorkers != nil {
		cfg.Stage2ParallelWorkers = *req.Stage2ParallelWorkers
	}
	if req.Stage2FallbackThreshold != nil {
		cfg.Stage2FallbackThreshold = *req.Stage2FallbackThreshold
	}
	if req.MaxResults != nil {
		cfg.MaxResults = *req.MaxResults
	}

	for _, raw := range req.TargetDocumentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return cfg, errors.New("target_document_ids must be UUIDs")
		}
		cfg.TargetDocumentIDs = append(cfg.TargetDocumentIDs, id)
	}

	return cfg, nil
}

// mapError translates the error taxonomy to HTTP statuses. Internal causes
// never leak to end users; validation failures carry remediation guidance.
func (h *Handler) mapError(ctx echo.Context, err error) error {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return ctx.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":       "document not ready for similarity search",
			"reasons":     validation.Reasons,
			"remediation": validation.Remediation,
		})
	}
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": notFound.Error(),
		})
	}
	var aborted *domain.AbortedError
	if errors.As(err, &aborted) {
		// 499: client closed request.
		return ctx.JSON(499, map[string]string{
			"error": "search aborted",
		})
	}
	var upstream *domain.UpstreamServiceError
	if errors.As(err, &upstream) {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "a backing service is temporarily unavailable, retry later",
		})
	}
	return ctx.JSON(http.StatusInternalServerError, map[string]string{
		"error": "internal error",
	})
}
