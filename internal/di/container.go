package di

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"reuse-detector/internal/adapter/repository"
	"reuse-detector/internal/adapter/simhttp"
	"reuse-detector/internal/domain"
	"reuse-detector/internal/infra/config"
	"reuse-detector/internal/infra/limiter"
	"reuse-detector/internal/usecase"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Adapters
	VectorIndex domain.VectorIndex
	ChunkStore  domain.ChunkStore
	Documents   domain.DocumentRepository

	// Shared resources
	Limiter *limiter.Limiter

	// Usecases
	SearchUsecase   usecase.SimilaritySearchUsecase
	ValidateUsecase usecase.ValidateDocumentUsecase

	// HTTP
	Handler *simhttp.Handler
}

// NewApplicationComponents wires all dependencies from config and database
// pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) *ApplicationComponents {
	vectorIndex := repository.NewVectorIndexRepository(pool, cfg.IndexQueriesPerSec, cfg.IndexQueryBurst)
	chunkStore := repository.NewChunkStoreRepository(pool)
	documents := repository.NewDocumentRepository(pool)

	// Global cap shared with anything else running in this process.
	globalLimiter := limiter.New(cfg.GlobalConcurrency)

	searchUsecase := usecase.NewSimilaritySearchUsecase(vectorIndex, chunkStore, documents, globalLimiter, log)
	validateUsecase := usecase.NewValidateDocumentUsecase(chunkStore, documents, log)

	handler := simhttp.NewHandler(searchUsecase, validateUsecase, searchDefaults(cfg))

	return &ApplicationComponents{
		VectorIndex:     vectorIndex,
		ChunkStore:      chunkStore,
		Documents:       documents,
		Limiter:         globalLimiter,
		SearchUsecase:   searchUsecase,
		ValidateUsecase: validateUsecase,
		Handler:         handler,
	}
}

// searchDefaults builds the server-level search configuration that request
// overrides are merged onto.
func searchDefaults(cfg *config.Config) usecase.SearchConfig {
	defaults := usecase.DefaultSearchConfig()
	defaults.Stage0TopK = cfg.Stage0TopK
	defaults.Stage1Enabled = cfg.Stage1Enabled
	defaults.Stage1TopK = cfg.Stage1TopK
	defaults.Stage1NeighborsPerChunk = cfg.Stage1NeighborsPerChunk
	defaults.Stage1Workers = cfg.Stage1Workers
	defaults.Stage1Timeout = cfg.Stage1Timeout()
	defaults.Stage2ParallelWorkers = cfg.Stage2ParallelWorkers
	defaults.Stage2FallbackThreshold = cfg.Stage2FallbackThreshold
	defaults.Stage2CandidateTimeout = cfg.Stage2Timeout()
	defaults.ReusableThreshold = cfg.ReusableThreshold
	defaults.MinSectionChunks = cfg.MinSectionChunks
	defaults.MinSectionTokens = cfg.MinSectionTokens
	defaults.OverlapFormula = cfg.OverlapFormula
	defaults.SectionPageGap = cfg.SectionPageGap
	defaults.MaxResults = cfg.MaxResults
	defaults.UpstreamInitialBackoff = 200 * time.Millisecond
	return defaults
}
