package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"reuse-detector/internal/domain"
	"reuse-detector/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockVectorIndex
type MockVectorIndex struct {
	mock.Mock
}

func (m *MockVectorIndex) QueryCentroids(ctx context.Context, vector []float32, topK int, filter domain.CentroidFilter) ([]domain.IndexMatch, error) {
	args := m.Called(ctx, vector, topK, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.IndexMatch), args.Error(1)
}

func (m *MockVectorIndex) QueryChunks(ctx context.Context, vector []float32, topK int, candidateDocIDs []uuid.UUID) ([]domain.IndexMatch, error) {
	args := m.Called(ctx, vector, topK, candidateDocIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.IndexMatch), args.Error(1)
}

func (m *MockVectorIndex) FetchCentroid(ctx context.Context, documentID uuid.UUID) ([]float32, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockVectorIndex) FetchChunkVectors(ctx context.Context, chunkIDs []uuid.UUID) (map[uuid.UUID][]float32, error) {
	args := m.Called(ctx, chunkIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID][]float32), args.Error(1)
}

// MockChunkStore
type MockChunkStore struct {
	mock.Mock
}

func (m *MockChunkStore) GetChunks(ctx context.Context, documentID uuid.UUID, exclude []domain.PageRange) ([]domain.Chunk, error) {
	args := m.Called(ctx, documentID, exclude)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Chunk), args.Error(1)
}

func (m *MockChunkStore) GetDocumentTotals(ctx context.Context, documentID uuid.UUID) (domain.DocumentTotals, error) {
	args := m.Called(ctx, documentID)
	return args.Get(0).(domain.DocumentTotals), args.Error(1)
}

// MockDocumentRepository
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) GetDocuments(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Document, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*domain.Document), args.Error(1)
}

// noopLimiter admits everything.
type noopLimiter struct{}

func (noopLimiter) Acquire(ctx context.Context) error { return nil }
func (noopLimiter) Release()                          {}

// closedLimiter rejects every admission attempt.
type closedLimiter struct{}

func (closedLimiter) Acquire(ctx context.Context) error { return errors.New("saturated") }
func (closedLimiter) Release()                          {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testSearchConfig() usecase.SearchConfig {
	cfg := usecase.DefaultSearchConfig()
	cfg.OwnerID = "tenant-1"
	cfg.UpstreamInitialBackoff = time.Millisecond
	return cfg
}

func sourceFixture(sourceID uuid.UUID) ([]domain.Chunk, map[uuid.UUID][]float32) {
	chunks := make([]domain.Chunk, 4)
	vectors := make(map[uuid.UUID][]float32, 4)
	for i := range chunks {
		id := uuid.New()
		chunks[i] = domain.Chunk{
			ID:         id,
			DocumentID: sourceID,
			Index:      i,
			TokenCount: 100,
			StartPage:  i + 1,
			EndPage:    i + 1,
		}
		vec := make([]float32, 4)
		vec[i] = 1
		vectors[id] = vec
	}
	return chunks, vectors
}

func TestSimilaritySearch_Execute_Success(t *testing.T) {
	mockIndex := new(MockVectorIndex)
	mockChunks := new(MockChunkStore)
	mockDocs := new(MockDocumentRepository)

	uc := usecase.NewSimilaritySearchUsecase(mockIndex, mockChunks, mockDocs, noopLimiter{}, testLogger())

	sourceID := uuid.New()
	targetID := uuid.New()
	sourceChunks, sourceVectors := sourceFixture(sourceID)

	sourceChunkIDs := make([]uuid.UUID, len(sourceChunks))
	for i, c := range sourceChunks {
		sourceChunkIDs[i] = c.ID
	}

	// Source load
	mockChunks.On("GetDocumentTotals", mock.Anything, sourceID).
		Return(domain.DocumentTotals{TotalTokens: 400, EffectiveChunkCount: 4, HasCentroid: true}, nil)
	mockIndex.On("FetchCentroid", mock.Anything, sourceID).Return([]float32{0.5, 0.5, 0, 0}, nil)
	mockChunks.On("GetChunks", mock.Anything, sourceID, []domain.PageRange(nil)).Return(sourceChunks, nil)
	mockIndex.On("FetchChunkVectors", mock.Anything, sourceChunkIDs).Return(sourceVectors, nil)

	// Stage0: one real candidate besides the source itself.
	mockIndex.On("QueryCentroids", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.IndexMatch{
			{DocumentID: sourceID, Score: 1.0},
			{DocumentID: targetID, Score: 0.91},
		}, nil)

	// Stage2: the target copies the first two source chunks.
	mockDocs.On("GetDocuments", mock.Anything, []uuid.UUID{targetID}).
		Return(map[uuid.UUID]*domain.Document{targetID: {ID: targetID, Title: "derived report"}}, nil)

	targetChunks := make([]domain.Chunk, 2)
	targetVectors := make(map[uuid.UUID][]float32, 2)
	for i := range targetChunks {
		id := uuid.New()
		targetChunks[i] = domain.Chunk{
			ID:         id,
			DocumentID: targetID,
			Index:      i,
			TokenCount: 100,
			StartPage:  i + 1,
			EndPage:    i + 1,
		}
		vec := make([]float32, 4)
		vec[i] = 1
		targetVectors[id] = vec
	}
	targetChunkIDs := []uuid.UUID{targetChunks[0].ID, targetChunks[1].ID}

	mockChunks.On("GetChunks", mock.Anything, targetID, []domain.PageRange(nil)).Return(targetChunks, nil)
	mockIndex.On("FetchChunkVectors", mock.Anything, targetChunkIDs).Return(targetVectors, nil)
	mockChunks.On("GetDocumentTotals", mock.Anything, targetID).
		Return(domain.DocumentTotals{TotalTokens: 200, EffectiveChunkCount: 2, HasCentroid: true}, nil)

	output, err := uc.Execute(context.Background(), usecase.SimilaritySearchInput{
		SourceDocumentID: sourceID,
		Config:           testSearchConfig(),
	})

	require.NoError(t, err)
	require.NotNil(t, output)
	assert.NotEmpty(t, output.SearchID)

	// One candidate passes through a skipped Stage1 into scoring.
	assert.Equal(t, 1, output.Stages.Stage0Candidates)
	assert.True(t, output.Stages.Stage1Skipped)
	assert.Equal(t, 1, output.Stages.Stage1Candidates)
	assert.Equal(t, 1, output.Stages.FinalResults)
	mockIndex.AssertNotCalled(t, "QueryChunks", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	require.Len(t, output.Results, 1)
	r := output.Results[0]
	assert.Equal(t, "derived report", r.Document.Title)
	assert.Equal(t, 200, r.MatchedSourceTokens)
	assert.InDelta(t, 0.5, r.Scores.SourceScore, 1e-9)
	assert.InDelta(t, 1.0, r.Scores.TargetScore, 1e-9)
}

func TestSimilaritySearch_Execute_InvalidConfig(t *testing.T) {
	uc := usecase.NewSimilaritySearchUsecase(
		new(MockVectorIndex), new(MockChunkStore), new(MockDocumentRepository), noopLimiter{}, testLogger())

	cfg := testSearchConfig()
	cfg.OwnerID = ""

	_, err := uc.Execute(context.Background(), usecase.SimilaritySearchInput{
		SourceDocumentID: uuid.New(),
		Config:           cfg,
	})

	var validation *domain.ValidationError
	require.True(t, errors.As(err, &validation))
}

func TestSimilaritySearch_Execute_AdmissionRejected(t *testing.T) {
	uc := usecase.NewSimilaritySearchUsecase(
		new(MockVectorIndex), new(MockChunkStore), new(MockDocumentRepository), closedLimiter{}, testLogger())

	_, err := uc.Execute(context.Background(), usecase.SimilaritySearchInput{
		SourceDocumentID: uuid.New(),
		Config:           testSearchConfig(),
	})

	var aborted *domain.AbortedError
	require.True(t, errors.As(err, &aborted))
	assert.Equal(t, "admission", aborted.Stage)
}

func TestSimilaritySearch_Execute_SourceNotReady(t *testing.T) {
	mockIndex := new(MockVectorIndex)
	mockChunks := new(MockChunkStore)
	uc := usecase.NewSimilaritySearchUsecase(mockIndex, mockChunks, new(MockDocumentRepository), noopLimiter{}, testLogger())

	sourceID := uuid.New()
	mockChunks.On("GetDocumentTotals", mock.Anything, sourceID).
		Return(domain.DocumentTotals{TotalTokens: 0, EffectiveChunkCount: 0, HasCentroid: false}, nil)

	_, err := uc.Execute(context.Background(), usecase.SimilaritySearchInput{
		SourceDocumentID: sourceID,
		Config:           testSearchConfig(),
	})

	var validation *domain.ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Len(t, validation.Reasons, 3)
	assert.Contains(t, validation.Remediation, "reprocessing")
	mockIndex.AssertNotCalled(t, "FetchCentroid", mock.Anything, mock.Anything)
}

func TestSimilaritySearch_Execute_RetriesUpstreamReads(t *testing.T) {
	mockIndex := new(MockVectorIndex)
	mockChunks := new(MockChunkStore)
	uc := usecase.NewSimilaritySearchUsecase(mockIndex, mockChunks, new(MockDocumentRepository), noopLimiter{}, testLogger())

	sourceID := uuid.New()
	upstream := &domain.UpstreamServiceError{Service: "chunk_store", Op: "get_totals", Err: errors.New("connection reset")}

	// First attempt fails with a retryable upstream error, second succeeds.
	mockChunks.On("GetDocumentTotals", mock.Anything, sourceID).
		Return(domain.DocumentTotals{}, upstream).Once()
	mockChunks.On("GetDocumentTotals", mock.Anything, sourceID).
		Return(domain.DocumentTotals{TotalTokens: 400, EffectiveChunkCount: 4, HasCentroid: true}, nil).Once()

	// Stop the pipeline right after the retried call.
	mockIndex.On("FetchCentroid", mock.Anything, sourceID).
		Return(nil, &domain.NotFoundError{DocumentID: sourceID})

	_, err := uc.Execute(context.Background(), usecase.SimilaritySearchInput{
		SourceDocumentID: sourceID,
		Config:           testSearchConfig(),
	})

	var notFound *domain.NotFoundError
	require.True(t, errors.As(err, &notFound))
	mockChunks.AssertNumberOfCalls(t, "GetDocumentTotals", 2)
}

func TestSimilaritySearch_Execute_CancelledMidPipeline(t *testing.T) {
	mockIndex := new(MockVectorIndex)
	mockChunks := new(MockChunkStore)
	mockDocs := new(MockDocumentRepository)
	uc := usecase.NewSimilaritySearchUsecase(mockIndex, mockChunks, mockDocs, noopLimiter{}, testLogger())

	sourceID := uuid.New()
	targetID := uuid.New()
	sourceChunks, sourceVectors := sourceFixture(sourceID)

	mockChunks.On("GetDocumentTotals", mock.Anything, sourceID).
		Return(domain.DocumentTotals{TotalTokens: 400, EffectiveChunkCount: 4, HasCentroid: true}, nil)
	mockIndex.On("FetchCentroid", mock.Anything, sourceID).Return([]float32{1, 0, 0, 0}, nil)
	mockChunks.On("GetChunks", mock.Anything, sourceID, []domain.PageRange(nil)).Return(sourceChunks, nil)
	mockIndex.On("FetchChunkVectors", mock.Anything, mock.Anything).Return(sourceVectors, nil)
	mockIndex.On("QueryCentroids", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.IndexMatch{{DocumentID: targetID, Score: 0.9}}, nil)

	// The request is cancelled after Stage0 delivered candidates, while
	// Stage2 is loading candidate metadata.
	ctx, cancel := context.WithCancel(context.Background())
	mockDocs.On("GetDocuments", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { cancel() }).
		Return(map[uuid.UUID]*domain.Document{targetID: {ID: targetID}}, nil)
	mockChunks.On("GetChunks", mock.Anything, targetID, []domain.PageRange(nil)).
		Return(nil, context.Canceled)

	_, err := uc.Execute(ctx, usecase.SimilaritySearchInput{
		SourceDocumentID: sourceID,
		Config:           testSearchConfig(),
	})

	// Partial work is discarded; the caller sees an abort, not results.
	var aborted *domain.AbortedError
	require.True(t, errors.As(err, &aborted))
}

func TestSimilaritySearch_Execute_CancellationBecomesAborted(t *testing.T) {
	mockChunks := new(MockChunkStore)
	uc := usecase.NewSimilaritySearchUsecase(
		new(MockVectorIndex), mockChunks, new(MockDocumentRepository), noopLimiter{}, testLogger())

	sourceID := uuid.New()
	mockChunks.On("GetDocumentTotals", mock.Anything, sourceID).
		Return(domain.DocumentTotals{}, context.Canceled)

	_, err := uc.Execute(context.Background(), usecase.SimilaritySearchInput{
		SourceDocumentID: sourceID,
		Config:           testSearchConfig(),
	})

	var aborted *domain.AbortedError
	require.True(t, errors.As(err, &aborted))
	assert.Equal(t, "load_source", aborted.Stage)
}
