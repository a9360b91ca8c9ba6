package similarity

import (
	"testing"

	"reuse-detector/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func chunkAt(index, tokens, page int) (domain.Chunk, uuid.UUID) {
	id := uuid.New()
	return domain.Chunk{
		ID:         id,
		Index:      index,
		TokenCount: tokens,
		StartPage:  page,
		EndPage:    page,
	}, id
}

func TestMatchChunks_BidirectionalAssignment(t *testing.T) {
	srcA, srcAID := chunkAt(0, 100, 1)
	srcB, srcBID := chunkAt(1, 100, 2)
	tgt0, tgt0ID := chunkAt(0, 100, 10)
	tgt1, tgt1ID := chunkAt(1, 100, 11)

	sourceVectors := map[uuid.UUID][]float32{
		srcAID: {1, 0},
		srcBID: {0.6, 0.8},
	}
	targetVectors := map[uuid.UUID][]float32{
		tgt0ID: {1, 0},
		tgt1ID: {0, 1},
	}

	matches := matchChunks(
		[]domain.Chunk{srcA, srcB}, sourceVectors,
		[]domain.Chunk{tgt0, tgt1}, targetVectors,
		0.5,
	)

	assert.Len(t, matches, 2)
	assert.Equal(t, 0, matches[0].SourceChunkIndex)
	assert.Equal(t, 0, matches[0].TargetChunkIndex)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.Equal(t, 1, matches[1].SourceChunkIndex)
	assert.Equal(t, 1, matches[1].TargetChunkIndex)
	assert.InDelta(t, 0.8, matches[1].Similarity, 1e-9)
}

func TestMatchChunks_SuppressionKeepsIndexesDisjoint(t *testing.T) {
	// Both source chunks prefer the single target; the higher similarity
	// wins and the loser is suppressed rather than double-assigned.
	srcA, srcAID := chunkAt(0, 100, 1)
	srcB, srcBID := chunkAt(1, 100, 2)
	tgt0, tgt0ID := chunkAt(0, 100, 10)

	sourceVectors := map[uuid.UUID][]float32{
		srcAID: {1, 0},
		srcBID: {0.6, 0.8},
	}
	targetVectors := map[uuid.UUID][]float32{
		tgt0ID: {1, 0},
	}

	matches := matchChunks(
		[]domain.Chunk{srcA, srcB}, sourceVectors,
		[]domain.Chunk{tgt0}, targetVectors,
		0.5,
	)

	assert.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].SourceChunkIndex)

	seenSrc := map[int]bool{}
	seenTgt := map[int]bool{}
	for _, m := range matches {
		assert.False(t, seenSrc[m.SourceChunkIndex])
		assert.False(t, seenTgt[m.TargetChunkIndex])
		seenSrc[m.SourceChunkIndex] = true
		seenTgt[m.TargetChunkIndex] = true
	}
}

func TestMatchChunks_ThresholdAppliedAfterSuppression(t *testing.T) {
	srcA, srcAID := chunkAt(0, 100, 1)
	tgt0, tgt0ID := chunkAt(0, 100, 10)

	sourceVectors := map[uuid.UUID][]float32{srcAID: {1, 0}}
	targetVectors := map[uuid.UUID][]float32{tgt0ID: {0.6, 0.8}}

	matches := matchChunks(
		[]domain.Chunk{srcA}, sourceVectors,
		[]domain.Chunk{tgt0}, targetVectors,
		0.9,
	)
	assert.Empty(t, matches)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)

	// Opposed vectors clamp to zero instead of going negative.
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{-1, 0}))

	// Degenerate inputs score zero.
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, cosine(nil, nil))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 0}))
}

func TestOverlapScore(t *testing.T) {
	assert.InDelta(t, 0.5, overlapScore(0.5, 0.5, "harmonic"), 1e-9)
	assert.InDelta(t, 0.32, overlapScore(0.2, 0.8, "harmonic"), 1e-9)
	assert.Equal(t, 0.0, overlapScore(0, 0, "harmonic"))
	assert.InDelta(t, 0.2, overlapScore(0.2, 0.8, "min"), 1e-9)
}
