package similarity_test

import (
	"testing"

	"reuse-detector/internal/domain"
	"reuse-detector/internal/usecase/similarity"

	"github.com/stretchr/testify/assert"
)

func sectionCfg() similarity.Stage2Config {
	return similarity.Stage2Config{
		ReusableThreshold: 0.85,
		MinSectionChunks:  2,
		MinSectionTokens:  200,
		SectionPageGap:    1,
	}
}

func match(srcIdx, srcPage, tgtIdx, tgtPage int, sim float64, tokens int) domain.Match {
	return domain.Match{
		SourceChunkIndex: srcIdx,
		TargetChunkIndex: tgtIdx,
		Similarity:       sim,
		SourcePages:      domain.PageRange{StartPage: srcPage, EndPage: srcPage},
		TargetPages:      domain.PageRange{StartPage: tgtPage, EndPage: tgtPage},
		SourceTokens:     tokens,
		TargetTokens:     tokens,
	}
}

func TestBuildSections_GroupsContiguousMatches(t *testing.T) {
	matches := []domain.Match{
		match(0, 1, 0, 10, 0.90, 100),
		match(1, 2, 1, 11, 0.88, 100),
		match(5, 8, 7, 30, 0.95, 100),
		match(6, 9, 8, 31, 0.91, 100),
	}

	sections, retained := similarity.BuildSections(matches, sectionCfg())

	assert.Len(t, sections, 2)
	assert.Len(t, retained, 4)

	assert.Equal(t, domain.PageRange{StartPage: 1, EndPage: 2}, sections[0].SourcePages)
	assert.Equal(t, domain.PageRange{StartPage: 10, EndPage: 11}, sections[0].TargetPages)
	assert.Equal(t, 2, sections[0].ChunkCount)
	assert.InDelta(t, 0.89, sections[0].AvgScore, 1e-9)
	assert.True(t, sections[0].Reusable)

	assert.Equal(t, domain.PageRange{StartPage: 8, EndPage: 9}, sections[1].SourcePages)
	assert.InDelta(t, 0.93, sections[1].AvgScore, 1e-9)
}

func TestBuildSections_TargetJumpSplitsSection(t *testing.T) {
	// Source pages stay contiguous but the target side jumps, so the
	// matches cannot belong to one section.
	matches := []domain.Match{
		match(0, 1, 0, 10, 0.90, 300),
		match(1, 2, 9, 40, 0.90, 300),
	}

	sections, _ := similarity.BuildSections(matches, sectionCfg())
	assert.Len(t, sections, 2)
}

func TestBuildSections_DropsIsolatedShortMatch(t *testing.T) {
	matches := []domain.Match{
		match(0, 1, 0, 10, 0.90, 100),
		match(1, 2, 1, 11, 0.88, 100),
		match(5, 8, 7, 30, 0.99, 50),
	}

	sections, retained := similarity.BuildSections(matches, sectionCfg())

	assert.Len(t, sections, 1)
	assert.Len(t, retained, 2)
	assert.Equal(t, 200, sections[0].SourceTokens)
}

func TestBuildSections_KeepsSingleSubstantialMatch(t *testing.T) {
	matches := []domain.Match{
		match(0, 1, 0, 10, 0.80, 250),
	}

	sections, retained := similarity.BuildSections(matches, sectionCfg())

	assert.Len(t, sections, 1)
	assert.Len(t, retained, 1)
	assert.Equal(t, 1, sections[0].ChunkCount)
	assert.False(t, sections[0].Reusable)
}

func TestBuildSections_Empty(t *testing.T) {
	sections, retained := similarity.BuildSections(nil, sectionCfg())
	assert.Nil(t, sections)
	assert.Nil(t, retained)
}
