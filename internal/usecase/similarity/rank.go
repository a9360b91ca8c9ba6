package similarity

import (
	"sort"

	"reuse-detector/internal/domain"
)

// RankResults orders results by the deterministic total order: sourceScore
// desc, targetScore desc, matchedTargetTokens desc, upload timestamp desc,
// title asc, document ID asc. The ID tiebreak guarantees a strict order
// even for fully identical metrics, so the final ordering never depends on
// worker completion order.
func RankResults(results []domain.SimilarityResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Scores.SourceScore != b.Scores.SourceScore {
			return a.Scores.SourceScore > b.Scores.SourceScore
		}
		if a.Scores.TargetScore != b.Scores.TargetScore {
			return a.Scores.TargetScore > b.Scores.TargetScore
		}
		if a.MatchedTargetTokens != b.MatchedTargetTokens {
			return a.MatchedTargetTokens > b.MatchedTargetTokens
		}
		if !a.Document.UploadedAt.Equal(b.Document.UploadedAt) {
			return a.Document.UploadedAt.After(b.Document.UploadedAt)
		}
		if a.Document.Title != b.Document.Title {
			return a.Document.Title < b.Document.Title
		}
		return a.Document.ID.String() < b.Document.ID.String()
	})
}

// Truncate caps the fully ordered result list. Never called before
// RankResults.
func Truncate(results []domain.SimilarityResult, max int) []domain.SimilarityResult {
	if max > 0 && len(results) > max {
		return results[:max]
	}
	return results
}
