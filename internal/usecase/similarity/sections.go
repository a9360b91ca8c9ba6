package similarity

import "reuse-detector/internal/domain"

// BuildSections groups retained matches into page-range sections and
// applies the minimum-evidence floor. Matches must already be sorted by
// source chunk index. It returns the surviving sections and the matches
// belonging to them; matches whose section falls under the floor are
// dropped with it, so they contribute no tokens to the scores.
func BuildSections(matches []domain.Match, cfg Stage2Config) ([]domain.Section, []domain.Match) {
	if len(matches) == 0 {
		return nil, nil
	}

	type group struct {
		matches     []domain.Match
		sourcePages domain.PageRange
		targetPages domain.PageRange
	}

	var groups []group
	current := group{
		matches:     []domain.Match{matches[0]},
		sourcePages: matches[0].SourcePages,
		targetPages: matches[0].TargetPages,
	}
	for _, m := range matches[1:] {
		// A match joins the running section only when both sides stay
		// contiguous; a jump on either side starts a new section.
		if m.SourcePages.Overlaps(current.sourcePages, cfg.SectionPageGap) &&
			m.TargetPages.Overlaps(current.targetPages, cfg.SectionPageGap) {
			current.matches = append(current.matches, m)
			current.sourcePages = current.sourcePages.Extend(m.SourcePages)
			current.targetPages = current.targetPages.Extend(m.TargetPages)
			continue
		}
		groups = append(groups, current)
		current = group{
			matches:     []domain.Match{m},
			sourcePages: m.SourcePages,
			targetPages: m.TargetPages,
		}
	}
	groups = append(groups, current)

	var sections []domain.Section
	var retained []domain.Match
	for _, g := range groups {
		sumScore := 0.0
		sourceTokens, targetTokens := 0, 0
		for _, m := range g.matches {
			sumScore += m.Similarity
			sourceTokens += m.SourceTokens
			targetTokens += m.TargetTokens
		}

		// Minimum evidence: isolated very short matches are noise, but a
		// single substantial chunk is legitimate in short documents.
		if len(g.matches) < cfg.MinSectionChunks && sourceTokens < cfg.MinSectionTokens {
			continue
		}

		avg := sumScore / float64(len(g.matches))
		sections = append(sections, domain.Section{
			SourcePages:  g.sourcePages,
			TargetPages:  g.targetPages,
			AvgScore:     avg,
			ChunkCount:   len(g.matches),
			SourceTokens: sourceTokens,
			TargetTokens: targetTokens,
			Reusable:     avg >= cfg.ReusableThreshold,
		})
		retained = append(retained, g.matches...)
	}

	return sections, retained
}
