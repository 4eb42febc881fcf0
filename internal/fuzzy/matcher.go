// Package fuzzy provides subsequence matching and scoring used to
// re-filter cached completion items as the user extends the prefix.
package fuzzy

import (
	"sort"
	"strings"
)

// Candidate is a matchable completion word with its provider order.
type Candidate struct {
	// Text is the string to match against (the filter text).
	Text string

	// Index is the candidate's position in provider order; ties keep it.
	Index int
}

// Match is a scored candidate.
type Match struct {
	Candidate Candidate

	// Score is the match score (higher is better).
	Score int

	// Positions contains the rune indices of matched characters.
	Positions []int
}

// Options configures matching behavior.
type Options struct {
	// MinScore is the minimum score for a match to be included.
	MinScore int

	// CaseSensitive enables case-sensitive matching.
	CaseSensitive bool
}

// Matcher performs fuzzy string matching over candidate words.
type Matcher struct {
	scorer  Scorer
	options Options
}

// NewMatcher creates a matcher with the given options.
func NewMatcher(opts Options) *Matcher {
	return &Matcher{
		scorer:  DefaultScorer{},
		options: opts,
	}
}

// MatchAll scores every candidate against query and returns matches
// sorted by score descending; equal scores keep provider order.
// An empty query matches everything with zero score.
func (m *Matcher) MatchAll(query string, candidates []Candidate) []Match {
	if !m.options.CaseSensitive {
		query = strings.ToLower(query)
	}

	if query == "" {
		out := make([]Match, len(candidates))
		for i, c := range candidates {
			out[i] = Match{Candidate: c}
		}
		return out
	}

	queryRunes := []rune(query)

	results := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		score, positions := m.matchOne(queryRunes, c.Text)
		if positions != nil && score >= m.options.MinScore {
			results = append(results, Match{
				Candidate: c,
				Score:     score,
				Positions: positions,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}

// Score scores a single word against query. The second return is
// false when the query is not a subsequence of the word.
func (m *Matcher) Score(query, word string) (int, bool) {
	if !m.options.CaseSensitive {
		query = strings.ToLower(query)
	}
	if query == "" {
		return 0, true
	}
	score, positions := m.matchOne([]rune(query), word)
	return score, positions != nil
}

// matchOne scores a single candidate using a greedy left-to-right
// subsequence scan. Returns nil positions on no match.
func (m *Matcher) matchOne(queryRunes []rune, text string) (int, []int) {
	if text == "" || len(queryRunes) == 0 {
		return 0, nil
	}

	var textRunes []rune
	if m.options.CaseSensitive {
		textRunes = []rune(text)
	} else {
		textRunes = []rune(strings.ToLower(text))
	}
	originalRunes := []rune(text) // original case for boundary detection

	positions := make([]int, 0, len(queryRunes))
	queryIdx := 0

	for i := 0; i < len(textRunes) && queryIdx < len(queryRunes); i++ {
		if textRunes[i] == queryRunes[queryIdx] {
			positions = append(positions, i)
			queryIdx++
		}
	}

	if queryIdx != len(queryRunes) {
		return 0, nil
	}

	return m.scorer.Score(queryRunes, originalRunes, textRunes, positions), positions
}
