package completion

import (
	"sort"
	"strings"

	"github.com/dshills/nvcomplete/internal/config"
	"github.com/dshills/nvcomplete/internal/editor"
	"github.com/dshills/nvcomplete/internal/fuzzy"
)

// highPriorityThreshold splits sources into the high and low priority
// item-limit buckets.
const highPriorityThreshold = 90

// rankedItem pairs an item with its computed rank.
type rankedItem struct {
	item  *Item
	score int
	index int
}

// rankItems re-filters the session's cached union against search and
// applies the ranking rules: fuzzy score, recency, locality bonus,
// then the configured sort method for ties. Config pruning (source
// limits, duplicate removal, ASCII filter) happens here too; row
// shaping is the popup driver's job.
func rankItems(items []*Item, opt *editor.CompleteOption, search string, cfg *config.Config, rec *Recency) []*Item {
	matcher := fuzzy.NewMatcher(fuzzy.Options{})

	ranked := make([]rankedItem, 0, len(items))
	for i, it := range items {
		if cfg.ASCIICharactersOnly && !isASCII(it.Word) {
			continue
		}

		score, ok := matcher.Score(search, it.filterWord())
		if !ok {
			continue
		}

		score += it.Priority
		if rec != nil {
			score += rec.Bonus(opt.Bufnr, it.Word)
		}
		if cfg.LocalityBonus && it.Locality > 0 && it.Locality < 40 {
			score += 40 - it.Locality
		}

		ranked = append(ranked, rankedItem{item: it, score: score, index: i})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		switch cfg.DefaultSortMethod {
		case config.SortAlphabetical:
			return ranked[a].item.Word < ranked[b].item.Word
		case config.SortByLength:
			return len(ranked[a].item.Word) < len(ranked[b].item.Word)
		default:
			return ranked[a].index < ranked[b].index
		}
	})

	perSource := make(map[string]int)
	seen := make(map[string]bool)
	out := make([]*Item, 0, len(ranked))
	for _, r := range ranked {
		it := r.item

		if limit := sourceLimit(it.Priority, cfg); limit > 0 {
			if perSource[it.Source] >= limit {
				continue
			}
		}

		if cfg.RemoveDuplicateItems && !it.Dup {
			if seen[it.Word] {
				continue
			}
		}

		seen[it.Word] = true
		perSource[it.Source]++
		out = append(out, it)
	}

	return out
}

// sourceLimit returns the per-source item cap for a priority bucket;
// 0 means unlimited.
func sourceLimit(priority int, cfg *config.Config) int {
	if priority >= highPriorityThreshold {
		return cfg.HighPrioritySourceLimit
	}
	return cfg.LowPrioritySourceLimit
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// resumeDecision is the filter engine's verdict on a pretext change.
type resumeDecision int

const (
	// resumeStop tears the session down.
	resumeStop resumeDecision = iota
	// resumeIgnore leaves everything as is.
	resumeIgnore
	// resumeFilter re-filters the cached union locally.
	resumeFilter
	// resumeRequery asks incomplete providers for more.
	resumeRequery
)

// decideResume classifies a pretext change against the session per
// the filter/resume rules. It updates nothing; the caller applies the
// decision.
func decideResume(sess *Session, pretext string, force bool) (string, resumeDecision) {
	search, ok := GetResumeInput(pretext, sess.Option())
	if !ok {
		return "", resumeStop
	}

	if search == sess.Input() && !force {
		return search, resumeIgnore
	}

	if search == "" || endsInWhitespace(search) || !strings.HasPrefix(search, sess.Option().Input) {
		return search, resumeStop
	}

	if sess.HasIncomplete() {
		return search, resumeRequery
	}
	return search, resumeFilter
}
