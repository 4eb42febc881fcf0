package provider

import (
	"context"
	"sync"

	"github.com/dshills/nvcomplete/internal/completion"
	"github.com/dshills/nvcomplete/internal/editor"
	"github.com/dshills/nvcomplete/internal/fuzzy"
)

// wordsPriority keeps the buffer-words fallback below dedicated
// sources.
const wordsPriority = 10

// maxWordResults caps one DoComplete answer; the set is reported
// incomplete beyond it.
const maxWordResults = 200

// WordsSource completes words already present in tracked buffers.
// Candidates from lines near the cursor carry a locality distance the
// filter engine can reward.
type WordsSource struct {
	mu      sync.RWMutex
	buffers map[int][]string // bufnr -> lines
	matcher *fuzzy.Matcher
}

// NewWordsSource creates an empty buffer-words source.
func NewWordsSource() *WordsSource {
	return &WordsSource{
		buffers: make(map[int][]string),
		matcher: fuzzy.NewMatcher(fuzzy.Options{}),
	}
}

// SetLines replaces the tracked content of a buffer.
func (w *WordsSource) SetLines(bufnr int, lines []string) {
	w.mu.Lock()
	w.buffers[bufnr] = lines
	w.mu.Unlock()
}

// DropBuffer forgets a buffer.
func (w *WordsSource) DropBuffer(bufnr int) {
	w.mu.Lock()
	delete(w.buffers, bufnr)
	w.mu.Unlock()
}

// Name implements completion.Source.
func (w *WordsSource) Name() string { return "words" }

// Priority implements completion.Source.
func (w *WordsSource) Priority() int { return wordsPriority }

// ShouldComplete implements completion.Source; words apply everywhere
// except explicit trigger-character requests.
func (w *WordsSource) ShouldComplete(opt *editor.CompleteOption) bool {
	return opt.TriggerCharacter == ""
}

// Triggers implements completion.Source; word completion has none.
func (w *WordsSource) Triggers(string) []string { return nil }

// DoComplete scans tracked buffer lines for words matching the input.
func (w *WordsSource) DoComplete(ctx context.Context, opt *editor.CompleteOption, rec *completion.Recency) (*completion.Result, error) {
	w.mu.RLock()
	lines := w.buffers[opt.Bufnr]
	w.mu.RUnlock()

	type found struct {
		distance int
	}
	seen := make(map[string]found)

	for lineno, line := range lines {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		distance := abs(lineno + 1 - opt.Linenr)
		for _, word := range splitWords(line) {
			if len(word) <= 1 || word == opt.Input {
				continue
			}
			if opt.Input != "" {
				if _, ok := w.matcher.Score(opt.Input, word); !ok {
					continue
				}
			}
			prev, ok := seen[word]
			if !ok || distance < prev.distance {
				seen[word] = found{distance: distance}
			}
		}
	}

	items := make([]*completion.Item, 0, len(seen))
	for word, f := range seen {
		items = append(items, &completion.Item{
			Word:     word,
			Kind:     "W",
			Locality: f.distance,
		})
		if len(items) >= maxWordResults {
			break
		}
	}

	return &completion.Result{
		Items:        items,
		IsIncomplete: len(items) >= maxWordResults,
	}, nil
}

// ShouldCommit implements completion.Source; plain words never
// auto-commit.
func (w *WordsSource) ShouldCommit(*completion.Item, string) bool { return false }

// Resolve implements completion.Source; words carry no documentation.
func (w *WordsSource) Resolve(_ context.Context, item *completion.Item) (*completion.Item, error) {
	return item, nil
}

// OnCompleteDone implements completion.Source.
func (w *WordsSource) OnCompleteDone(context.Context, *completion.Item, *editor.CompleteOption) error {
	return nil
}

// splitWords extracts word-character runs from a line.
func splitWords(line string) []string {
	var words []string
	runes := []rune(line)
	start := -1
	for i, r := range runes {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words = append(words, string(runes[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, string(runes[start:]))
	}
	return words
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r > 255
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
