package completion

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dshills/nvcomplete/internal/editor"
)

// commandLineURISuffix marks command-line buffers; completion never
// pops up there.
const commandLineURISuffix = "%5BCommand%20Line%5D"

// isCommandLine reports whether the option targets a command-line buffer.
func isCommandLine(opt *editor.CompleteOption) bool {
	return strings.HasSuffix(opt.URI, commandLineURISuffix)
}

// pretextOf returns the option's line text from start to cursor.
func pretextOf(opt *editor.CompleteOption) string {
	end := opt.Colnr - 1
	if end < 0 {
		end = 0
	}
	if end > len(opt.Line) {
		end = len(opt.Line)
	}
	return opt.Line[:end]
}

// WordTable holds the per-filetype word-character classes used by the
// trigger policy and the resume engine. The default class is
// [0-9A-Za-z_]; any code point above 255 always counts as a word
// character.
type WordTable struct {
	mu    sync.RWMutex
	extra map[string]map[rune]bool
}

// NewWordTable creates an empty word table.
func NewWordTable() *WordTable {
	return &WordTable{extra: make(map[string]map[rune]bool)}
}

// SetExtra registers additional word characters for a filetype.
func (w *WordTable) SetExtra(filetype, chars string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	set := make(map[rune]bool, len(chars))
	for _, r := range chars {
		set[r] = true
	}
	w.extra[filetype] = set
}

// IsWordChar reports whether r is a word character for the filetype.
func (w *WordTable) IsWordChar(filetype string, r rune) bool {
	if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r > 255 {
		return true
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.extra[filetype][r]
}

// WordPrefix returns the longest suffix of pre consisting of word
// characters for the filetype.
func (w *WordTable) WordPrefix(filetype, pre string) string {
	runes := []rune(pre)
	start := len(runes)
	for start > 0 && w.IsWordChar(filetype, runes[start-1]) {
		start--
	}
	return string(runes[start:])
}

// GetResumeInput re-reads pretext as UTF-8 bytes and returns the tail
// from byte offset opt.Col. It is a pure function of its inputs.
//
// Returns false when pretext is shorter than the session column, when
// the tail is not valid UTF-8, or when the tail is blacklisted.
func GetResumeInput(pretext string, opt *editor.CompleteOption) (string, bool) {
	if len(pretext) < opt.Col {
		return "", false
	}
	search := pretext[opt.Col:]
	if !utf8.ValidString(search) {
		return "", false
	}
	for _, banned := range opt.Blacklist {
		if search == banned {
			return "", false
		}
	}
	return search, true
}

// leadingWhitespace returns the run of spaces and tabs at the start of s.
func leadingWhitespace(s string) string {
	for i, r := range s {
		if r != ' ' && r != '\t' {
			return s[:i]
		}
	}
	return s
}

// endsInWhitespace reports whether the last rune of s is whitespace.
func endsInWhitespace(s string) bool {
	if s == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return r == ' ' || r == '\t'
}
