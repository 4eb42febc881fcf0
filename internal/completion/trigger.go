package completion

import (
	"strings"
	"unicode/utf8"

	"github.com/dshills/nvcomplete/internal/config"
)

// ShouldTrigger decides whether the prefix pre should start a
// completion session. It is deterministic in its inputs.
//
// Order of the rules matters: trigger strings fire even when
// autoTrigger is "trigger", but the implicit typing-a-word rule only
// applies with autoTrigger "always" and no active session.
func ShouldTrigger(pre, filetype string, cfg *config.Config, activated bool, sources []Source, words *WordTable) bool {
	if pre == "" || endsInWhitespace(pre) {
		return false
	}

	if cfg.AutoTrigger == config.AutoTriggerNone {
		return false
	}

	for _, s := range sources {
		for _, trig := range s.Triggers(filetype) {
			if trig != "" && strings.HasSuffix(pre, trig) {
				return true
			}
		}
	}

	if cfg.AutoTrigger != config.AutoTriggerAlways || activated {
		return false
	}

	last, _ := utf8.DecodeLastRuneInString(pre)
	if last == utf8.RuneError {
		return false
	}
	if !words.IsWordChar(filetype, last) {
		return false
	}

	input := words.WordPrefix(filetype, pre)
	return utf8.RuneCountInString(input) >= cfg.MinTriggerInputLength
}
