package completion

import (
	"regexp"
	"strconv"

	"github.com/mattn/go-runewidth"

	"github.com/dshills/nvcomplete/internal/config"
	"github.com/dshills/nvcomplete/internal/editor"
)

// menuShortcutRe matches the trailing "[...]" shortcut of a menu text.
var menuShortcutRe = regexp.MustCompile(`\s*\[[^\[\]]*\]\s*$`)

// BuildPopup shapes ranked items into editor popup rows. It is a pure
// function of its inputs: ordering is the caller's responsibility
// except for number-select prefixing, which applies after ranking.
//
// Returns the rows and the preselect index (-1 for none).
func BuildPopup(items []*Item, opt *editor.CompleteOption, cfg *config.Config) ([]editor.Item, int) {
	numberSelect := cfg.NumberSelect && !startsWithDigit(opt.Input)
	preselect := -1

	rows := make([]editor.Item, 0, len(items))
	for _, it := range items {
		if cfg.MaxItemCount > 0 && len(rows) >= cfg.MaxItemCount {
			break
		}
		if it.Word == "" && !it.Empty {
			continue
		}

		abbr := it.Abbr
		if abbr == "" {
			abbr = it.Word
		}
		if it.IsSnippet() && cfg.SnippetIndicator != "" {
			abbr += cfg.SnippetIndicator
		}
		if numberSelect && len(rows) < 9 {
			abbr = strconv.Itoa(len(rows)+1) + " " + abbr
		}
		if cfg.LabelMaxLength > 0 {
			abbr = runewidth.Truncate(abbr, cfg.LabelMaxLength, "")
		}

		menu := it.Menu
		if cfg.DisableMenu {
			menu = ""
		} else if cfg.DisableMenuShortcut {
			menu = menuShortcutRe.ReplaceAllString(menu, "")
		}

		kind := it.Kind
		if cfg.DisableKind {
			kind = ""
		}

		if cfg.EnablePreselect && preselect < 0 && it.Preselect {
			preselect = len(rows)
		}

		rows = append(rows, editor.Item{
			Word:     it.Word,
			Abbr:     abbr,
			Menu:     menu,
			Kind:     kind,
			Info:     it.Info,
			Dup:      boolInt(it.Dup),
			Empty:    boolInt(it.Empty),
			Icase:    boolInt(it.ICase),
			UserData: it.UserData,
		})
	}

	return rows, preselect
}

// NumberSelectActive reports whether digit mappings should be live
// for the option.
func NumberSelectActive(opt *editor.CompleteOption, cfg *config.Config) bool {
	return cfg.NumberSelect && !startsWithDigit(opt.Input)
}

// ComposeCompleteOpt builds the completeopt string pushed while a
// session is showing.
func ComposeCompleteOpt(cfg *config.Config) string {
	s := "noinsert,menuone"
	if cfg.NoSelect {
		s = "noselect,menuone"
	}
	if cfg.EnablePreview {
		s += ",preview"
	}
	return s
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
