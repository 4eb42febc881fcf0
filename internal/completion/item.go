package completion

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/nvcomplete/internal/editor"
)

// Item is a completion candidate produced by a source.
type Item struct {
	// Word is the text inserted on accept.
	Word string
	// Abbr is the display label; Word is shown when empty.
	Abbr string
	// Menu is extra text shown after the label.
	Menu string
	// Kind is the candidate kind label.
	Kind string
	// Info is the preview documentation text.
	Info string
	// Dup allows the candidate to duplicate an existing word.
	Dup bool
	// Empty allows an empty Word.
	Empty bool
	// ICase marks case-insensitive matching.
	ICase bool
	// Preselect marks the candidate the popup should highlight first.
	Preselect bool
	// UserData is opaque provider JSON carried through the editor.
	UserData string
	// Documentation is the resolved documentation, when available.
	Documentation string

	// FilterText overrides Word for filtering when set.
	FilterText string

	// Source is the owning provider name; Priority its priority.
	Source   string
	Priority int

	// Locality is the provider-reported distance in lines between the
	// candidate's origin and the cursor; 0 means unknown or same line.
	// Used for the locality bonus.
	Locality int
}

// userDataSourceKey is the UserData path the engine stamps the owning
// source into, so the source survives the editor round-trip.
const userDataSourceKey = "nvcomplete.source"

// userDataSnippetKey marks snippet candidates in UserData.
const userDataSnippetKey = "nvcomplete.snippet"

// TagSource stamps the owning source name into UserData.
func (it *Item) TagSource(name string) {
	it.Source = name
	if data, err := sjson.Set(it.UserData, userDataSourceKey, name); err == nil {
		it.UserData = data
	}
}

// SourceName returns the owning source, falling back to the UserData
// stamp for items that round-tripped through the editor.
func (it *Item) SourceName() string {
	if it.Source != "" {
		return it.Source
	}
	return gjson.Get(it.UserData, userDataSourceKey).String()
}

// IsSnippet reports whether the item expands as a snippet.
func (it *Item) IsSnippet() bool {
	return gjson.Get(it.UserData, userDataSnippetKey).Bool()
}

// MarkSnippet stamps the snippet flag into UserData.
func (it *Item) MarkSnippet() {
	if data, err := sjson.Set(it.UserData, userDataSnippetKey, true); err == nil {
		it.UserData = data
	}
}

// filterWord is the text the filter engine matches against.
func (it *Item) filterWord() string {
	if it.FilterText != "" {
		return it.FilterText
	}
	return it.Word
}

// ItemFromEditor converts an editor popup row back to an Item.
// Rows with no word convert to nil.
func ItemFromEditor(row editor.Item) *Item {
	if row.Word == "" {
		return nil
	}
	return &Item{
		Word:     row.Word,
		Abbr:     row.Abbr,
		Menu:     row.Menu,
		Kind:     row.Kind,
		Info:     row.Info,
		Dup:      row.Dup != 0,
		Empty:    row.Empty != 0,
		ICase:    row.Icase != 0,
		UserData: row.UserData,
	}
}
