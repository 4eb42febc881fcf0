// Package editor implements the bridge to the host editor: the input
// event schema, a JSON-RPC transport over stdio, and the command
// surface the coordinator drives the popup with.
package editor

// InsertChange describes an insert-mode text change event.
type InsertChange struct {
	// Bufnr is the buffer number the change happened in.
	Bufnr int `json:"bufnr"`
	// Lnum is the 1-based line number of the cursor.
	Lnum int `json:"lnum"`
	// Col is the 1-based byte column of the cursor.
	Col int `json:"col"`
	// Pre is the text from line start to cursor.
	Pre string `json:"pre"`
	// Changedtick is the buffer's monotonic change counter.
	Changedtick int `json:"changedtick"`
	// Filetype is the buffer's detected filetype.
	Filetype string `json:"filetype,omitempty"`
}

// PopupChangeEvent describes a highlighted-row change in the popup.
type PopupChangeEvent struct {
	CompletedItem Item `json:"completed_item"`
	Col           int  `json:"col"`
	Row           int  `json:"row"`
	Height        int  `json:"height"`
	Width         int  `json:"width"`
	Scrollbar     bool `json:"scrollbar"`
}

// Item is a popup candidate row in the editor's native shape.
type Item struct {
	Word     string `json:"word"`
	Abbr     string `json:"abbr,omitempty"`
	Menu     string `json:"menu,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Info     string `json:"info,omitempty"`
	Dup      int    `json:"dup,omitempty"`
	Empty    int    `json:"empty,omitempty"`
	Icase    int    `json:"icase,omitempty"`
	Equal    int    `json:"equal,omitempty"`
	UserData string `json:"user_data,omitempty"`
}

// CompleteOption is the editor's answer to get_complete_option: the
// immutable snapshot a session starts from.
type CompleteOption struct {
	Bufnr            int      `json:"bufnr"`
	Linenr           int      `json:"linenr"`
	Col              int      `json:"col"`
	Colnr            int      `json:"colnr"`
	Line             string   `json:"line"`
	Filetype         string   `json:"filetype"`
	Input            string   `json:"input"`
	URI              string   `json:"uri,omitempty"`
	TriggerCharacter string   `json:"triggerCharacter,omitempty"`
	Blacklist        []string `json:"blacklist,omitempty"`
	Source           string   `json:"source,omitempty"`
}

// Event method names on the incoming notification stream.
const (
	MethodInsertCharPre    = "nvcomplete/insertCharPre"
	MethodInsertEnter      = "nvcomplete/insertEnter"
	MethodInsertLeave      = "nvcomplete/insertLeave"
	MethodTextChangedI     = "nvcomplete/textChangedI"
	MethodTextChangedP     = "nvcomplete/textChangedP"
	MethodCompleteDone     = "nvcomplete/completeDone"
	MethodMenuPopupChanged = "nvcomplete/menuPopupChanged"
	MethodConfigChanged    = "nvcomplete/configChanged"
)

// InsertCharPreParams carries the typed character.
type InsertCharPreParams struct {
	Character string `json:"character"`
}

// InsertEnterParams carries the buffer entering insert mode.
type InsertEnterParams struct {
	Bufnr int `json:"bufnr"`
}

// TextChangedParams carries an insert-mode change event.
type TextChangedParams struct {
	Bufnr int          `json:"bufnr"`
	Info  InsertChange `json:"info"`
}

// CompleteDoneParams carries the committed row, possibly empty.
type CompleteDoneParams struct {
	Item Item `json:"item"`
}

// Handler receives classified editor events in arrival order.
//
// The transport invokes these callbacks on its read goroutine, one at
// a time; a slow handler delays subsequent events rather than
// reordering them.
type Handler interface {
	OnInsertCharPre(ch string)
	OnInsertEnter(bufnr int)
	OnInsertLeave()
	OnTextChangedI(bufnr int, info InsertChange)
	OnTextChangedP(bufnr int, info InsertChange)
	OnCompleteDone(item Item)
	OnMenuPopupChanged(ev PopupChangeEvent)
	OnConfigChanged()
}
