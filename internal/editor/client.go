package editor

import (
	"context"
	"encoding/json"
	"time"
)

// Platform identifies the host editor flavor; it selects timing
// behavior such as the selection debounce interval.
type Platform int

const (
	// PlatformNative is a native (nvim-style) bridge.
	PlatformNative Platform = iota
	// PlatformLegacy is a legacy (vim-style) bridge.
	PlatformLegacy
)

// Command method names produced by the client.
const (
	cmdPopupShow      = "popup_show"
	cmdPopupHide      = "popup_hide"
	cmdSetCandidates  = "set_candidates"
	cmdSetCompleteOpt = "set_completeopt"
	cmdMapNumbers     = "map_number_select"
	cmdUnmapNumbers   = "unmap_number_select"
	cmdSetLine        = "setline"
	cmdSetCursor      = "cursor"
	cmdFloatShow      = "float_show"
	cmdFloatClose     = "float_close"
	cmdBatch          = "batch"
	cmdUserMessage    = "user_message"

	queryPumVisible     = "pumvisible"
	queryCompleteOption = "get_complete_option"
	queryPretext        = "get_pretext"
	queryChangedTick    = "get_changedtick"
)

// Client is the command surface the coordinator drives the editor
// with. Commands are notifications; queries are synchronous calls.
type Client struct {
	transport *Transport
	platform  Platform
	timeout   time.Duration
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithPlatform sets the host editor platform.
func WithPlatform(p Platform) ClientOption {
	return func(c *Client) {
		c.platform = p
	}
}

// WithQueryTimeout sets the timeout for synchronous queries.
func WithQueryTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a client over the given transport.
func NewClient(t *Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		platform:  PlatformNative,
		timeout:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Platform returns the host editor platform.
func (c *Client) Platform() Platform {
	return c.platform
}

// call is a batched or immediate command.
type call struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Batch accumulates commands and flushes them to the editor as one
// atomic notification. A Batch belongs to a client; create one with
// Client.NewBatch, as a zero Batch has no client to flush to.
type Batch struct {
	client *Client
	calls  []call
}

// NewBatch starts an empty command batch.
func (c *Client) NewBatch() *Batch {
	return &Batch{client: c}
}

// Flush sends the accumulated commands as a single notification.
// An empty batch sends nothing.
func (b *Batch) Flush() error {
	if len(b.calls) == 0 {
		return nil
	}
	calls := b.calls
	b.calls = nil
	return b.client.transport.Notify(cmdBatch, map[string]any{"calls": calls})
}

func (b *Batch) add(method string, params any) *Batch {
	b.calls = append(b.calls, call{Method: method, Params: params})
	return b
}

// PopupHide queues a popup_hide command.
func (b *Batch) PopupHide() *Batch { return b.add(cmdPopupHide, nil) }

// ClearCandidates queues an empty set_candidates command.
func (b *Batch) ClearCandidates() *Batch {
	return b.add(cmdSetCandidates, map[string]any{"items": []Item{}})
}

// SetCompleteOpt queues a set_completeopt command.
func (b *Batch) SetCompleteOpt(value string) *Batch {
	return b.add(cmdSetCompleteOpt, map[string]any{"value": value})
}

// UnmapNumberSelect queues removal of the 1..9 select mappings.
func (b *Batch) UnmapNumberSelect() *Batch { return b.add(cmdUnmapNumbers, nil) }

// FloatClose queues closing the documentation float.
func (b *Batch) FloatClose() *Batch { return b.add(cmdFloatClose, nil) }

// Teardown clears completion UI state as one atomic batch: hide the
// popup, clear the candidate list, optionally restore completeopt and
// remove number-select mappings, and close the documentation float.
func (c *Client) Teardown(completeopt string, unmapNumbers bool) error {
	b := c.NewBatch()
	b.PopupHide().ClearCandidates()
	if completeopt != "" {
		b.SetCompleteOpt(completeopt)
	}
	if unmapNumbers {
		b.UnmapNumberSelect()
	}
	b.FloatClose()
	return b.Flush()
}

// PopupShow displays the candidate list at the given byte column.
func (c *Client) PopupShow(col int, items []Item, preselect int) error {
	return c.transport.Notify(cmdPopupShow, map[string]any{
		"col":       col,
		"items":     items,
		"preselect": preselect,
	})
}

// PopupHide hides the popup immediately.
func (c *Client) PopupHide() error {
	return c.transport.Notify(cmdPopupHide, nil)
}

// SetCompleteOpt pushes a completeopt string to the editor.
func (c *Client) SetCompleteOpt(value string) error {
	return c.transport.Notify(cmdSetCompleteOpt, map[string]any{"value": value})
}

// MapNumberSelect installs digit mappings 1..9 for select-and-commit.
func (c *Client) MapNumberSelect() error {
	return c.transport.Notify(cmdMapNumbers, nil)
}

// SetLine replaces the text of a line.
func (c *Client) SetLine(lnum int, text string) error {
	return c.transport.Notify(cmdSetLine, map[string]any{"lnum": lnum, "text": text})
}

// SetCursor moves the cursor to a 1-based line and byte column.
func (c *Client) SetCursor(lnum, col int) error {
	return c.transport.Notify(cmdSetCursor, map[string]any{"lnum": lnum, "col": col})
}

// FloatShow renders documentation in the floating window.
func (c *Client) FloatShow(docs, filetype string, bounds PopupChangeEvent) error {
	return c.transport.Notify(cmdFloatShow, map[string]any{
		"docs":     docs,
		"filetype": filetype,
		"row":      bounds.Row,
		"col":      bounds.Col,
		"height":   bounds.Height,
		"width":    bounds.Width,
	})
}

// FloatClose closes the documentation float.
func (c *Client) FloatClose() error {
	return c.transport.Notify(cmdFloatClose, nil)
}

// ShowMessage surfaces a single-line message to the user.
func (c *Client) ShowMessage(msg string) error {
	return c.transport.Notify(cmdUserMessage, map[string]any{"text": msg})
}

// PumVisible reports whether the popup is currently visible.
func (c *Client) PumVisible(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var visible bool
	if err := c.transport.Call(ctx, queryPumVisible, nil, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

// GetCompleteOption queries the editor for the completion snapshot at
// the current cursor position.
func (c *Client) GetCompleteOption(ctx context.Context) (*CompleteOption, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var opt CompleteOption
	if err := c.transport.Call(ctx, queryCompleteOption, nil, &opt); err != nil {
		return nil, err
	}
	return &opt, nil
}

// CurrentPretext queries the text from line start to cursor.
func (c *Client) CurrentPretext(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var pre string
	if err := c.transport.Call(ctx, queryPretext, nil, &pre); err != nil {
		return "", err
	}
	return pre, nil
}

// ChangedTick queries the buffer's current change counter.
func (c *Client) ChangedTick(ctx context.Context, bufnr int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var tick int
	if err := c.transport.Call(ctx, queryChangedTick, map[string]any{"bufnr": bufnr}, &tick); err != nil {
		return 0, err
	}
	return tick, nil
}

// BindHandler subscribes h to the transport's event notifications.
// Events are delivered in arrival order on the read goroutine.
func BindHandler(t *Transport, h Handler) {
	t.OnNotification(MethodInsertCharPre, func(_ string, params json.RawMessage) {
		var p InsertCharPreParams
		if json.Unmarshal(params, &p) == nil {
			h.OnInsertCharPre(p.Character)
		}
	})
	t.OnNotification(MethodInsertEnter, func(_ string, params json.RawMessage) {
		var p InsertEnterParams
		if json.Unmarshal(params, &p) == nil {
			h.OnInsertEnter(p.Bufnr)
		}
	})
	t.OnNotification(MethodInsertLeave, func(_ string, _ json.RawMessage) {
		h.OnInsertLeave()
	})
	t.OnNotification(MethodTextChangedI, func(_ string, params json.RawMessage) {
		var p TextChangedParams
		if json.Unmarshal(params, &p) == nil {
			h.OnTextChangedI(p.Bufnr, p.Info)
		}
	})
	t.OnNotification(MethodTextChangedP, func(_ string, params json.RawMessage) {
		var p TextChangedParams
		if json.Unmarshal(params, &p) == nil {
			h.OnTextChangedP(p.Bufnr, p.Info)
		}
	})
	t.OnNotification(MethodCompleteDone, func(_ string, params json.RawMessage) {
		var p CompleteDoneParams
		if json.Unmarshal(params, &p) == nil {
			h.OnCompleteDone(p.Item)
		}
	})
	t.OnNotification(MethodMenuPopupChanged, func(_ string, params json.RawMessage) {
		var ev PopupChangeEvent
		if json.Unmarshal(params, &ev) == nil {
			h.OnMenuPopupChanged(ev)
		}
	})
	t.OnNotification(MethodConfigChanged, func(_ string, _ json.RawMessage) {
		h.OnConfigChanged()
	})
}
