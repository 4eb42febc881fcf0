package completion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dshills/nvcomplete/internal/config"
	"github.com/dshills/nvcomplete/internal/editor"
)

// fakeSet is a fixed source list.
type fakeSet struct {
	sources []Source
}

func (f *fakeSet) Sources() []Source { return f.sources }
func (f *fakeSet) ByName(name string) (Source, bool) {
	for _, s := range f.sources {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// trigScripted adds trigger characters to scriptedSource.
type trigScripted struct {
	scriptedSource
	trigs []string
}

func (s *trigScripted) Triggers(string) []string { return s.trigs }

// commitScripted accepts on a dot.
type commitScripted struct {
	scriptedSource
}

func (s *commitScripted) ShouldCommit(_ *Item, ch string) bool { return ch == "." }

type popupCall struct {
	col       int
	rows      []editor.Item
	preselect int
}

type teardownCall struct {
	completeopt string
	unmap       bool
}

// fakeBridge records every editor command.
type fakeBridge struct {
	mu sync.Mutex

	platform editor.Platform
	opt      *editor.CompleteOption
	optErr   error
	tick     int

	shows        []popupCall
	teardowns    []teardownCall
	completeopts []string
	mapCalls     int
	floatShows   []string
	floatCloses  int
	lines        map[int]string
	cursors      [][2]int
	messages     []string
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{lines: make(map[int]string)}
}

func (b *fakeBridge) Platform() editor.Platform { return b.platform }

func (b *fakeBridge) PopupShow(col int, rows []editor.Item, preselect int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shows = append(b.shows, popupCall{col: col, rows: rows, preselect: preselect})
	return nil
}

func (b *fakeBridge) Teardown(completeopt string, unmap bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardowns = append(b.teardowns, teardownCall{completeopt: completeopt, unmap: unmap})
	return nil
}

func (b *fakeBridge) SetCompleteOpt(value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completeopts = append(b.completeopts, value)
	return nil
}

func (b *fakeBridge) MapNumberSelect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mapCalls++
	return nil
}

func (b *fakeBridge) SetLine(lnum int, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[lnum] = text
	return nil
}

func (b *fakeBridge) SetCursor(lnum, col int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursors = append(b.cursors, [2]int{lnum, col})
	return nil
}

func (b *fakeBridge) FloatShow(docs, filetype string, _ editor.PopupChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.floatShows = append(b.floatShows, filetype+":"+docs)
	return nil
}

func (b *fakeBridge) FloatClose() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.floatCloses++
	return nil
}

func (b *fakeBridge) ShowMessage(msg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	return nil
}

func (b *fakeBridge) GetCompleteOption(context.Context) (*editor.CompleteOption, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.optErr != nil {
		return nil, b.optErr
	}
	opt := *b.opt
	return &opt, nil
}

func (b *fakeBridge) ChangedTick(context.Context, int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tick, nil
}

func (b *fakeBridge) showCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.shows)
}

func (b *fakeBridge) lastShow() popupCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shows[len(b.shows)-1]
}

func (b *fakeBridge) teardownCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.teardowns)
}

func newTestCoordinator(cfg *config.Config, bridge *fakeBridge, sources ...Source) *Coordinator {
	return New(bridge, &fakeSet{sources: sources}, config.NewStore(cfg))
}

// startWordSession drives the S1 flow: type 'f' on line "f".
func startWordSession(t *testing.T, c *Coordinator, bridge *fakeBridge) {
	t.Helper()
	c.OnInsertCharPre("f")
	c.OnTextChangedI(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 2, Pre: "f", Changedtick: 10, Filetype: "go",
	})
	waitUntil(t, "initial popup", func() bool { return bridge.showCount() >= 1 })
}

func s1Option() *editor.CompleteOption {
	return &editor.CompleteOption{
		Bufnr: 1, Linenr: 1, Col: 0, Colnr: 2,
		Line: "f", Filetype: "go", Input: "f",
	}
}

func rowWords(call popupCall) map[string]bool {
	words := make(map[string]bool)
	for _, r := range call.rows {
		words[r.Word] = true
	}
	return words
}

func TestScenarioPlainWordTrigger(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &scriptedSource{name: "mock", items: []string{"foo", "fat", "bar"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)

	if !c.Activated() {
		t.Error("session should be active")
	}
	show := bridge.lastShow()
	if show.col != 0 {
		t.Errorf("popup col = %d, want 0", show.col)
	}
	words := rowWords(show)
	if !words["foo"] || !words["fat"] {
		t.Errorf("items filtered by input missing: %v", words)
	}
	if words["bar"] {
		t.Error("non-matching item shown")
	}

	bridge.mu.Lock()
	opts := append([]string(nil), bridge.completeopts...)
	bridge.mu.Unlock()
	if len(opts) == 0 || opts[0] != "noselect,menuone" {
		t.Errorf("completeopt = %v", opts)
	}
}

func TestScenarioResumeOnExtension(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &scriptedSource{name: "mock", items: []string{"foo", "fat"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)

	c.OnInsertCharPre("o")
	c.OnTextChangedP(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 3, Pre: "fo", Changedtick: 11, Filetype: "go",
	})

	waitUntil(t, "narrowed popup", func() bool { return bridge.showCount() >= 2 })

	words := rowWords(bridge.lastShow())
	if !words["foo"] || words["fat"] {
		t.Errorf("narrowed items wrong: %v", words)
	}
	if src.calls.Load() != 1 {
		t.Errorf("complete provider re-queried on local refilter: %d calls", src.calls.Load())
	}
}

func TestScenarioWhitespaceCancels(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &scriptedSource{name: "mock", items: []string{"foo"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)

	c.OnInsertCharPre(" ")
	c.OnTextChangedP(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 4, Pre: "f ", Changedtick: 11, Filetype: "go",
	})

	if c.Activated() {
		t.Error("whitespace must stop the session")
	}
	if bridge.teardownCount() == 0 {
		t.Error("teardown not sent to editor")
	}
}

func TestScenarioIndentChangeCancels(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = &editor.CompleteOption{
		Bufnr: 1, Linenr: 1, Col: 2, Colnr: 6,
		Line: "  foo", Filetype: "go", Input: "foo",
	}
	bridge.tick = 10
	src := &scriptedSource{name: "mock", items: []string{"food"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	c.OnInsertCharPre("o")
	c.OnTextChangedI(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 6, Pre: "  foo", Changedtick: 10, Filetype: "go",
	})
	waitUntil(t, "popup", func() bool { return bridge.showCount() >= 1 })

	c.OnTextChangedP(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 8, Pre: "    foo", Changedtick: 11, Filetype: "go",
	})

	if c.Activated() {
		t.Error("indent change must stop the session")
	}
}

func TestScenarioSelfInducedEventIgnored(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 11
	src := &scriptedSource{name: "mock", items: []string{"foo"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)
	shows := bridge.showCount()

	// The editor reports a change bearing the tick recorded at show.
	c.OnInsertCharPre("x")
	c.OnTextChangedP(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 5, Pre: "foo", Changedtick: 11, Filetype: "go",
	})

	time.Sleep(30 * time.Millisecond)
	if !c.Activated() {
		t.Error("self-induced event must not change state")
	}
	if bridge.showCount() != shows {
		t.Error("self-induced event must not re-filter")
	}
	c.mu.Lock()
	got := c.session.Input()
	c.mu.Unlock()
	if got != "f" {
		t.Errorf("input changed to %q", got)
	}
}

func TestScenarioCommitCharacter(t *testing.T) {
	cfg := config.Default()
	cfg.AcceptSuggestionOnCommitCharacter = true

	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &commitScripted{scriptedSource{name: "mock", items: []string{"foo"}}}
	c := newTestCoordinator(cfg, bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)

	c.OnMenuPopupChanged(editor.PopupChangeEvent{
		CompletedItem: editor.Item{Word: "foo", UserData: `{"nvcomplete":{"source":"mock"}}`},
	})

	c.OnInsertCharPre(".")
	c.OnTextChangedI(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 5, Pre: "foo.", Changedtick: 12, Filetype: "go",
	})

	if c.Activated() {
		t.Error("commit character must stop the session")
	}
	bridge.mu.Lock()
	line := bridge.lines[1]
	cursors := append([][2]int(nil), bridge.cursors...)
	bridge.mu.Unlock()
	if line != "foo." {
		t.Errorf("line = %q, want %q", line, "foo.")
	}
	if len(cursors) != 1 || cursors[0] != [2]int{1, 5} {
		t.Errorf("cursor = %v, want [1 5]", cursors)
	}
}

func TestStopIdempotent(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &scriptedSource{name: "mock", items: []string{"foo"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)

	c.Stop()
	if c.Activated() {
		t.Fatal("Stop must deactivate")
	}
	c.mu.Lock()
	if c.session != nil || c.currentItem != nil {
		t.Error("Stop must clear session and current item")
	}
	c.mu.Unlock()

	n := bridge.teardownCount()
	c.Stop()
	if bridge.teardownCount() != n {
		t.Error("second Stop must be a no-op")
	}
}

func TestSingleSessionInvariant(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &trigScripted{
		scriptedSource: scriptedSource{name: "mock", items: []string{"foo"}},
		trigs:          []string{"."},
	}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)

	c.mu.Lock()
	first := c.session
	c.mu.Unlock()

	// A trigger character while active restarts with a new session.
	bridge.mu.Lock()
	bridge.opt = &editor.CompleteOption{
		Bufnr: 1, Linenr: 1, Col: 4, Colnr: 5,
		Line: "foo.", Filetype: "go", Input: "",
	}
	bridge.mu.Unlock()

	c.OnInsertCharPre(".")
	c.OnTextChangedI(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 5, Pre: "foo.", Changedtick: 12, Filetype: "go",
	})

	waitUntil(t, "restart", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.session != nil && c.session != first
	})

	if !first.Cancelled() {
		t.Error("starting a new session must dispose the previous one")
	}
}

func TestInsertLeaveGoesIdleImmediately(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &scriptedSource{name: "mock", items: []string{"foo"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)

	c.OnInsertLeave()
	if c.Activated() {
		t.Error("coordinator must be idle right after InsertLeave")
	}
}

func TestNoTriggerWithoutFreshInsert(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	src := &scriptedSource{name: "mock", items: []string{"foo"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	// Text changed without a preceding InsertCharPre: editor-induced.
	c.OnTextChangedI(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 2, Pre: "f", Changedtick: 10, Filetype: "go",
	})

	time.Sleep(30 * time.Millisecond)
	if c.Activated() || bridge.showCount() != 0 {
		t.Error("no session without a user keystroke")
	}
}

func TestAllSourcesFailedStops(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &scriptedSource{name: "mock", err: errors.New("backend down")}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	c.OnInsertCharPre("f")
	c.OnTextChangedI(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 2, Pre: "f", Changedtick: 10, Filetype: "go",
	})

	waitUntil(t, "failure teardown", func() bool { return !c.Activated() && bridge.teardownCount() >= 1 })
	if bridge.showCount() != 0 {
		t.Error("popup must not show when every source failed")
	}
}

func TestCommandLineBufferNeverPopups(t *testing.T) {
	bridge := newFakeBridge()
	opt := s1Option()
	opt.URI = "file:///tmp/%5BCommand%20Line%5D"
	bridge.opt = opt
	src := &scriptedSource{name: "mock", items: []string{"foo"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	c.OnInsertCharPre("f")
	c.OnTextChangedI(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 2, Pre: "f", Changedtick: 10, Filetype: "go",
	})

	time.Sleep(30 * time.Millisecond)
	if c.Activated() || bridge.showCount() != 0 {
		t.Error("command-line buffers must never show the popup")
	}
}

func TestSelectionResolvesDocumentation(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &scriptedSource{name: "mock", items: []string{"foo"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)

	c.OnMenuPopupChanged(editor.PopupChangeEvent{
		CompletedItem: editor.Item{
			Word:     "foo",
			Info:     "a plain description.",
			UserData: `{"nvcomplete":{"source":"mock"}}`,
		},
	})

	waitUntil(t, "float", func() bool {
		bridge.mu.Lock()
		defer bridge.mu.Unlock()
		return len(bridge.floatShows) == 1
	})

	bridge.mu.Lock()
	got := bridge.floatShows[0]
	bridge.mu.Unlock()
	if got != "txt:a plain description." {
		t.Errorf("float = %q", got)
	}
}

func TestCompleteDoneRecordsRecency(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &scriptedSource{name: "mock", items: []string{"foo"}}
	cfg := config.Default()
	cfg.PostCommitWait = 5
	c := newTestCoordinator(cfg, bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)

	// Popup inserted the word; pretext now ends with it.
	c.OnTextChangedP(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 4, Pre: "foo", Changedtick: 12, Filetype: "go",
	})

	c.OnCompleteDone(editor.Item{Word: "foo", UserData: `{"nvcomplete":{"source":"mock"}}`})

	waitUntil(t, "recency recorded", func() bool {
		_, ok := c.rec.LastSeen(1, "foo")
		return ok
	})
	waitUntil(t, "stopped", func() bool { return !c.Activated() })
}

func TestCompleteDoneEmptyItemJustStops(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &scriptedSource{name: "mock", items: []string{"foo"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)

	c.OnCompleteDone(editor.Item{})
	if c.Activated() {
		t.Error("empty CompleteDone must stop immediately")
	}
	if _, ok := c.rec.LastSeen(1, ""); ok {
		t.Error("no recency for empty commit")
	}
}

func TestNumberSelectMappingLifecycle(t *testing.T) {
	cfg := config.Default()
	cfg.NumberSelect = true

	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &scriptedSource{name: "mock", items: []string{"foo"}}
	c := newTestCoordinator(cfg, bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)

	bridge.mu.Lock()
	mapped := bridge.mapCalls
	bridge.mu.Unlock()
	if mapped != 1 {
		t.Fatalf("map calls = %d, want 1", mapped)
	}

	c.Stop()
	bridge.mu.Lock()
	td := bridge.teardowns[len(bridge.teardowns)-1]
	bridge.mu.Unlock()
	if !td.unmap {
		t.Error("teardown must unmap number select")
	}
}

func TestStartErrorSurfacesMessage(t *testing.T) {
	bridge := newFakeBridge()
	bridge.optErr = errors.New("rpc broke")
	src := &scriptedSource{name: "mock", items: []string{"foo"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	c.OnInsertCharPre("f")
	c.OnTextChangedI(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 2, Pre: "f", Changedtick: 10, Filetype: "go",
	})

	waitUntil(t, "user message", func() bool {
		bridge.mu.Lock()
		defer bridge.mu.Unlock()
		return len(bridge.messages) == 1
	})

	bridge.mu.Lock()
	msg := bridge.messages[0]
	bridge.mu.Unlock()
	if msg != "Complete error: rpc broke" {
		t.Errorf("message = %q", msg)
	}
	if c.Activated() {
		t.Error("failed start must leave the coordinator idle")
	}
}

func TestCursorMovedBeforeStartStops(t *testing.T) {
	bridge := newFakeBridge()
	bridge.opt = s1Option()
	bridge.tick = 10
	src := &scriptedSource{name: "mock", items: []string{"foo"}}
	c := newTestCoordinator(config.Default(), bridge, src)
	defer c.Shutdown()

	startWordSession(t, c, bridge)

	// Backspace to the session start column: col-1 == option.col.
	c.OnInsertCharPre("\b")
	c.OnTextChangedI(1, editor.InsertChange{
		Bufnr: 1, Lnum: 1, Col: 1, Pre: "", Changedtick: 11, Filetype: "go",
	})

	if c.Activated() {
		t.Error("cursor at/before session start must stop")
	}
}
