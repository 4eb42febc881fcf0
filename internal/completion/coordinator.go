package completion

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dshills/nvcomplete/internal/config"
	"github.com/dshills/nvcomplete/internal/editor"
	"github.com/dshills/nvcomplete/internal/logging"
)

// Selection debounce intervals by bridge platform.
const (
	debounceNative = 100 * time.Millisecond
	debounceLegacy = 200 * time.Millisecond
)

// resolveTimeout bounds a single documentation resolve call.
const resolveTimeout = 2 * time.Second

// Bridge is the editor surface the coordinator drives. editor.Client
// satisfies it; tests substitute a fake.
type Bridge interface {
	Platform() editor.Platform
	PopupShow(col int, items []editor.Item, preselect int) error
	Teardown(completeopt string, unmapNumbers bool) error
	SetCompleteOpt(value string) error
	MapNumberSelect() error
	SetLine(lnum int, text string) error
	SetCursor(lnum, col int) error
	FloatShow(docs, filetype string, bounds editor.PopupChangeEvent) error
	FloatClose() error
	ShowMessage(msg string) error
	GetCompleteOption(ctx context.Context) (*editor.CompleteOption, error)
	ChangedTick(ctx context.Context, bufnr int) (int, error)
}

// Coordinator is the top-level completion state machine. It consumes
// classified editor events, owns the single live Session, and is the
// only component that writes editor state.
//
// All coordinator state is guarded by mu; asynchronous continuations
// re-acquire it and validate witnesses (session identity, input,
// keystroke timestamps) before acting.
type Coordinator struct {
	mu sync.Mutex

	store   *config.Store
	bridge  Bridge
	sources SourceSet
	rec     *Recency
	words   *WordTable
	logger  *logging.Logger

	classifier  *Classifier
	resolver    *Resolver
	selDebounce *Debouncer

	activated   bool
	session     *Session
	pretext     string
	currentItem *Item
	lastTick    int

	savedCompleteOpt string
	numberMapped     bool

	onConfigReload func()
}

// Option configures the coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l.WithComponent("coordinator")
	}
}

// WithRecency sets the recency map shared with sources.
func WithRecency(r *Recency) Option {
	return func(c *Coordinator) {
		c.rec = r
	}
}

// WithWordTable sets the word-character table.
func WithWordTable(w *WordTable) Option {
	return func(c *Coordinator) {
		c.words = w
	}
}

// WithSavedCompleteOpt sets the completeopt string restored on stop.
func WithSavedCompleteOpt(s string) Option {
	return func(c *Coordinator) {
		c.savedCompleteOpt = s
	}
}

// WithConfigReload sets the callback run on editor-initiated config
// change notifications.
func WithConfigReload(fn func()) Option {
	return func(c *Coordinator) {
		c.onConfigReload = fn
	}
}

// New creates a coordinator over the given bridge, sources, and
// config store.
func New(bridge Bridge, sources SourceSet, store *config.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:            store,
		bridge:           bridge,
		sources:          sources,
		words:            NewWordTable(),
		logger:           logging.Null,
		classifier:       NewClassifier(),
		resolver:         NewResolver(),
		savedCompleteOpt: "menu,preview",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rec == nil {
		c.rec = NewRecency()
	}

	interval := debounceNative
	if bridge.Platform() == editor.PlatformLegacy {
		interval = debounceLegacy
	}
	c.selDebounce = NewDebouncer(interval)

	return c
}

// Activated reports whether a session is live.
func (c *Coordinator) Activated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activated
}

// Classifier exposes the input classifier; tests use it to pin clocks.
func (c *Coordinator) Classifier() *Classifier {
	return c.classifier
}

// --- editor.Handler ---

// OnInsertCharPre records the typed character.
func (c *Coordinator) OnInsertCharPre(ch string) {
	c.mu.Lock()
	c.classifier.RecordInsertChar(ch)
	c.mu.Unlock()
}

// OnInsertEnter optionally triggers completion on entering insert mode.
func (c *Coordinator) OnInsertEnter(bufnr int) {
	cfg := c.store.Get()
	if !cfg.TriggerAfterInsertEnter || cfg.AutoTrigger != config.AutoTriggerAlways {
		return
	}
	go c.maybeTriggerFromCursor()
}

// OnInsertLeave stops the session when leaving insert mode.
func (c *Coordinator) OnInsertLeave() {
	c.mu.Lock()
	c.classifier.RecordInsertLeave()
	c.stopLocked()
	c.mu.Unlock()
}

// OnTextChangedI handles an insert-mode change with the popup hidden.
func (c *Coordinator) OnTextChangedI(bufnr int, info editor.InsertChange) {
	c.mu.Lock()

	c.pretext = info.Pre
	c.lastTick = info.Changedtick
	last := c.classifier.LatestInsert()
	c.classifier.ClearLastInsert()
	cfg := c.store.Get()

	if !c.activated || c.session == nil {
		if last == nil {
			c.mu.Unlock()
			return
		}
		if ShouldTrigger(info.Pre, info.Filetype, cfg, false, c.sources.Sources(), c.words) {
			c.mu.Unlock()
			go c.queryAndStart(info.Pre)
			return
		}
		c.mu.Unlock()
		return
	}

	sess := c.session
	opt := sess.Option()
	filetype := info.Filetype
	if filetype == "" {
		filetype = opt.Filetype
	}

	// Cursor moved to another line or before the session start column.
	if info.Lnum != opt.Linenr || info.Col-1 <= opt.Col {
		if ShouldTrigger(info.Pre, filetype, cfg, c.activated, c.sources.Sources(), c.words) {
			c.mu.Unlock()
			go c.queryAndStart(info.Pre)
			return
		}
		c.stopLocked()
		c.mu.Unlock()
		return
	}

	if c.tryCommitByCharLocked(cfg, last, info.Pre) {
		c.mu.Unlock()
		return
	}

	if ShouldTrigger(info.Pre, filetype, cfg, c.activated, c.sources.Sources(), c.words) {
		c.mu.Unlock()
		go c.queryAndStart(info.Pre)
		return
	}

	c.resumeLocked(false)
	c.mu.Unlock()
}

// OnTextChangedP handles an insert-mode change with the popup visible.
func (c *Coordinator) OnTextChangedP(bufnr int, info editor.InsertChange) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pretext = info.Pre

	if !c.activated || c.session == nil {
		return
	}

	sess := c.session
	c.lastTick = info.Changedtick

	// Ticks recorded at show time mark self-induced changes.
	if tick, ok := sess.ChangedTick(); ok && info.Changedtick == tick {
		return
	}

	opt := sess.Option()
	if leadingWhitespace(info.Pre) != leadingWhitespace(opt.Line) {
		c.stopLocked()
		return
	}

	last := c.classifier.LatestInsert()
	if last == nil {
		return
	}

	cfg := c.store.Get()
	filetype := info.Filetype
	if filetype == "" {
		filetype = opt.Filetype
	}
	if ShouldTrigger(info.Pre, filetype, cfg, c.activated, c.sources.Sources(), c.words) {
		go c.queryAndStart(info.Pre)
		return
	}

	c.resumeLocked(false)
}

// OnMenuPopupChanged tracks the highlighted row and schedules a
// debounced documentation resolve.
func (c *Coordinator) OnMenuPopupChanged(ev editor.PopupChangeEvent) {
	c.mu.Lock()
	if !c.activated {
		c.mu.Unlock()
		return
	}
	c.currentItem = ItemFromEditor(ev.CompletedItem)
	c.resolver.Cancel()
	c.mu.Unlock()

	c.selDebounce.Do(func() {
		c.onPumChange(ev)
	})
}

// OnCompleteDone handles the editor closing the popup, with the
// committed row when the user accepted one.
func (c *Coordinator) OnCompleteDone(row editor.Item) {
	c.mu.Lock()
	c.currentItem = nil
	c.resolver.Cancel()
	sess := c.session
	cfg := c.store.Get()
	charAt := c.classifier.InsertCharAt()
	leaveAt := c.classifier.InsertLeaveAt()
	c.mu.Unlock()

	if err := c.bridge.FloatClose(); err != nil {
		c.logger.Warn("float close: %v", err)
	}

	it := ItemFromEditor(row)
	if it == nil || sess == nil {
		c.Stop()
		return
	}

	go c.postCommit(sess, it, cfg, charAt, leaveAt)
}

// OnConfigChanged re-reads configuration without touching the session.
func (c *Coordinator) OnConfigChanged() {
	if c.onConfigReload != nil {
		c.onConfigReload()
	}
	c.logger.Debug("config changed")
}

// --- session lifecycle ---

// Trigger starts completion at the current cursor regardless of the
// automatic trigger policy (the manual Ctrl+Space path).
func (c *Coordinator) Trigger() {
	go func() {
		opt, err := c.bridge.GetCompleteOption(context.Background())
		if err != nil {
			c.startFailed(err)
			return
		}
		c.mu.Lock()
		c.startLocked(opt)
		c.mu.Unlock()
	}()
}

// Stop tears down the live session. Idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

// Shutdown stops the session and releases background resources.
func (c *Coordinator) Shutdown() {
	c.Stop()
	c.selDebounce.Stop()
	c.rec.Stop()
}

// maybeTriggerFromCursor queries the cursor option and starts a
// session when the trigger policy approves.
func (c *Coordinator) maybeTriggerFromCursor() {
	opt, err := c.bridge.GetCompleteOption(context.Background())
	if err != nil {
		c.logger.Warn("get_complete_option: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := c.store.Get()
	pre := pretextOf(opt)
	if !ShouldTrigger(pre, opt.Filetype, cfg, c.activated, c.sources.Sources(), c.words) {
		return
	}
	c.startLocked(opt)
}

// queryAndStart fetches a fresh option and starts a session with it.
// The trigger decision was made by the caller; after the await the
// pretext witness must still match or the start is abandoned.
func (c *Coordinator) queryAndStart(expectPretext string) {
	opt, err := c.bridge.GetCompleteOption(context.Background())
	if err != nil {
		c.startFailed(err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pretext != expectPretext {
		return
	}
	c.startLocked(opt)
}

// startLocked installs a new session for opt. Any previous session is
// disposed first. Caller holds mu.
func (c *Coordinator) startLocked(opt *editor.CompleteOption) {
	if opt == nil || isCommandLine(opt) {
		return
	}

	cfg := c.store.Get()
	c.pretext = pretextOf(opt)

	var chosen []Source
	if opt.Source != "" {
		src, ok := c.sources.ByName(opt.Source)
		if !ok {
			c.logger.Warn("%v: %s", ErrUnknownSource, opt.Source)
			return
		}
		chosen = []Source{src}
	} else {
		for _, s := range c.sources.Sources() {
			if s.ShouldComplete(opt) {
				chosen = append(chosen, s)
			}
		}
	}
	if len(chosen) == 0 {
		return
	}

	if c.session != nil {
		c.session.Cancel()
		c.session = nil
	}

	sess := NewSession(opt, chosen, cfg, c.rec, c.logger, func(s *Session, _ bool) {
		c.showCompletion(s)
	})
	c.session = sess
	c.activated = true

	if !cfg.KeepCompleteOpt {
		if err := c.bridge.SetCompleteOpt(ComposeCompleteOpt(cfg)); err != nil {
			c.logger.Error("set completeopt: %v", err)
			c.stopLocked()
			c.messageAsync("Complete error: " + err.Error())
			return
		}
	}

	c.logger.Debug("session %s started with %d sources input=%q", sess.ID(), len(chosen), opt.Input)
	sess.Start()
}

// stopLocked tears the session down and clears editor state as one
// batched notification. Idempotent. Caller holds mu.
func (c *Coordinator) stopLocked() {
	if !c.activated && c.session == nil {
		return
	}

	c.currentItem = nil
	c.activated = false
	if c.session != nil {
		c.session.Cancel()
		c.session = nil
	}
	c.resolver.Cancel()
	c.selDebounce.Flush()

	unmap := c.numberMapped
	c.numberMapped = false

	restore := ""
	if !c.store.Get().KeepCompleteOpt {
		restore = c.savedCompleteOpt
	}

	if err := c.bridge.Teardown(restore, unmap); err != nil {
		c.logger.Error("teardown: %v", err)
	}
}

// startFailed applies the start error policy: stop, one user-visible
// line, full detail in the log.
func (c *Coordinator) startFailed(err error) {
	c.logger.Error("completion start failed: %v", err)
	c.Stop()
	c.messageAsync("Complete error: " + err.Error())
}

func (c *Coordinator) messageAsync(msg string) {
	if err := c.bridge.ShowMessage(msg); err != nil {
		c.logger.Warn("show message: %v", err)
	}
}

// failSession logs an editor RPC failure and stops the session if it
// is still the live one.
func (c *Coordinator) failSession(sess *Session, err error) {
	c.logger.Error("editor rpc failed: %v", err)
	c.mu.Lock()
	if c.session == sess {
		c.stopLocked()
	}
	c.mu.Unlock()
}

// --- filter / resume ---

// resumeLocked applies the filter/resume rules for the current
// pretext. Caller holds mu.
func (c *Coordinator) resumeLocked(force bool) {
	sess := c.session
	if sess == nil {
		return
	}

	search, decision := decideResume(sess, c.pretext, force)
	switch decision {
	case resumeStop:
		c.stopLocked()
	case resumeIgnore:
	case resumeFilter:
		sess.SetInput(search)
		go c.showCompletion(sess)
	case resumeRequery:
		sess.SetInput(search)
		go c.requeryAndShow(sess, search, c.lastTick)
	}
}

// requeryAndShow waits for the document to be in sync, re-queries
// incomplete providers, and shows the result if still current.
func (c *Coordinator) requeryAndShow(sess *Session, search string, wantTick int) {
	tick, err := c.bridge.ChangedTick(context.Background(), sess.Option().Bufnr)
	if err != nil {
		c.failSession(sess, err)
		return
	}
	if tick != wantTick {
		// The document moved on; a newer event drives the next filter.
		return
	}

	if err := sess.Requery(); err != nil {
		return
	}

	c.mu.Lock()
	stale := c.session != sess || sess.Cancelled() || sess.Input() != search
	c.mu.Unlock()
	if stale {
		return
	}

	c.showCompletion(sess)
}

// showCompletion ranks the session's items and drives the popup.
// Runs off the coordinator goroutine; revalidates after each await.
func (c *Coordinator) showCompletion(sess *Session) {
	c.mu.Lock()
	if c.session != sess || sess.Cancelled() {
		c.mu.Unlock()
		return
	}

	cfg := sess.Config()
	opt := sess.Option()
	search := sess.Input()
	items := rankItems(sess.Items(), opt, search, cfg, c.rec)

	if len(items) == 0 {
		if !sess.IsCompleting() {
			if sess.AllFailed() {
				c.logger.Warn("all sources failed for session %s", sess.ID())
			}
			c.stopLocked()
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// Suspension point: stamp the show with the buffer tick so the
	// induced TextChangedP can be recognized as self-caused.
	tick, err := c.bridge.ChangedTick(context.Background(), opt.Bufnr)
	if err != nil {
		c.failSession(sess, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sess || sess.Cancelled() || sess.Input() != search {
		return
	}

	rows, preselect := BuildPopup(items, opt, cfg)
	if len(rows) == 0 {
		if !sess.IsCompleting() {
			c.stopLocked()
		}
		return
	}

	if NumberSelectActive(opt, cfg) && !c.numberMapped {
		if err := c.bridge.MapNumberSelect(); err != nil {
			c.logger.Warn("map number select: %v", err)
		} else {
			c.numberMapped = true
		}
	}

	if err := c.bridge.PopupShow(opt.Col, rows, preselect); err != nil {
		c.logger.Error("popup show: %v", err)
		c.stopLocked()
		return
	}
	sess.SetChangedTick(tick)
}

// --- commit / resolve ---

// tryCommitByCharLocked applies the commit-character rule. Returns
// true when the keystroke was consumed as an accept. Caller holds mu.
func (c *Coordinator) tryCommitByCharLocked(cfg *config.Config, last *LastInsert, pre string) bool {
	if !cfg.AcceptSuggestionOnCommitCharacter || last == nil || c.currentItem == nil || c.session == nil {
		return false
	}
	if last.Character == "" || !strings.HasSuffix(pre, last.Character) {
		return false
	}

	it := c.currentItem
	src, ok := c.sources.ByName(it.SourceName())
	if !ok || !src.ShouldCommit(it, last.Character) {
		return false
	}

	opt := c.session.Option()
	line := opt.Line
	col := clamp(opt.Col, 0, len(line))
	end := clamp(opt.Colnr-1, col, len(line))
	newLine := line[:col] + it.Word + last.Character + line[end:]

	c.stopLocked()

	if err := c.bridge.SetLine(opt.Linenr, newLine); err != nil {
		c.logger.Error("setline: %v", err)
		return true
	}
	if err := c.bridge.SetCursor(opt.Linenr, col+len(it.Word)+2); err != nil {
		c.logger.Error("cursor: %v", err)
	}
	return true
}

// onPumChange resolves documentation for the highlighted item after
// the selection debounce.
func (c *Coordinator) onPumChange(ev editor.PopupChangeEvent) {
	c.mu.Lock()
	if !c.activated || c.session == nil {
		c.mu.Unlock()
		return
	}
	cur := c.currentItem
	filetype := c.session.Option().Filetype
	c.mu.Unlock()

	if cur == nil {
		if err := c.bridge.FloatClose(); err != nil {
			c.logger.Warn("float close: %v", err)
		}
		return
	}

	src, ok := c.sources.ByName(cur.SourceName())
	if !ok {
		return
	}

	token := c.resolver.NewToken()
	rctx, cancel := context.WithTimeout(token, resolveTimeout)
	resolved, err := src.Resolve(rctx, cur)
	cancel()
	if err != nil {
		if token.Err() == nil {
			c.logger.Debug("resolve %s: %v", cur.Word, err)
		}
		return
	}
	if token.Err() != nil {
		return
	}
	if resolved == nil {
		resolved = cur
	}

	c.mu.Lock()
	live := c.activated && c.currentItem == cur
	c.mu.Unlock()
	if !live {
		if err := c.bridge.FloatClose(); err != nil {
			c.logger.Warn("float close: %v", err)
		}
		return
	}

	docs, docFiletype := docsFor(resolved, filetype)
	if docs == "" {
		if err := c.bridge.FloatClose(); err != nil {
			c.logger.Warn("float close: %v", err)
		}
		return
	}
	if err := c.bridge.FloatShow(docs, docFiletype, ev); err != nil {
		c.logger.Warn("float show: %v", err)
	}
}

// postCommit runs the post-accept sequence: resolve once more, wait
// out late text events, verify the inserted word survived, run the
// provider hook, and record recency. Always stops the session it was
// started for, unless a newer session took its place meanwhile.
func (c *Coordinator) postCommit(sess *Session, it *Item, cfg *config.Config, charAt, leaveAt time.Time) {
	defer func() {
		c.mu.Lock()
		if c.session == sess {
			c.stopLocked()
		}
		c.mu.Unlock()
	}()

	src, ok := c.sources.ByName(it.SourceName())
	if !ok {
		return
	}

	rctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	resolved, err := src.Resolve(rctx, it)
	cancel()
	if err == nil && resolved != nil {
		it = resolved
	}

	time.Sleep(time.Duration(cfg.PostCommitWait) * time.Millisecond)

	c.mu.Lock()
	moved := c.classifier.InsertCharAt() != charAt || c.classifier.InsertLeaveAt() != leaveAt
	pre := c.pretext
	c.mu.Unlock()
	if moved {
		return
	}
	if !strings.HasSuffix(pre, it.Word) {
		return
	}

	opt := sess.Option()
	dctx, dcancel := context.WithTimeout(context.Background(), resolveTimeout)
	if err := src.OnCompleteDone(dctx, it, opt); err != nil {
		c.logger.Warn("onCompleteDone %s: %v", src.Name(), err)
	}
	dcancel()

	c.rec.Touch(opt.Bufnr, it.Word)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
