package completion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/nvcomplete/internal/config"
	"github.com/dshills/nvcomplete/internal/editor"
	"github.com/dshills/nvcomplete/internal/logging"
)

// Session owns one in-flight completion attempt: its immutable option
// snapshot, the providers it queries, their result sets, the live
// input prefix, and a cancellation token covering every provider call.
type Session struct {
	id     string
	opt    *editor.CompleteOption
	cfg    *config.Config
	rec    *Recency
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// onResults fires once after the first provider completes (the
	// early popup) and again when the last one finishes, if later.
	onResults func(s *Session, final bool)

	mu         sync.Mutex
	input      string
	results    []*sourceResult
	pending    int
	firstFired bool
	tick       int
	tickValid  bool
}

// sourceResult is one provider's contribution to the session.
type sourceResult struct {
	source       Source
	items        []*Item
	isIncomplete bool
	err          error
	done         bool
}

// NewSession creates a session over the given sources. The option and
// config are snapshots; later config reloads do not affect a session
// in flight.
func NewSession(opt *editor.CompleteOption, sources []Source, cfg *config.Config, rec *Recency, logger *logging.Logger, onResults func(*Session, bool)) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	results := make([]*sourceResult, len(sources))
	for i, src := range sources {
		results[i] = &sourceResult{source: src}
	}

	return &Session{
		id:        id,
		opt:       opt,
		cfg:       cfg,
		rec:       rec,
		logger:    logger.WithSession(id),
		ctx:       ctx,
		cancel:    cancel,
		onResults: onResults,
		input:     opt.Input,
		results:   results,
		pending:   len(sources),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Option returns the immutable option snapshot.
func (s *Session) Option() *editor.CompleteOption { return s.opt }

// Config returns the config snapshot the session started with.
func (s *Session) Config() *config.Config { return s.cfg }

// Start launches every provider query. Each provider runs under its
// own timeout; a provider whose timeout expires contributes no items,
// since DoComplete returns its result only once, and any items it had
// gathered by then are not kept. A provider error drops that provider
// and keeps the rest.
func (s *Session) Start() {
	for _, res := range s.results {
		go s.runSource(res)
	}
}

func (s *Session) runSource(res *sourceResult) {
	ctx := s.ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Timeout)*time.Millisecond)
		defer cancel()
	}

	result, err := res.source.DoComplete(ctx, s.opt, s.rec)

	if s.Cancelled() {
		return
	}

	s.mu.Lock()
	res.done = true
	s.pending--
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		// Deadline expiry keeps nothing from this provider but is not
		// fatal to the session.
		res.err = err
		s.logger.Warn("source %s failed: %v", res.source.Name(), err)
	case result != nil:
		for _, it := range result.Items {
			it.TagSource(res.source.Name())
			it.Priority = res.source.Priority()
		}
		res.items = result.Items
		res.isIncomplete = result.IsIncomplete
	}

	fire := false
	final := s.pending == 0
	if !s.firstFired {
		s.firstFired = true
		fire = true
	} else if final {
		fire = true
	}
	cb := s.onResults
	s.mu.Unlock()

	if fire && cb != nil {
		cb(s, final)
	}
}

// Requery re-runs every incomplete provider with the current input.
// Complete providers keep their cached results. Returns
// ErrSessionDisposed if the session was cancelled meanwhile.
func (s *Session) Requery() error {
	s.mu.Lock()
	search := s.input
	var incomplete []*sourceResult
	for _, res := range s.results {
		if res.done && res.err == nil && res.isIncomplete {
			incomplete = append(incomplete, res)
		}
	}
	s.mu.Unlock()

	if len(incomplete) == 0 {
		return nil
	}

	opt := *s.opt
	opt.Input = search

	var wg sync.WaitGroup
	for _, res := range incomplete {
		wg.Add(1)
		go func(res *sourceResult) {
			defer wg.Done()

			ctx := s.ctx
			if s.cfg.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Timeout)*time.Millisecond)
				defer cancel()
			}

			result, err := res.source.DoComplete(ctx, &opt, s.rec)
			if err != nil || result == nil || s.Cancelled() {
				return
			}

			for _, it := range result.Items {
				it.TagSource(res.source.Name())
				it.Priority = res.source.Priority()
			}

			s.mu.Lock()
			res.items = result.Items
			res.isIncomplete = result.IsIncomplete
			s.mu.Unlock()
		}(res)
	}
	wg.Wait()

	if s.Cancelled() {
		return ErrSessionDisposed
	}
	return nil
}

// Input returns the live prefix.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput updates the live prefix.
func (s *Session) SetInput(input string) {
	s.mu.Lock()
	s.input = input
	s.mu.Unlock()
}

// IsCompleting reports whether any provider is still running.
func (s *Session) IsCompleting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending > 0
}

// HasIncomplete reports whether any provider returned a partial view.
func (s *Session) HasIncomplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range s.results {
		if res.done && res.err == nil && res.isIncomplete {
			return true
		}
	}
	return false
}

// AllFailed reports whether every finished provider errored.
func (s *Session) AllFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending > 0 {
		return false
	}
	for _, res := range s.results {
		if res.err == nil {
			return false
		}
	}
	return true
}

// Items returns the union of provider results in priority order.
func (s *Session) Items() []*Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Item
	for _, res := range s.results {
		if res.err == nil {
			out = append(out, res.items...)
		}
	}
	return out
}

// SetChangedTick records the buffer tick captured at popup-show time.
func (s *Session) SetChangedTick(tick int) {
	s.mu.Lock()
	s.tick = tick
	s.tickValid = true
	s.mu.Unlock()
}

// ChangedTick returns the recorded tick; ok is false before any show.
func (s *Session) ChangedTick() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick, s.tickValid
}

// Cancelled reports whether the session token has fired.
func (s *Session) Cancelled() bool {
	return s.ctx.Err() != nil
}

// Cancel fires the session token, stopping all in-flight provider
// calls. Idempotent.
func (s *Session) Cancel() {
	s.cancel()
}

// Context exposes the session token for provider calls.
func (s *Session) Context() context.Context {
	return s.ctx
}
