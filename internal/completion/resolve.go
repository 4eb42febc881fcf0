package completion

import (
	"context"
	"regexp"
	"sync"
)

// plainTextRe classifies provider info as plain prose rather than code.
var plainTextRe = regexp.MustCompile(`^[\w\s.,\t-]+$`)

// Resolver owns the cancellation token for documentation resolution.
// Each selection change cancels the prior resolve only; the session
// token is independent.
type Resolver struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewResolver creates an idle resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// NewToken cancels any in-flight resolve and returns a fresh token.
func (r *Resolver) NewToken() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	return ctx
}

// Cancel fires the current token, if any. Idempotent.
func (r *Resolver) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// docsFor computes the documentation text and its filetype for a
// resolved item. Resolved documentation wins; otherwise the item's
// info is classified as plain text or code by content.
func docsFor(item *Item, bufferFiletype string) (string, string) {
	if item == nil {
		return "", ""
	}
	if item.Documentation != "" {
		return item.Documentation, "markdown"
	}
	if item.Info == "" {
		return "", ""
	}
	if plainTextRe.MatchString(item.Info) {
		return item.Info, "txt"
	}
	return item.Info, bufferFiletype
}
