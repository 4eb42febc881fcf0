// Package completion implements the completion coordinator: the
// session-level state machine that reacts to editor input events,
// fans queries out to source providers, filters and re-ranks results
// as the user types, drives the popup menu, and tears everything down
// on cancel or commit.
//
// The coordinator guarantees at most one live Session. All state is
// guarded by a single mutex; asynchronous continuations (provider
// results, resolve completions, post-commit timers) re-acquire it and
// validate re-entrancy witnesses before touching any state, so stale
// continuations never reach the editor.
package completion
