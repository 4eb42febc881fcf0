package completion

import (
	"context"

	"github.com/dshills/nvcomplete/internal/editor"
)

// Result is one source's answer to a completion request.
type Result struct {
	// Items are the produced candidates.
	Items []*Item
	// IsIncomplete marks the set as a partial view that must be
	// re-queried when the prefix extends.
	IsIncomplete bool
}

// Source is the provider capability interface the coordinator consumes.
//
// DoComplete and Resolve must observe ctx cancellation and stop
// emitting once it fires; cancellation is normal termination, not an
// error.
type Source interface {
	// Name identifies the source.
	Name() string

	// Priority orders sources; higher runs and ranks first.
	Priority() int

	// ShouldComplete reports whether the source applies to the request.
	ShouldComplete(opt *editor.CompleteOption) bool

	// Triggers returns trigger strings for the filetype; a prefix
	// ending in one of them starts a session regardless of word rules.
	Triggers(filetype string) []string

	// DoComplete produces candidates for the request.
	DoComplete(ctx context.Context, opt *editor.CompleteOption, rec *Recency) (*Result, error)

	// ShouldCommit reports whether typing ch over a highlighted item
	// accepts it.
	ShouldCommit(item *Item, ch string) bool

	// Resolve fills in documentation for an item.
	Resolve(ctx context.Context, item *Item) (*Item, error)

	// OnCompleteDone runs the source's post-accept work.
	OnCompleteDone(ctx context.Context, item *Item, opt *editor.CompleteOption) error
}

// SourceSet is the registry view the coordinator queries.
type SourceSet interface {
	// Sources returns all sources ordered by priority, highest first.
	Sources() []Source

	// ByName looks up a source.
	ByName(name string) (Source, bool)
}
