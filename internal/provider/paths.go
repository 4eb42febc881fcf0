package provider

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/nvcomplete/internal/completion"
	"github.com/dshills/nvcomplete/internal/editor"
)

// pathsPriority keeps path completion above plain words.
const pathsPriority = 30

// PathsSource completes filesystem paths when the prefix looks like
// one. Directories get a trailing separator, and typing a slash
// commits a selected directory candidate.
type PathsSource struct {
	// Root anchors relative paths; defaults to the process working
	// directory when empty.
	Root string
}

// NewPathsSource creates a path source rooted at root.
func NewPathsSource(root string) *PathsSource {
	return &PathsSource{Root: root}
}

// Name implements completion.Source.
func (p *PathsSource) Name() string { return "paths" }

// Priority implements completion.Source.
func (p *PathsSource) Priority() int { return pathsPriority }

// ShouldComplete implements completion.Source.
func (p *PathsSource) ShouldComplete(opt *editor.CompleteOption) bool {
	return pathPrefix(pretext(opt)) != ""
}

// Triggers implements completion.Source; a slash starts a session.
func (p *PathsSource) Triggers(string) []string { return []string{"/"} }

// DoComplete lists the directory named by the path under the cursor.
func (p *PathsSource) DoComplete(ctx context.Context, opt *editor.CompleteOption, _ *completion.Recency) (*completion.Result, error) {
	prefix := pathPrefix(pretext(opt))
	if prefix == "" {
		return &completion.Result{}, nil
	}

	dir, partial := filepath.Split(prefix)
	lookup := dir
	if !filepath.IsAbs(lookup) {
		root := p.Root
		if root == "" {
			root = "."
		}
		lookup = filepath.Join(root, lookup)
	}

	entries, err := os.ReadDir(lookup)
	if err != nil {
		// A nonexistent directory just means no candidates.
		return &completion.Result{}, nil
	}

	var items []*completion.Item
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name := entry.Name()
		if partial != "" && !strings.HasPrefix(name, partial) {
			continue
		}
		if partial == "" && strings.HasPrefix(name, ".") {
			continue
		}

		word := name
		kind := "F"
		if entry.IsDir() {
			word += string(filepath.Separator)
			kind = "D"
		}
		items = append(items, &completion.Item{
			Word:       word,
			Abbr:       word,
			Kind:       kind,
			FilterText: name,
		})
	}

	return &completion.Result{Items: items}, nil
}

// ShouldCommit implements completion.Source; a slash accepts a
// directory candidate.
func (p *PathsSource) ShouldCommit(item *completion.Item, ch string) bool {
	return ch == "/" && item.Kind == "D"
}

// Resolve implements completion.Source.
func (p *PathsSource) Resolve(_ context.Context, item *completion.Item) (*completion.Item, error) {
	return item, nil
}

// OnCompleteDone implements completion.Source.
func (p *PathsSource) OnCompleteDone(context.Context, *completion.Item, *editor.CompleteOption) error {
	return nil
}

// pretext returns the option's line up to the cursor.
func pretext(opt *editor.CompleteOption) string {
	end := opt.Colnr - 1
	if end < 0 {
		end = 0
	}
	if end > len(opt.Line) {
		end = len(opt.Line)
	}
	return opt.Line[:end]
}

// pathPrefix extracts a trailing path-like token from pre, or "".
func pathPrefix(pre string) string {
	start := len(pre)
	for start > 0 {
		c := pre[start-1]
		if c == ' ' || c == '\t' || c == '"' || c == '\'' || c == '(' || c == '<' || c == '=' {
			break
		}
		start--
	}
	token := pre[start:]
	if !strings.Contains(token, "/") {
		return ""
	}
	if !strings.HasPrefix(token, "/") && !strings.HasPrefix(token, "./") &&
		!strings.HasPrefix(token, "../") && !strings.HasPrefix(token, "~/") {
		return ""
	}
	if strings.HasPrefix(token, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		token = filepath.Join(home, token[2:])
		if strings.HasSuffix(pre, "/") {
			token += "/"
		}
	}
	return token
}
