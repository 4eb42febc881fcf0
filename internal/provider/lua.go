package provider

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/nvcomplete/internal/completion"
	"github.com/dshills/nvcomplete/internal/editor"
)

// defaultLuaPriority applies to user sources that don't declare one.
const defaultLuaPriority = 50

// LuaSource is a user-defined completion source loaded from a Lua
// chunk. The chunk must return a table:
//
//	return {
//	  name = "mysource",
//	  priority = 60,                 -- optional
//	  triggers = { "." },            -- optional
//	  commit_characters = { "(" },   -- optional
//	  complete = function(opt)       -- required
//	    return { "word", { word = "other", menu = "[my]" } }
//	  end,
//	  resolve = function(item)       -- optional
//	    return { info = "docs for " .. item.word }
//	  end,
//	}
//
// One Lua state backs each source; calls are serialized on it.
type LuaSource struct {
	mu sync.Mutex
	L  *lua.LState

	name        string
	priority    int
	triggers    []string
	commitChars []string
	completeFn  *lua.LFunction
	resolveFn   *lua.LFunction
}

// LoadLuaSource loads a source definition from a Lua file.
func LoadLuaSource(path string) (*LuaSource, error) {
	L := lua.NewState()

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("loading lua source %s: %w", path, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("lua source %s: chunk must return a table", path)
	}

	src := &LuaSource{L: L, priority: defaultLuaPriority}

	if name, ok := tableString(tbl, "name"); ok {
		src.name = name
	} else {
		L.Close()
		return nil, fmt.Errorf("lua source %s: missing name", path)
	}
	if prio, ok := tableInt(tbl, "priority"); ok {
		src.priority = prio
	}
	src.triggers = tableStrings(tbl, "triggers")
	src.commitChars = tableStrings(tbl, "commit_characters")

	if fn, ok := tbl.RawGetString("complete").(*lua.LFunction); ok {
		src.completeFn = fn
	} else {
		L.Close()
		return nil, fmt.Errorf("lua source %s: missing complete function", path)
	}
	if fn, ok := tbl.RawGetString("resolve").(*lua.LFunction); ok {
		src.resolveFn = fn
	}

	return src, nil
}

// Close releases the Lua state.
func (s *LuaSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}

// Name implements completion.Source.
func (s *LuaSource) Name() string { return s.name }

// Priority implements completion.Source.
func (s *LuaSource) Priority() int { return s.priority }

// ShouldComplete implements completion.Source.
func (s *LuaSource) ShouldComplete(*editor.CompleteOption) bool { return true }

// Triggers implements completion.Source.
func (s *LuaSource) Triggers(string) []string { return s.triggers }

// DoComplete calls the chunk's complete function with the option.
func (s *LuaSource) DoComplete(ctx context.Context, opt *editor.CompleteOption, _ *completion.Recency) (*completion.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	optTbl := s.L.NewTable()
	s.L.SetField(optTbl, "bufnr", lua.LNumber(opt.Bufnr))
	s.L.SetField(optTbl, "linenr", lua.LNumber(opt.Linenr))
	s.L.SetField(optTbl, "col", lua.LNumber(opt.Col))
	s.L.SetField(optTbl, "line", lua.LString(opt.Line))
	s.L.SetField(optTbl, "filetype", lua.LString(opt.Filetype))
	s.L.SetField(optTbl, "input", lua.LString(opt.Input))

	if err := s.L.CallByParam(lua.P{Fn: s.completeFn, NRet: 1, Protect: true}, optTbl); err != nil {
		return nil, fmt.Errorf("lua source %s: %w", s.name, err)
	}

	ret := s.L.Get(-1)
	s.L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return &completion.Result{}, nil
	}

	var items []*completion.Item
	tbl.ForEach(func(_, value lua.LValue) {
		if item := luaItem(value); item != nil {
			items = append(items, item)
		}
	})

	incomplete := false
	if v, ok := tableBool(tbl, "is_incomplete"); ok {
		incomplete = v
	}

	return &completion.Result{Items: items, IsIncomplete: incomplete}, nil
}

// ShouldCommit implements completion.Source via commit_characters.
func (s *LuaSource) ShouldCommit(_ *completion.Item, ch string) bool {
	for _, cc := range s.commitChars {
		if cc == ch {
			return true
		}
	}
	return false
}

// Resolve calls the chunk's resolve function, when defined.
func (s *LuaSource) Resolve(ctx context.Context, item *completion.Item) (*completion.Item, error) {
	if s.resolveFn == nil {
		return item, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	itemTbl := s.L.NewTable()
	s.L.SetField(itemTbl, "word", lua.LString(item.Word))
	s.L.SetField(itemTbl, "abbr", lua.LString(item.Abbr))
	s.L.SetField(itemTbl, "kind", lua.LString(item.Kind))

	if err := s.L.CallByParam(lua.P{Fn: s.resolveFn, NRet: 1, Protect: true}, itemTbl); err != nil {
		return nil, fmt.Errorf("lua source %s resolve: %w", s.name, err)
	}

	ret := s.L.Get(-1)
	s.L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return item, nil
	}

	resolved := *item
	if docs, ok := tableString(tbl, "documentation"); ok {
		resolved.Documentation = docs
	}
	if info, ok := tableString(tbl, "info"); ok {
		resolved.Info = info
	}
	return &resolved, nil
}

// OnCompleteDone implements completion.Source.
func (s *LuaSource) OnCompleteDone(context.Context, *completion.Item, *editor.CompleteOption) error {
	return nil
}

// luaItem converts one entry of a complete() result: either a plain
// word string or an item table.
func luaItem(value lua.LValue) *completion.Item {
	switch v := value.(type) {
	case lua.LString:
		return &completion.Item{Word: string(v)}
	case *lua.LTable:
		word, _ := tableString(v, "word")
		if word == "" {
			return nil
		}
		item := &completion.Item{Word: word}
		if s, ok := tableString(v, "abbr"); ok {
			item.Abbr = s
		}
		if s, ok := tableString(v, "menu"); ok {
			item.Menu = s
		}
		if s, ok := tableString(v, "kind"); ok {
			item.Kind = s
		}
		if s, ok := tableString(v, "info"); ok {
			item.Info = s
		}
		if b, ok := tableBool(v, "dup"); ok {
			item.Dup = b
		}
		if b, ok := tableBool(v, "preselect"); ok {
			item.Preselect = b
		}
		if b, ok := tableBool(v, "snippet"); ok && b {
			item.MarkSnippet()
		}
		return item
	default:
		return nil
	}
}

// tableString reads a string field from a Lua table.
func tableString(t *lua.LTable, key string) (string, bool) {
	if v, ok := t.RawGetString(key).(lua.LString); ok {
		return string(v), true
	}
	return "", false
}

// tableInt reads an integer field from a Lua table.
func tableInt(t *lua.LTable, key string) (int, bool) {
	if v, ok := t.RawGetString(key).(lua.LNumber); ok {
		return int(v), true
	}
	return 0, false
}

// tableBool reads a boolean field from a Lua table.
func tableBool(t *lua.LTable, key string) (bool, bool) {
	if v, ok := t.RawGetString(key).(lua.LBool); ok {
		return bool(v), true
	}
	return false, false
}

// tableStrings reads a list-of-strings field from a Lua table.
func tableStrings(t *lua.LTable, key string) []string {
	tbl, ok := t.RawGetString(key).(*lua.LTable)
	if !ok {
		return nil
	}
	var out []string
	tbl.ForEach(func(_, value lua.LValue) {
		if s, ok := value.(lua.LString); ok {
			out = append(out, string(s))
		}
	})
	return out
}
