// Package config holds the completion engine configuration: typed
// options, TOML file loading, environment overrides, and live reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// AutoTrigger controls when completion starts automatically.
type AutoTrigger string

const (
	// AutoTriggerAlways starts completion on any word-character keystroke.
	AutoTriggerAlways AutoTrigger = "always"
	// AutoTriggerTrigger starts completion only on source trigger patterns.
	AutoTriggerTrigger AutoTrigger = "trigger"
	// AutoTriggerNone disables automatic completion.
	AutoTriggerNone AutoTrigger = "none"
)

// SortMethod controls the fallback ordering applied to filtered items.
type SortMethod string

const (
	// SortAlphabetical orders ties by word.
	SortAlphabetical SortMethod = "alphabetical"
	// SortByLength orders ties by word length, shortest first.
	SortByLength SortMethod = "length"
	// SortNone keeps provider order for ties.
	SortNone SortMethod = "none"
)

// Config contains every recognized option of the completion engine.
// Values are read concurrently by the coordinator; use Store to swap
// a Config atomically on reload.
type Config struct {
	AutoTrigger                       AutoTrigger `toml:"auto_trigger"`
	MinTriggerInputLength             int         `toml:"min_trigger_input_length"`
	AcceptSuggestionOnCommitCharacter bool        `toml:"accept_suggestion_on_commit_character"`
	NoSelect                          bool        `toml:"noselect"`
	NumberSelect                      bool        `toml:"number_select"`
	KeepCompleteOpt                   bool        `toml:"keep_completeopt"`
	EnablePreview                     bool        `toml:"enable_preview"`
	EnablePreselect                   bool        `toml:"enable_preselect"`
	LabelMaxLength                    int         `toml:"label_max_length"`
	MaxItemCount                      int         `toml:"max_item_count"`
	DisableKind                       bool        `toml:"disable_kind"`
	DisableMenu                       bool        `toml:"disable_menu"`
	DisableMenuShortcut               bool        `toml:"disable_menu_shortcut"`
	RemoveDuplicateItems              bool        `toml:"remove_duplicate_items"`
	LocalityBonus                     bool        `toml:"locality_bonus"`
	DefaultSortMethod                 SortMethod  `toml:"default_sort_method"`
	TriggerAfterInsertEnter           bool        `toml:"trigger_after_insert_enter"`
	Timeout                           int         `toml:"timeout"` // per-provider, milliseconds
	HighPrioritySourceLimit           int         `toml:"high_priority_source_limit"`
	LowPrioritySourceLimit            int         `toml:"low_priority_source_limit"`
	ASCIICharactersOnly               bool        `toml:"ascii_characters_only"`
	SnippetIndicator                  string      `toml:"snippet_indicator"`
	FixInsertedWord                   bool        `toml:"fix_inserted_word"`
	PreviewIsKeyword                  string      `toml:"preview_is_keyword"`
	PostCommitWait                    int         `toml:"post_commit_wait"` // milliseconds
	LogLevel                          string      `toml:"log_level"`
	LuaSources                        []string    `toml:"lua_sources"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		AutoTrigger:           AutoTriggerAlways,
		MinTriggerInputLength: 1,
		NoSelect:              true,
		EnablePreselect:       true,
		LabelMaxLength:        200,
		MaxItemCount:          50,
		DefaultSortMethod:     SortByLength,
		Timeout:               500,
		SnippetIndicator:      "~",
		PreviewIsKeyword:      "@,48-57,_",
		PostCommitWait:        50,
		LogLevel:              "info",
	}
}

// Validate checks enumerated and numeric option values.
func (c *Config) Validate() error {
	switch c.AutoTrigger {
	case AutoTriggerAlways, AutoTriggerTrigger, AutoTriggerNone:
	default:
		return fmt.Errorf("%w: auto_trigger=%q", ErrInvalidOption, c.AutoTrigger)
	}

	switch c.DefaultSortMethod {
	case SortAlphabetical, SortByLength, SortNone:
	default:
		return fmt.Errorf("%w: default_sort_method=%q", ErrInvalidOption, c.DefaultSortMethod)
	}

	if c.MinTriggerInputLength < 0 {
		return fmt.Errorf("%w: min_trigger_input_length=%d", ErrInvalidOption, c.MinTriggerInputLength)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout=%d", ErrInvalidOption, c.Timeout)
	}
	if c.PostCommitWait < 0 {
		return fmt.Errorf("%w: post_commit_wait=%d", ErrInvalidOption, c.PostCommitWait)
	}
	if c.MaxItemCount < 0 {
		return fmt.Errorf("%w: max_item_count=%d", ErrInvalidOption, c.MaxItemCount)
	}
	if c.LabelMaxLength < 0 {
		return fmt.Errorf("%w: label_max_length=%d", ErrInvalidOption, c.LabelMaxLength)
	}
	return nil
}

// Load reads configuration from a TOML file, applying defaults for
// unset keys and environment overrides on top. A missing file is not
// an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envPrefix is the prefix for environment variable overrides.
const envPrefix = "NVCOMPLETE_"

// applyEnv overrides config fields from NVCOMPLETE_* variables.
func applyEnv(cfg *Config) {
	if v, ok := lookupEnv("AUTO_TRIGGER"); ok {
		cfg.AutoTrigger = AutoTrigger(strings.ToLower(v))
	}
	if v, ok := lookupEnvInt("MIN_TRIGGER_INPUT_LENGTH"); ok {
		cfg.MinTriggerInputLength = v
	}
	if v, ok := lookupEnvInt("TIMEOUT"); ok {
		cfg.Timeout = v
	}
	if v, ok := lookupEnvInt("MAX_ITEM_COUNT"); ok {
		cfg.MaxItemCount = v
	}
	if v, ok := lookupEnvBool("NUMBER_SELECT"); ok {
		cfg.NumberSelect = v
	}
	if v, ok := lookupEnvBool("NOSELECT"); ok {
		cfg.NoSelect = v
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func lookupEnvInt(key string) (int, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupEnvBool(key string) (bool, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Store holds the live configuration and swaps it atomically on
// reload. Sessions in flight keep the snapshot they started with.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewStore creates a store holding the given configuration.
func NewStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	return &Store{cfg: cfg}
}

// Get returns the current configuration snapshot.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set swaps in a new configuration.
func (s *Store) Set(cfg *Config) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}
