package config

import "errors"

// Standard errors returned by the config package.
var (
	// ErrInvalidOption indicates a config value outside its allowed range.
	ErrInvalidOption = errors.New("invalid config option")

	// ErrWatcherClosed indicates the watcher has been closed.
	ErrWatcherClosed = errors.New("config watcher closed")
)
