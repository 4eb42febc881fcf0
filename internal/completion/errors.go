package completion

import "errors"

// Standard errors returned by the completion engine.
var (
	// ErrNoSources indicates no source accepted the completion request.
	ErrNoSources = errors.New("no completion sources")

	// ErrUnknownSource indicates an explicitly named source is not registered.
	ErrUnknownSource = errors.New("unknown completion source")

	// ErrSessionDisposed indicates the session was cancelled before the
	// operation completed.
	ErrSessionDisposed = errors.New("completion session disposed")
)
