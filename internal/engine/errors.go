package engine

import "errors"

// Sentinel error kinds. Wrap one of these with fmt.Errorf's %w so
// callers can classify a failure with errors.Is while still getting a
// specific message.
var (
	ErrConfigLoad       = errors.New("config load error")
	ErrLintError        = errors.New("lint error")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrTableNotFound    = errors.New("table not found")
	ErrFileFormat       = errors.New("file format error")
	ErrWrite            = errors.New("write error")
	ErrValidation       = errors.New("validation error")
	ErrTransform        = errors.New("transform error")
	ErrPipelineError    = errors.New("pipeline error")
	ErrCancelled        = errors.New("cancelled")
)
