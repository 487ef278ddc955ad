package orchestrator

import "errors"

var (
	// ErrGeneration wraps a GenerativeClient failure that outlived its retries.
	ErrGeneration = errors.New("generation failed")
	// ErrMalformedOutput marks model output that could not be decoded into the
	// expected shape.
	ErrMalformedOutput = errors.New("malformed generation output")
	// ErrNoStates is returned for a page without states.
	ErrNoStates = errors.New("page has no states")
)
