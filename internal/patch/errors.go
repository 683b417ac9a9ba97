package patch

import "errors"

// Errors returned by Apply.
var (
	// ErrInvalidPath is returned when an operation addresses a location
	// that does not exist or cannot hold the operation.
	ErrInvalidPath = errors.New("invalid patch path")

	// ErrTypeMismatch is returned when an operation expects a different
	// value type at its path (for example, an edit on a number).
	ErrTypeMismatch = errors.New("patch type mismatch")

	// ErrInvalidStep is returned when text steps run past the end of the
	// string they edit.
	ErrInvalidStep = errors.New("invalid text step")
)
