package relationships

import "errors"

var (
	// ErrMaxDepthExceeded is returned when the maximum relation depth is exceeded
	ErrMaxDepthExceeded = errors.New("maximum relation depth exceeded")

	// ErrInvalidRelation is returned when a recorded relation cannot be loaded
	ErrInvalidRelation = errors.New("invalid relation")
)
