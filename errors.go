package classifier

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when an embedding's length differs from the
	// dimension fixed by the first embedding ever assigned.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotFound is returned when a class label is not registered.
	ErrNotFound = errors.New("class not found")

	// ErrInvalidInput is returned for empty labels and empty or non-finite embeddings.
	ErrInvalidInput = errors.New("invalid input")

	// ErrClosed is returned by operations on a classifier after Close.
	ErrClosed = errors.New("classifier is closed")

	// ErrNoStore is returned by Save when no Store was configured.
	ErrNoStore = errors.New("no store configured")
)

// DimensionMismatchError carries the expected and received embedding lengths.
// It matches ErrDimensionMismatch with errors.Is.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrDimensionMismatch, e.Expected, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
