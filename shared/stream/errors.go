package stream

import (
	"errors"
	"fmt"
)

// ErrCorruptIndex is wrapped by any failure to read or parse the index
// document, including index invariants being violated.
var ErrCorruptIndex = errors.New("corrupt index")

// ErrPartialWriteDetected means a staging file from an interrupted run is
// still present; the tree must be inspected before any further mutation.
var ErrPartialWriteDetected = errors.New("partial write detected")

// MissingProductFileError means the index references a product file that is
// absent on disk.
type MissingProductFileError struct {
	ContentID string
	Path      string
}

func (e MissingProductFileError) Error() string {
	return fmt.Sprintf("Product file %q for %q is missing", e.Path, e.ContentID)
}

// MalformedProductError means a product file exists but a product, version
// or item record in it is unusable.
type MalformedProductError struct {
	ContentID string
	Err       error
}

func (e MalformedProductError) Error() string {
	return fmt.Sprintf("Malformed product file for %q: %v", e.ContentID, e.Err)
}

// Unwrap makes the parse failure available to errors.Is/As.
func (e MalformedProductError) Unwrap() error {
	return e.Err
}
