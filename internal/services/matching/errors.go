package matching

import (
	"errors"
	"fmt"
)

// ErrAllocationConflict means committing the decision would allocate
// more than the invoice's remaining due amount. Over-allocation is
// rejected outright, never clamped.
var ErrAllocationConflict = errors.New("matching: allocation exceeds remaining due")

// ErrAmbiguousMatch marks a review outcome caused by two candidates
// scoring within the ambiguity window of each other.
var ErrAmbiguousMatch = errors.New("matching: ambiguous top candidates")

// LookupError wraps a candidate retrieval failure after retries were
// exhausted. Scoped to one transaction; the batch keeps going.
type LookupError struct {
	Attempts int
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("matching: candidate lookup failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
