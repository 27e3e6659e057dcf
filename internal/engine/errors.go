package engine

import "errors"

var (
	// ErrUnknownEvaluator indicates a results request for a slug that is not
	// registered.
	ErrUnknownEvaluator = errors.New("engine: unknown evaluator")
	// ErrAggregateCorrupt indicates a stored aggregate slice an evaluator
	// could not interpret. The strategy selector rebuilds and retries once
	// before surfacing it.
	ErrAggregateCorrupt = errors.New("engine: aggregate state corrupt")
	// ErrRebuildTimeout indicates an aggregate rebuild exceeded its deadline.
	// Retryable: results are temporarily unavailable, not lost.
	ErrRebuildTimeout = errors.New("engine: aggregate rebuild timed out")
)

// IsRetryable reports whether the error names a transient condition the
// caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRebuildTimeout)
}
