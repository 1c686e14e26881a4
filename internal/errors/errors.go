// Package errors defines the engine's error taxonomy.
//
// Almost every failure mode in the derivation engine is row-scoped and
// non-fatal: it degrades to a null output field plus a provenance flag, and
// the batch continues. Those conditions are not Go errors at all; they are
// encoded in domain.Value states and DerivedFact flags.
//
// The only batch-fatal conditions are structural precondition violations in
// the inputs (a crosswalk whose weights for a coarse unit sum to zero, a
// category missing its header row). These are detected once, up front, and
// reported as StructuralError before any row computation starts.
package errors

import (
	"errors"
	"fmt"
)

// Structural precondition sentinels. Wrap with context via Structural().
var (
	// ErrZeroWeightSum marks a coarse unit whose crosswalk weights sum to
	// zero: allocation input is malformed and nothing can be disaggregated.
	ErrZeroWeightSum = errors.New("crosswalk weights sum to zero")

	// ErrWeightSumOutOfTolerance marks a coarse unit whose weights do not
	// sum to 1 within the configured tolerance.
	ErrWeightSumOutOfTolerance = errors.New("crosswalk weights out of tolerance")

	// ErrMissingHeader marks a (entity, period, category) group with no
	// indent-0 header row to take the denominator from.
	ErrMissingHeader = errors.New("category group has no header row")

	// ErrHeaderInconsistent marks a header row whose own count disagrees
	// with its category total.
	ErrHeaderInconsistent = errors.New("header count does not equal category total")

	// ErrBaselineFactor marks an adjustment factor table whose baseline
	// period factor is not 1.0.
	ErrBaselineFactor = errors.New("baseline period factor must be 1.0")
)

// StructuralError is a batch-fatal input precondition violation. It names
// the table and key so the operator can find the offending rows without
// re-running the batch.
type StructuralError struct {
	Table string // input table name, e.g. "crosswalk"
	Key   string // offending key, e.g. the coarse unit ID
	Err   error  // sentinel or wrapped cause
}

// Error implements the error interface
func (e *StructuralError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s[%s]: %v", e.Table, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Table, e.Err)
}

// Unwrap exposes the sentinel for errors.Is checks.
func (e *StructuralError) Unwrap() error {
	return e.Err
}

// Structural wraps a sentinel with the table and key it was detected in.
func Structural(table, key string, err error) *StructuralError {
	return &StructuralError{Table: table, Key: key, Err: err}
}

// IsStructural reports whether err is (or wraps) a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
