package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingVariable marks a source file (or a whole run) without the requested variable.
	ErrMissingVariable = errors.New("variable not found")
	// ErrOverlapAmbiguity marks an overlap shape the deduplication policy does not cover.
	ErrOverlapAmbiguity = errors.New("ambiguous chunk overlap")
	// ErrStructuralMismatch marks snapshots of one variable that cannot share a series.
	ErrStructuralMismatch = errors.New("structural mismatch")
	// ErrWriteFailure marks a consolidated series that could not be persisted.
	ErrWriteFailure = errors.New("write consolidated series")
	// ErrOutOfOrder marks a merge that would break strictly increasing timestamps.
	ErrOutOfOrder = errors.New("timestamps not strictly increasing")
	// ErrIdentityMismatch marks a snapshot offered to another variable's accumulator.
	ErrIdentityMismatch = errors.New("variable identity mismatch")
)

// OverlapError describes an incoming batch whose overlap with the retained
// timestamps falls outside the deduplication policy.
type OverlapError struct {
	Identity  VariableIdentity
	Chunk     string
	Positions []int
	Times     []ModelTime
	BatchLen  int
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s: %s chunk %q: positions %v (times %v) of a %d-element batch already retained",
		ErrOverlapAmbiguity, e.Identity, e.Chunk, e.Positions, e.Times, e.BatchLen)
}

func (e *OverlapError) Unwrap() error { return ErrOverlapAmbiguity }

// MismatchError names the field that differs between two snapshots of one
// variable, with both provenances for diagnosis.
type MismatchError struct {
	Identity VariableIdentity
	Field    string
	Retained Provenance
	Incoming Provenance
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s: %s differs between %s and %s",
		ErrStructuralMismatch, e.Identity, e.Field, e.Retained, e.Incoming)
}

func (e *MismatchError) Unwrap() error { return ErrStructuralMismatch }

// ErrorKind maps an error onto the short label used in metrics and run summaries.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingVariable):
		return "missing_variable"
	case errors.Is(err, ErrOverlapAmbiguity):
		return "overlap_ambiguity"
	case errors.Is(err, ErrStructuralMismatch):
		return "structural_mismatch"
	case errors.Is(err, ErrWriteFailure):
		return "write_failure"
	case errors.Is(err, ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	default:
		return "other"
	}
}
