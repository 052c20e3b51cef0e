package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is a coarse-grained categorization for pipeline errors.
type ErrorKind string

const (
	// KindParse marks a malformed Hamiltonian line. Recoverable, never returned from a run.
	KindParse ErrorKind = "parse"
	// KindArgument marks missing or malformed caller input (CLI args, request bodies)
	KindArgument ErrorKind = "argument"
	// KindIO marks a missing or unreadable input file
	KindIO ErrorKind = "io"
	// KindConvergence marks an optimizer that hit its iteration cap. Reported as a warning.
	KindConvergence ErrorKind = "convergence"
	// KindSynthesis marks a compiled circuit that could not be verified against its source
	KindSynthesis ErrorKind = "synthesis"
	// KindDegenerateReference marks a zero reference energy at scoring time
	KindDegenerateReference ErrorKind = "degenerate_reference"
	// KindInvalidNoiseModel marks a noise model that failed schema validation
	KindInvalidNoiseModel ErrorKind = "invalid_noise_model"
	// KindLayout marks a circuit whose layout does not match the device topology
	KindLayout ErrorKind = "layout"
	// KindBackend marks a simulation failure inside a sampling step
	KindBackend ErrorKind = "backend"
)

// OpError wraps an underlying error with operation context and a kind.
type OpError struct {
	Op   string
	Kind ErrorKind
	Path string // Optional: failing file path
	Err  error
}

func (e *OpError) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Path != "" {
		base += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds an OpError without a path.
func NewError(op string, kind ErrorKind, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Err: err}
}

// NewPathError builds an OpError that records the failing path.
func NewPathError(op string, kind ErrorKind, path string, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Path: path, Err: err}
}

// IsKind helps callers classify errors without depending on the producing package.
func IsKind(err error, kind ErrorKind) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind == kind
	}
	return false
}

// KindOf returns the kind of the outermost OpError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}
