package resolver

import (
	"errors"
	"fmt"
)

// Resolution failure kinds. Every *ResolutionError matches exactly one of
// these with errors.Is.
var (
	ErrUnknownFunction    = errors.New("unknown function")
	ErrUnknownType        = errors.New("unknown type")
	ErrNoCandidates       = errors.New("no candidates")
	ErrNoResultType       = errors.New("no result-type-compatible candidate")
	ErrNoCycleEntry       = errors.New("no cycle-accepting entry point")
	ErrIncompatibleStages = errors.New("incompatible adjacent stages")
	ErrAmbiguous          = errors.New("irreducibly ambiguous")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// ResolutionError reports why an expression could not be resolved. Trace
// holds every step taken up to the failure.
type ResolutionError struct {
	Kind  error
	Expr  string
	Stage int
	Msg   string
	Trace *Trace
	Err   error
}

func (e *ResolutionError) Error() string {
	s := fmt.Sprintf("resolve %q: stage %d: %v", e.Expr, e.Stage, e.Kind)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and any underlying cause.
func (e *ResolutionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}
