package utils

import (
	"errors"
	"fmt"
)

// Error kinds used across the analysis pipeline. Match with errors.Is.
var (
	// ErrConfiguration marks invalid marker, scoring or service configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrDetection marks a failure while evaluating a single marker.
	ErrDetection = errors.New("detection error")
	// ErrPhase marks a failure isolated to one pipeline phase.
	ErrPhase = errors.New("phase error")
	// ErrPipeline marks a failure outside every phase boundary.
	ErrPipeline = errors.New("pipeline error")
)

// AppError wraps an error kind, an operation, a human-facing message, and the underlying error.
type AppError struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	prefix := e.Op
	if e.Kind != nil {
		prefix = fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *AppError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// ConfigurationError constructs an AppError of kind ErrConfiguration.
func ConfigurationError(op, msg string, err error) error {
	return &AppError{Kind: ErrConfiguration, Op: op, Msg: msg, Err: err}
}

// PhaseError constructs an AppError of kind ErrPhase.
func PhaseError(op, msg string, err error) error {
	return &AppError{Kind: ErrPhase, Op: op, Msg: msg, Err: err}
}

// Recovered converts a recovered panic value into an error of the given kind.
func Recovered(kind error, op string, r any) error {
	if err, ok := r.(error); ok {
		return &AppError{Kind: kind, Op: op, Msg: "panic", Err: err}
	}
	return &AppError{Kind: kind, Op: op, Msg: fmt.Sprintf("panic: %v", r)}
}
