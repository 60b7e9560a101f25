package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures at collaborator boundaries.
type ErrorKind string

const (
	ErrorKindTransientIO     ErrorKind = "transient_io"
	ErrorKindMalformedInput  ErrorKind = "malformed_input"
	ErrorKindExhaustedBudget ErrorKind = "exhausted_budget"
)

var (
	ErrEmptySessionID = errors.New("session id is required")
	ErrUnknownJobKind = errors.New("unknown job kind")
)

// Error is a kind-tagged error returned by collaborators.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TransientIO wraps err as a write failure.
func TransientIO(op string, err error) error {
	return &Error{Kind: ErrorKindTransientIO, Op: op, Err: err}
}

// MalformedInput wraps err as an input parsing failure.
func MalformedInput(op string, err error) error {
	return &Error{Kind: ErrorKindMalformedInput, Op: op, Err: err}
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
