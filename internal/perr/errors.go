// Package perr declares the shared error taxonomy used across the probar
// core. Every component surfaces failures as one of these kinds so callers
// can dispatch on Kind without parsing error strings.
package perr

import (
	"errors"
	"fmt"
)

// Kind identifies the abstract error category a Error carries.
type Kind string

const (
	KindTimeout              Kind = "timeout"
	KindStrictViolation       Kind = "strict_violation"
	KindDetached              Kind = "detached"
	KindTransportClosed       Kind = "transport_closed"
	KindProtocolError         Kind = "protocol_error"
	KindRemoteError           Kind = "remote_error"
	KindNavigationTimeout     Kind = "navigation_timeout"
	KindRuntimeTrap           Kind = "runtime_trap"
	KindDeterminismViolation  Kind = "determinism_violation"
	KindInvariantViolation    Kind = "invariant_violation"
	KindForbiddenTransition   Kind = "forbidden_transition"
	KindUnexpectedEvent       Kind = "unexpected_event"
	KindValidationError       Kind = "validation_error"
)

// Error is the common error type returned by probar components. It records
// the producing component, the operation attempted, and the most recently
// observed state, per spec.md §7's "user-visible failures always include"
// requirement.
type Error struct {
	Kind      Kind
	Component string
	Operation string
	State     string // most recently observed state (selector, candidate count, predicate, ...)
	Cause     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s [%s]", e.Component, e.Operation, e.Kind)
	if e.State != "" {
		msg += ": " + e.State
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, perr.KindTimeout-typed sentinel) style checks by
// comparing Kind when the target is also an *Error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error with the given kind, component, and operation.
func New(kind Kind, component, operation, state string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Operation: operation, State: state, Cause: cause}
}

// OfKind reports whether err (or something it wraps) carries the given Kind.
func OfKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// RuntimeTrap carries the trap classification for WASM Runtime Driver faults.
type RuntimeTrap struct {
	TrapKind string
	Cause    error
}

func (t *RuntimeTrap) Error() string {
	return fmt.Sprintf("runtime trap (%s): %v", t.TrapKind, t.Cause)
}

func (t *RuntimeTrap) Unwrap() error { return t.Cause }

// DeterminismViolation carries the frame and hash mismatch for replay faults.
type DeterminismViolation struct {
	Frame    uint32
	Expected uint64
	Observed uint64
}

func (d *DeterminismViolation) Error() string {
	return fmt.Sprintf("determinism violation at frame %d: expected hash %d, observed %d", d.Frame, d.Expected, d.Observed)
}

// InvariantViolation carries the playbook state and failed predicate.
type InvariantViolation struct {
	State     string
	Predicate string
}

func (i *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in state %q: predicate %q failed", i.State, i.Predicate)
}

// ForbiddenTransition carries the from/via/to of a negative-property hit.
type ForbiddenTransition struct {
	From string
	Via  string
	To   string
}

func (f *ForbiddenTransition) Error() string {
	return fmt.Sprintf("forbidden transition: %s --(%s)--> %s", f.From, f.Via, f.To)
}
