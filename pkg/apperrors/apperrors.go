// Package apperrors defines the error taxonomy used across the engine (§7):
// TransientExternal, PermanentExternal, Validation, CapacityExhaustion, and
// LogicInvariant. Components return these wrapped sentinel errors so the
// Pipeline Coordinator can decide a user-visible outcome without inspecting
// component-specific error types.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the taxonomy category of an error.
type Kind string

// Error kinds, per §7.
const (
	KindTransientExternal  Kind = "transient_external"
	KindPermanentExternal  Kind = "permanent_external"
	KindValidation         Kind = "validation"
	KindCapacityExhaustion Kind = "capacity_exhaustion"
	KindLogicInvariant     Kind = "logic_invariant"
)

// Error is a taxonomy-tagged error that wraps an underlying cause.
type Error struct {
	Kind Kind
	Op   string // component/operation that raised it, e.g. "sshexec.Execute"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a taxonomy error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transient wraps err as TransientExternal.
func Transient(op string, err error) *Error { return New(KindTransientExternal, op, err) }

// Permanent wraps err as PermanentExternal.
func Permanent(op string, err error) *Error { return New(KindPermanentExternal, op, err) }

// Invalid wraps err as Validation.
func Invalid(op string, err error) *Error { return New(KindValidation, op, err) }

// Exhausted wraps err as CapacityExhaustion.
func Exhausted(op string, err error) *Error { return New(KindCapacityExhaustion, op, err) }

// Invariant wraps err as LogicInvariant.
func Invariant(op string, err error) *Error { return New(KindLogicInvariant, op, err) }

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
