package models

import "errors"

// Sentinel errors for invariant violations detected at the model layer.
// These are LogicInvariant-class errors (§7): the caller logs and aborts
// the current step rather than retrying.
var (
	// ErrParallelArrayMismatch indicates commands/outputs/exit codes have
	// different lengths for the same attempt.
	ErrParallelArrayMismatch = errors.New("parallel arrays have mismatched lengths")

	// ErrEmptyFingerprint indicates an alert arrived with an empty or
	// whitespace-only fingerprint, which the intake stage must reject.
	ErrEmptyFingerprint = errors.New("alert fingerprint is empty")
)
