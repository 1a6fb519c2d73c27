package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrMissingInput = errors.New("missing input")

	// ErrTokenInvalid covers malformed, tampered, wrong-purpose and unknown-record
	// tokens. Callers never learn which of those occurred.
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")

	// ErrDispatchFailure is logged by the orchestrator and never returned to callers.
	ErrDispatchFailure = errors.New("dispatch failure")
)
