package domain

import "errors"

// Error taxonomy shared by the repository, coordinator, and transports.
// Callers classify with errors.Is; wrapping with fmt.Errorf("...: %w", err)
// preserves the class.
var (
	// ErrNotFound means the session_id or resume_token resolves to nothing.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidToken means the resume token is malformed or unresolvable.
	ErrInvalidToken = errors.New("invalid resume token")

	// ErrStaleWrite means the caller's expected version no longer matches
	// persisted state. The caller must re-fetch fresh state and re-decide,
	// not blindly resubmit.
	ErrStaleWrite = errors.New("stale write: version mismatch")

	// ErrStoreUnavailable is a transient persistence failure. Retry with
	// backoff belongs to the caller, never to the store adapter.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrIllegalTransition means the requested status change violates the
	// session state machine. It is never coerced to a valid transition.
	ErrIllegalTransition = errors.New("illegal status transition")
)
