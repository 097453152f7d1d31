package models

import "errors"

// Error variables for better error handling and testability.
//
// Taxonomy: validation errors leave the session unchanged, not-found errors
// create no state, state-conflict errors perform no mutation. External
// side-effect failures are never surfaced as errors; they are captured
// per-action inside the ActionRecord set.
var (
	// ErrSessionNotFound indicates no session exists for the given session ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnknownBookingCode indicates no session or booking matches the code.
	ErrUnknownBookingCode = errors.New("unknown booking code")
	// ErrInvalidSelection indicates a chosen slot is not among the offered candidates.
	ErrInvalidSelection = errors.New("selected slot is not among the offered options")
	// ErrInvalidEmail indicates the submitted email failed the format check.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrPhoneTooLong indicates the submitted phone number exceeds the length bound.
	ErrPhoneTooLong = errors.New("phone number too long")
	// ErrNotesTooLong indicates the submitted notes exceed the length bound.
	ErrNotesTooLong = errors.New("notes too long")
	// ErrStateConflict indicates an operation was attempted in the wrong session state.
	ErrStateConflict = errors.New("operation not allowed in current session state")
)
