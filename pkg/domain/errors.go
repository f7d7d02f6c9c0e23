package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrMalformedInput is returned for requests that cannot be applied to any session.
var ErrMalformedInput = errors.New("malformed input")

// ErrGenerationFailed is returned when a checkpoint exhausted its attempts.
// The session is left at its pre-checkpoint state.
var ErrGenerationFailed = errors.New("generation failed")

// ErrPersistenceFailed is returned when a completed session could not be recorded.
// The final reply has already been produced when this is returned.
var ErrPersistenceFailed = errors.New("record persistence failed")

// ErrRecordNotFound is returned by record stores for unknown record ids.
var ErrRecordNotFound = errors.New("record not found")
