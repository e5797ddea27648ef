package triage

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when an ID does not name a known session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminal is returned when input arrives for a done or
	// abandoned session.
	ErrSessionTerminal = errors.New("session already closed")
)

// ValidationError reports why a patient answer could not fill a slot. It is
// surfaced back to the patient as a re-prompt, never as an HTTP error.
type ValidationError struct {
	Slot   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Slot, e.Reason)
}
