package anamnesis

import (
	"fmt"

	"github.com/aretw0/anamnesis/pkg/domain"
)

// PersistenceError reports that a completed session could not be stored.
// The user already has the final narrative; the session has been removed and
// generation is not repeated.
type PersistenceError struct {
	SessionID string
	RecordID  string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist record for session %s: %v", e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{domain.ErrPersistenceFailed, e.Err}
}
