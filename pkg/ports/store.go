package ports

import (
	"context"

	"github.com/aretw0/anamnesis/pkg/domain"
)

// SessionStore persists live sessions between steps.
// Implementations must return copies so callers never alias stored data.
type SessionStore interface {
	// Save persists the session under its ID, replacing any previous value.
	Save(ctx context.Context, session *domain.Session) error

	// Load retrieves the session for a given ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all live sessions.
	List(ctx context.Context) ([]string, error)
}

// RecordStore receives completed sessions.
type RecordStore interface {
	// Save inserts one record. Records are never updated.
	Save(ctx context.Context, record domain.Record) error

	// ListByUser returns up to limit records for userID, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Record, error)
}
