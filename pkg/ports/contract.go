package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/anamnesis/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract verifies that a SessionStore implementation
// adheres to the interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		s := domain.NewSession(sessionID, time.Now().UTC().Truncate(time.Second))
		s.State = domain.StateEnterOnset
		s.Data[domain.FieldSymptoms] = "головная боль"

		require.NoError(t, store.Save(ctx, s), "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, s.ID, loaded.ID)
		assert.Equal(t, domain.StateEnterOnset, loaded.State)
		assert.Equal(t, "головная боль", loaded.Data[domain.FieldSymptoms])
		assert.True(t, s.CreatedAt.Equal(loaded.CreatedAt))
	})

	t.Run("Loaded Copies Are Isolated", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Data[domain.FieldSymptoms] = "mutated"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "головная боль", again.Data[domain.FieldSymptoms])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewSession(sessionID, time.Now())))

		require.NoError(t, store.Delete(ctx, sessionID), "Delete should not return error")

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")

		assert.NoError(t, store.Delete(ctx, sessionID), "Deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, domain.NewSession(id1, time.Now()))
		_ = store.Save(ctx, domain.NewSession(id2, time.Now()))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunRecordStoreContract verifies that a RecordStore implementation
// adheres to the interface contract.
func RunRecordStoreContract(t *testing.T, store RecordStore) {
	ctx := context.Background()
	userID := "contract-user-" + time.Now().Format("20060102150405")
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	record := func(id string, offset time.Duration) domain.Record {
		return domain.Record{
			ID:        id,
			UserID:    userID,
			SessionID: "session-" + id,
			CreatedAt: base.Add(offset),
			Answers:   domain.Answers{Symptoms: "усталость " + id},
			Final:     "final " + id,
		}
	}

	t.Run("Empty History", func(t *testing.T) {
		records, err := store.ListByUser(ctx, "nobody-"+userID, 5)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Save and List Newest First", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, record("r1", 0)))
		require.NoError(t, store.Save(ctx, record("r3", 2*time.Hour)))
		require.NoError(t, store.Save(ctx, record("r2", time.Hour)))

		records, err := store.ListByUser(ctx, userID, 5)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "r3", records[0].ID)
		assert.Equal(t, "r2", records[1].ID)
		assert.Equal(t, "r1", records[2].ID)

		assert.Equal(t, "final r3", records[0].Final)
		assert.Equal(t, "усталость r3", records[0].Answers.Symptoms)
		assert.True(t, base.Add(2*time.Hour).Equal(records[0].CreatedAt))
	})

	t.Run("Limit", func(t *testing.T) {
		records, err := store.ListByUser(ctx, userID, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "r3", records[0].ID)
	})

	t.Run("Users Are Isolated", func(t *testing.T) {
		other := record("o1", 0)
		other.UserID = "other-" + userID
		require.NoError(t, store.Save(ctx, other))

		records, err := store.ListByUser(ctx, userID, 10)
		require.NoError(t, err)
		for _, r := range records {
			assert.Equal(t, userID, r.UserID)
		}
	})
}
