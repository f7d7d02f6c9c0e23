package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/anamnesis/pkg/domain"
)

// RecordStore implements ports.RecordStore on the local filesystem.
// Layout: <base>/<escaped user id>/<record id>.json.
type RecordStore struct {
	BasePath string
}

// NewRecordStore creates a record store. An empty basePath defaults to ".anamnesis/records".
func NewRecordStore(basePath string) *RecordStore {
	if basePath == "" {
		basePath = filepath.Join(".anamnesis", "records")
	}
	return &RecordStore{BasePath: basePath}
}

func (s *RecordStore) userDir(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}
	return filepath.Join(s.BasePath, escapeName(userID)), nil
}

// Save writes the record atomically. Records are immutable once written.
func (s *RecordStore) Save(ctx context.Context, record domain.Record) error {
	if err := validName(record.ID); err != nil {
		return err
	}
	dir, err := s.userDir(record.UserID)
	if err != nil {
		return fmt.Errorf("record %s: %w", record.ID, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return writeAtomic(filepath.Join(dir, record.ID+".json"), data)
}

// ListByUser reads the user's directory and returns up to limit records, newest first.
func (s *RecordStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Record, error) {
	dir, err := s.userDir(userID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	var records []domain.Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, tempPrefix) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read record %s: %w", name, err)
		}
		var rec domain.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %s: %w", name, err)
		}
		records = append(records, rec)
	}

	slices.SortStableFunc(records, func(a, b domain.Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
