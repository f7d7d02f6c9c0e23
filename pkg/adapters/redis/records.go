package redis

import (
	"context"
	"fmt"

	"github.com/aretw0/anamnesis/pkg/domain"
	"github.com/bytedance/sonic"
	backend "github.com/redis/go-redis/v9"
)

// DefaultRecordPrefix namespaces persisted records.
const DefaultRecordPrefix = "anamnesis:record:"

// RecordStore implements ports.RecordStore using Redis.
// Each record is a JSON value; a per-user sorted set scored by creation time
// gives newest-first history.
type RecordStore struct {
	client *backend.Client
	prefix string
}

// NewRecordStore creates a Redis record store. An empty prefix uses DefaultRecordPrefix.
func NewRecordStore(client *backend.Client, prefix string) *RecordStore {
	if prefix == "" {
		prefix = DefaultRecordPrefix
	}
	return &RecordStore{client: client, prefix: prefix}
}

func (s *RecordStore) key(recordID string) string {
	return s.prefix + "id:" + recordID
}

func (s *RecordStore) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

// Save writes the record and indexes it under its user.
func (s *RecordStore) Save(ctx context.Context, record domain.Record) error {
	data, err := sonic.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, s.key(record.ID), data, 0)
		pipe.ZAdd(ctx, s.userKey(record.UserID), backend.Z{
			Score:  float64(record.CreatedAt.UnixMilli()),
			Member: record.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save record to redis: %w", err)
	}
	return nil
}

// ListByUser returns up to limit records, newest first.
// Index entries whose value has disappeared are skipped.
func (s *RecordStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, s.userKey(userID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	records := make([]domain.Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec domain.Record
		if err := sonic.UnmarshalString(raw, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %s: %w", ids[i], err)
		}
		records = append(records, rec)
	}
	return records, nil
}
