package redis

import (
	"context"
	"encoding/json"
	"time"

	"liveclass-agent/internal/domain"

	"github.com/redis/go-redis/v9"
)

const directoryKey = "directory:sessions"

// RecordCache keeps the last directory snapshot in Redis so the agent can
// serve session records across restarts or when the directory is down.
type RecordCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRecordCache(client *redis.Client, ttl time.Duration) *RecordCache {
	return &RecordCache{client: client, ttl: ttl}
}

func (c *RecordCache) Save(ctx context.Context, records []domain.SessionRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, directoryKey, data, c.ttl).Err()
}

func (c *RecordCache) Load(ctx context.Context) ([]domain.SessionRecord, error) {
	data, err := c.client.Get(ctx, directoryKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var records []domain.SessionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}
