package memory

import (
	"context"
	"sync"

	"liveclass-agent/internal/domain"
)

// RecordCache is the in-memory implementation of app.RecordCache, used when
// no Redis is configured.
type RecordCache struct {
	mu      sync.RWMutex
	records []domain.SessionRecord
}

func NewRecordCache() *RecordCache {
	return &RecordCache{}
}

func (c *RecordCache) Save(_ context.Context, records []domain.SessionRecord) error {
	out := make([]domain.SessionRecord, len(records))
	copy(out, records)
	c.mu.Lock()
	c.records = out
	c.mu.Unlock()
	return nil
}

func (c *RecordCache) Load(_ context.Context) ([]domain.SessionRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.SessionRecord, len(c.records))
	copy(out, c.records)
	return out, nil
}
