package memory

import (
	"context"
	"testing"

	"liveclass-agent/internal/domain"
)

func TestRecordCacheRoundTrip(t *testing.T) {
	cache := NewRecordCache()
	ctx := context.Background()

	loaded, err := cache.Load(ctx)
	if err != nil || len(loaded) != 0 {
		t.Fatalf("expected empty cache, got %v %v", loaded, err)
	}

	records := []domain.SessionRecord{{ID: "s1", Title: "Networks L1", RoomAlias: "820111"}}
	if err := cache.Save(ctx, records); err != nil {
		t.Fatalf("save: %v", err)
	}

	// The cache must hold its own copy.
	records[0].Title = "mutated"

	loaded, err = cache.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Title != "Networks L1" {
		t.Fatalf("expected isolated copy, got %+v", loaded)
	}
}
