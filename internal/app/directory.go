package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"liveclass-agent/internal/domain"

	"golang.org/x/sync/singleflight"
)

// DirectoryFetcher queries the remote session directory.
type DirectoryFetcher interface {
	FetchSessions(ctx context.Context) ([]domain.SessionRecord, error)
}

// RecordCache persists the last known directory snapshot so the agent can
// show something useful when the directory is unreachable.
type RecordCache interface {
	Save(ctx context.Context, records []domain.SessionRecord) error
	Load(ctx context.Context) ([]domain.SessionRecord, error)
}

// Directory maintains the authoritative local list of session records.
// A refresh is a full replace from the remote query; lifecycle events arriving
// over the realtime channel patch matching records in place without a round
// trip. Records are never deleted by events, only replaced by refresh.
type Directory struct {
	fetcher DirectoryFetcher
	cache   RecordCache
	sf      singleflight.Group

	mu          sync.RWMutex
	records     []domain.SessionRecord
	stale       bool
	eventDriven bool
}

func NewDirectory(fetcher DirectoryFetcher, cache RecordCache) *Directory {
	return &Directory{fetcher: fetcher, cache: cache}
}

// Refresh replaces the local list from the directory query. Concurrent calls
// collapse into a single fetch. On fetch failure the cached snapshot is served
// instead and the directory is marked stale; with no cache either, the error
// is returned.
func (d *Directory) Refresh(ctx context.Context) ([]domain.SessionRecord, error) {
	result, err, _ := d.sf.Do("refresh", func() (interface{}, error) {
		records, err := d.fetcher.FetchSessions(ctx)
		if err != nil {
			cached, cacheErr := d.cache.Load(ctx)
			if cacheErr != nil || len(cached) == 0 {
				return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
			}
			log.Printf("directory: fetch failed, serving %d cached records: %v", len(cached), err)
			d.mu.Lock()
			d.records = cached
			d.stale = true
			d.mu.Unlock()
			return cached, nil
		}

		d.mu.Lock()
		d.records = records
		d.stale = false
		d.mu.Unlock()

		if err := d.cache.Save(ctx, records); err != nil {
			log.Printf("directory: cache save failed: %v", err)
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return d.snapshot(result.([]domain.SessionRecord)), nil
}

// ApplyEvent patches the matching record(s) for a lifecycle event. The sender
// may address the session by its ID, its room alias, or both; either field
// matches either side of the record. Unmatched events are ignored.
func (d *Directory) ApplyEvent(kind, sessionID, roomKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.records {
		if !d.records[i].Matches(sessionID) && !d.records[i].Matches(roomKey) {
			continue
		}
		switch kind {
		case "session_started":
			d.records[i].Status = domain.StatusLive
		case "meeting_ended":
			d.records[i].Status = domain.StatusCompleted
		case "participant_joined":
			d.records[i].Participants++
		case "participant_left":
			if d.records[i].Participants > 0 {
				d.records[i].Participants--
			}
		default:
			log.Printf("directory: ignoring unknown lifecycle event %q", kind)
			return
		}
	}
}

// Records returns a copy of the current list.
func (d *Directory) Records() []domain.SessionRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot(d.records)
}

// Find resolves a session by ID or room alias.
func (d *Directory) Find(key string) (domain.SessionRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, record := range d.records {
		if record.Matches(key) {
			return record, nil
		}
	}
	return domain.SessionRecord{}, domain.ErrSessionNotFound
}

// Stale reports whether the current list came from cache fallback.
func (d *Directory) Stale() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stale
}

// MarkConnected switches the directory to event-driven updates: polling loops
// stop and the record list is maintained by lifecycle events until the next
// explicit Refresh.
func (d *Directory) MarkConnected() {
	d.mu.Lock()
	d.eventDriven = true
	d.mu.Unlock()
}

// EventDriven reports whether polling has been retired.
func (d *Directory) EventDriven() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.eventDriven
}

// StartPolling refreshes on an interval until the first successful connection
// (MarkConnected) or ctx cancellation. After that point updates are push
// driven, trading eventual consistency for load if events are dropped.
func (d *Directory) StartPolling(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if d.EventDriven() {
					return
				}
				if _, err := d.Refresh(ctx); err != nil {
					log.Printf("directory: poll refresh failed: %v", err)
				}
			}
		}
	}()
}

func (d *Directory) snapshot(records []domain.SessionRecord) []domain.SessionRecord {
	out := make([]domain.SessionRecord, len(records))
	copy(out, records)
	return out
}
