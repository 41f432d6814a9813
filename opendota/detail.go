package opendota

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// detailCache holds recently fetched match details so the parse check and the
// report built right after it share one request. Failures are never cached.
type detailCache struct {
	ttl   time.Duration
	group singleflight.Group

	mu      sync.Mutex
	entries map[int64]detailEntry
}

type detailEntry struct {
	match *Match
	at    time.Time
}

func newDetailCache(ttl time.Duration) *detailCache {
	return &detailCache{ttl: ttl, entries: make(map[int64]detailEntry)}
}

func (d *detailCache) get(matchID int64) (*Match, bool) {
	if d.ttl <= 0 {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[matchID]
	if !ok || time.Since(e.at) >= d.ttl {
		return nil, false
	}
	return e.match, true
}

func (d *detailCache) put(m *Match, matchID int64) {
	if d.ttl <= 0 {
		return
	}
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, e := range d.entries {
		if now.Sub(e.at) >= d.ttl {
			delete(d.entries, id)
		}
	}
	d.entries[matchID] = detailEntry{match: m, at: now}
}

// forget drops matchID, e.g. after a parse request changes what OpenDota will return.
func (d *detailCache) forget(matchID int64) {
	d.mu.Lock()
	delete(d.entries, matchID)
	d.mu.Unlock()
}
