package executor

import (
	"sync"
	"time"
)

// Dedup prevents the same trade order from being submitted more than once
// within a time-to-live window. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // dedup key -> last submission
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats a key as a duplicate if it was seen
// within ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate reports whether id was seen within the TTL. An unseen or
// expired key is recorded and false is returned.
func (d *Dedup) IsDuplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if lastSeen, ok := d.seen[id]; ok && now.Sub(lastSeen) < d.ttl {
		return true
	}
	d.seen[id] = now
	return false
}

// Cleanup removes expired entries.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Len returns the number of tracked keys.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
