package usercache

import (
	"sort"
	"strings"
	"sync"

	"shipboard/pkg/logger"
	"shipboard/pkg/telemetry"
)

// Cache is the process-wide snapshot store. Two views index the same
// snapshot objects - by account id and by lowercased username - under one
// mutex. There is no eviction: every account known to the durable store
// stays cached for the process lifetime.
type Cache struct {
	mu     sync.RWMutex
	byID   map[string]*Snapshot
	byName map[string]*Snapshot
}

// New returns an empty cache. Call Refresher.Warm before serving traffic.
func New() *Cache {
	return &Cache{
		byID:   make(map[string]*Snapshot),
		byName: make(map[string]*Snapshot),
	}
}

// Get returns the snapshot for an account id. A false result is a normal
// "unknown id" outcome; use GetKnown when the id is expected to exist.
func (c *Cache) Get(id string) (*Snapshot, bool) {
	c.mu.RLock()
	s, ok := c.byID[id]
	c.mu.RUnlock()
	return s, ok
}

// GetKnown returns the snapshot for an id that must exist once startup has
// completed. A miss here is an internal invariant violation: it is logged
// and counted, never silently swallowed.
func (c *Cache) GetKnown(id string) (*Snapshot, bool) {
	s, ok := c.Get(id)
	if !ok {
		telemetry.CacheKnownMisses.Inc()
		logger.Error("usercache_known_miss", "id", id)
	}
	return s, ok
}

// GetByUsername returns the snapshot for a username (case-insensitive).
// A miss is a normal outcome for lookups of names that never existed.
func (c *Cache) GetByUsername(name string) (*Snapshot, bool) {
	c.mu.RLock()
	s, ok := c.byName[normalizeUsername(name)]
	c.mu.RUnlock()
	return s, ok
}

// GetMany returns snapshots for the given ids, silently skipping unknown
// ones. Callers building batch headers accept partial results.
func (c *Cache) GetMany(ids []string) []*Snapshot {
	out := make([]*Snapshot, 0, len(ids))
	c.mu.RLock()
	for _, id := range ids {
		if s, ok := c.byID[id]; ok {
			out = append(out, s)
		}
	}
	c.mu.RUnlock()
	return out
}

// Replace installs a snapshot into both views atomically. When the account
// was previously cached under a different username the stale username key
// is deleted, so a rename never leaves an orphaned entry behind.
func (c *Cache) Replace(s *Snapshot) {
	name := normalizeUsername(s.Username)
	c.mu.Lock()
	if prev, ok := c.byID[s.ID]; ok {
		if old := normalizeUsername(prev.Username); old != name {
			delete(c.byName, old)
		}
	}
	c.byID[s.ID] = s
	c.byName[name] = s
	n := len(c.byID)
	c.mu.Unlock()
	telemetry.CacheSnapshots.Set(float64(n))
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// IDs returns every cached account id. Used by the reconciler.
func (c *Cache) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.byID))
	for id := range c.byID {
		out = append(out, id)
	}
	return out
}

// AlertSubscribers returns the ids of accounts with an alert keyword
// appearing in text (case-insensitive substring match), excluding
// excludeID. Used to raise keyword notifications on new content.
func (c *Cache) AlertSubscribers(text, excludeID string) []string {
	lowered := strings.ToLower(text)
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for id, s := range c.byID {
		if id == excludeID {
			continue
		}
		for _, w := range s.AlertWords {
			if w != "" && strings.Contains(lowered, strings.ToLower(w)) {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// ChangedSince returns snapshots whose profile changed after sinceTS,
// ordered oldest first. Accounts blocked by (or blocking) the requester
// are omitted, as is the requester itself. A zero requesterID skips the
// block filtering.
func (c *Cache) ChangedSince(sinceTS int64, requesterID string) []*Snapshot {
	var req *Snapshot
	if requesterID != "" {
		req, _ = c.Get(requesterID)
	}
	c.mu.RLock()
	out := make([]*Snapshot, 0)
	for id, s := range c.byID {
		if s.ProfileUpdatedTS <= sinceTS {
			continue
		}
		if id == requesterID {
			continue
		}
		if req != nil && req.Blocks(id) {
			continue
		}
		out = append(out, s)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ProfileUpdatedTS < out[j].ProfileUpdatedTS })
	return out
}
