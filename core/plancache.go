package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// PlanCacheEntry is a single prepared-statement record
type PlanCacheEntry struct {
	PreparedID      string
	QueryText       string
	ParameterNames  []string
	Logical         LogicalPlan
	Physical        *PhysicalPlan
	CreatedAt       time.Time
	LastUsed        time.Time
	UseCount        uint64
}

// PlanCacheStats are the atomic hit/miss/eviction counters.
type PlanCacheStats struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Generation uint64
}

// HitRatio returns hits / (hits + misses), or 0 if both are zero.
func (s PlanCacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// PlanCache maps query fingerprints to prepared physical plans, evicting
// by TTL and LRU. The two lookup directions (id -> entry, fingerprint ->
// id) sit behind one reader-writer lock; an
// internal hashicorp/golang-lru cache backs the id -> entry direction so
// size-capacity eviction reuses a battle-tested LRU rather than a
// hand-rolled list, and singleflight collapses concurrent `prepare` calls
// for the same fingerprint into one winner.
type PlanCache struct {
	mu            sync.RWMutex
	entries       *lru.Cache[string, *PlanCacheEntry]
	byFingerprint map[string]string // fingerprint -> prepared id
	ttl           time.Duration

	group singleflight.Group

	hits, misses, evictions, generation uint64
}

// NewPlanCache constructs a cache capped at maxEntries with the given TTL.
func NewPlanCache(maxEntries int, ttl time.Duration) *PlanCache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	c := &PlanCache{
		byFingerprint: make(map[string]string),
		ttl:           ttl,
	}
	cache, _ := lru.NewWithEvict[string, *PlanCacheEntry](maxEntries, func(id string, entry *PlanCacheEntry) {
		// Invoked under c.mu whenever an entry leaves the LRU: capacity
		// eviction on Add in Prepare, and every Remove/Purge below, so
		// invalidations count as evictions too. Clears the reverse index
		// and bumps the counter.
		delete(c.byFingerprint, fingerprintOf(NormalizeQueryText(entry.QueryText)))
		atomic.AddUint64(&c.evictions, 1)
	})
	c.entries = cache
	return c
}

func fingerprintOf(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Fingerprint computes the SHA-256 hex fingerprint of a raw query string
// after whitespace/keyword normalization.
func Fingerprint(query string) string {
	return fingerprintOf(NormalizeQueryText(query))
}

// Prepare registers query+logical plan under its fingerprint. An
// existing fingerprint returns the same prepared id and refreshes
// last_used without creating a second entry. Concurrent Prepare calls for
// the same fingerprint are collapsed via singleflight.
func (c *PlanCache) Prepare(query string, plan LogicalPlan) string {
	fp := Fingerprint(query)

	id, _, _ := c.group.Do(fp, func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if existingID, ok := c.byFingerprint[fp]; ok {
			if entry, ok := c.entries.Get(existingID); ok {
				entry.LastUsed = time.Now().UTC()
				atomic.AddUint64(&c.generation, 1)
				return existingID, nil
			}
		}

		preparedID := fp
		entry := &PlanCacheEntry{
			PreparedID:     preparedID,
			QueryText:      query,
			ParameterNames: ExtractParameters(query),
			Logical:        plan,
			CreatedAt:      time.Now().UTC(),
			LastUsed:       time.Now().UTC(),
		}
		c.byFingerprint[fp] = preparedID
		c.entries.Add(preparedID, entry)
		atomic.AddUint64(&c.generation, 1)
		return preparedID, nil
	})
	return id.(string)
}

// LookupByQuery returns the prepared id already registered for query's
// fingerprint, if any.
func (c *PlanCache) LookupByQuery(query string) (string, bool) {
	fp := Fingerprint(query)
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byFingerprint[fp]
	return id, ok
}

// ExecutePrepared validates that params' name set matches the entry's
// declared parameter names, increments use counters, and returns the
// entry.
func (c *PlanCache) ExecutePrepared(id string, params map[string]any) (*PlanCacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(id)
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, NotFoundf("no prepared plan %s", id)
	}

	declared := make(map[string]bool, len(entry.ParameterNames))
	for _, p := range entry.ParameterNames {
		declared[p] = true
	}
	if len(params) != len(declared) {
		atomic.AddUint64(&c.misses, 1)
		return nil, Conflictf("parameter set mismatch for prepared plan %s", id)
	}
	for name := range params {
		if !declared[name] {
			atomic.AddUint64(&c.misses, 1)
			return nil, Conflictf("unexpected parameter %q for prepared plan %s", name, id)
		}
	}

	entry.UseCount++
	entry.LastUsed = time.Now().UTC()
	atomic.AddUint64(&c.hits, 1)
	return entry, nil
}

// CachePlan attaches a computed physical plan to a prepared entry.
func (c *PlanCache) CachePlan(id string, physical PhysicalPlan) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries.Get(id)
	if !ok {
		return NotFoundf("no prepared plan %s", id)
	}
	entry.Physical = &physical
	atomic.AddUint64(&c.generation, 1)
	return nil
}

// Invalidate removes a single prepared entry.
func (c *PlanCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries.Get(id); ok {
		delete(c.byFingerprint, fingerprintOf(NormalizeQueryText(entry.QueryText)))
		c.entries.Remove(id)
		atomic.AddUint64(&c.generation, 1)
	}
}

// InvalidateAll clears the cache entirely.
func (c *PlanCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.byFingerprint = make(map[string]string)
	atomic.AddUint64(&c.generation, 1)
}

// EvictExpired walks every entry and evicts those older than ttl,
// measured from last_used.
func (c *PlanCache) EvictExpired() int {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-c.ttl)
	var expired []string
	for _, id := range c.entries.Keys() {
		entry, ok := c.entries.Peek(id)
		if !ok {
			continue
		}
		if entry.LastUsed.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		if entry, ok := c.entries.Peek(id); ok {
			delete(c.byFingerprint, fingerprintOf(NormalizeQueryText(entry.QueryText)))
		}
		c.entries.Remove(id)
	}
	if len(expired) > 0 {
		atomic.AddUint64(&c.generation, 1)
	}
	return len(expired)
}

// EvictLRU removes the entry with the oldest LastUsed whenever the cache
// is non-empty, regardless of max_entries, and reports whether it removed
// one. The underlying hashicorp/golang-lru cache already enforces
// capacity on Add; this is exposed for callers that want to force a
// single eviction.
func (c *PlanCache) EvictLRU() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries.Len() == 0 {
		return false
	}
	oldestID := ""
	var oldest time.Time
	for i, id := range c.entries.Keys() {
		entry, ok := c.entries.Peek(id)
		if !ok {
			continue
		}
		if i == 0 || entry.LastUsed.Before(oldest) {
			oldest = entry.LastUsed
			oldestID = id
		}
	}
	if oldestID == "" {
		return false
	}
	if entry, ok := c.entries.Peek(oldestID); ok {
		delete(c.byFingerprint, fingerprintOf(NormalizeQueryText(entry.QueryText)))
	}
	c.entries.Remove(oldestID)
	atomic.AddUint64(&c.generation, 1)
	return true
}

// Len returns the number of entries currently cached.
func (c *PlanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries.Len()
}

// Stats returns a snapshot of the atomic counters.
func (c *PlanCache) Stats() PlanCacheStats {
	return PlanCacheStats{
		Hits:       atomic.LoadUint64(&c.hits),
		Misses:     atomic.LoadUint64(&c.misses),
		Evictions:  atomic.LoadUint64(&c.evictions),
		Generation: atomic.LoadUint64(&c.generation),
	}
}
