package core

import (
	"testing"
	"time"
)

func TestPlanCachePrepareIdempotentOnSameFingerprint(t *testing.T) {
	cache := NewPlanCache(16, time.Hour)
	id1 := cache.Prepare("SEARCH graph WHERE type = $t", LogicalPlan{})
	id2 := cache.Prepare("search   GRAPH   where   type = $t", LogicalPlan{})
	if id1 != id2 {
		t.Fatalf("expected same prepared id, got %s vs %s", id1, id2)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", cache.Len())
	}
}

func TestPlanCacheLookupByQuery(t *testing.T) {
	cache := NewPlanCache(16, time.Hour)
	id := cache.Prepare("SEARCH vector WHERE k = $k", LogicalPlan{})
	got, ok := cache.LookupByQuery("search   VECTOR   where   k = $k")
	if !ok || got != id {
		t.Fatalf("expected lookup to find %s, got %s (ok=%v)", id, got, ok)
	}
}

func TestPlanCacheExecutePreparedParameterMismatch(t *testing.T) {
	cache := NewPlanCache(16, time.Hour)
	id := cache.Prepare("SEARCH graph WHERE type = $t", LogicalPlan{})
	_, err := cache.ExecutePrepared(id, map[string]any{"wrong": 1})
	if err == nil {
		t.Fatal("expected parameter mismatch error")
	}
	if verr, ok := err.(*Error); !ok || verr.Code != CodeConflict {
		t.Fatalf("expected Conflict *Error, got %T: %v", err, err)
	}
}

func TestPlanCacheExecutePreparedSuccess(t *testing.T) {
	cache := NewPlanCache(16, time.Hour)
	id := cache.Prepare("SEARCH graph WHERE type = $t", LogicalPlan{})
	entry, err := cache.ExecutePrepared(id, map[string]any{"t": "Person"})
	if err != nil {
		t.Fatalf("execute prepared: %v", err)
	}
	if entry.UseCount != 1 {
		t.Errorf("expected use_count 1, got %d", entry.UseCount)
	}
	stats := cache.Stats()
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
}

func TestPlanCacheEvictsAtCapacity(t *testing.T) {
	cache := NewPlanCache(2, time.Hour)
	cache.Prepare("SEARCH graph WHERE type = $a", LogicalPlan{})
	cache.Prepare("SEARCH graph WHERE type = $b", LogicalPlan{})
	cache.Prepare("SEARCH graph WHERE type = $c", LogicalPlan{})

	if cache.Len() != 2 {
		t.Fatalf("expected size to stay at capacity 2, got %d", cache.Len())
	}
	stats := cache.Stats()
	if stats.Evictions < 1 {
		t.Errorf("expected at least 1 eviction, got %d", stats.Evictions)
	}
}

func TestPlanCacheInvalidate(t *testing.T) {
	cache := NewPlanCache(16, time.Hour)
	id := cache.Prepare("SEARCH graph WHERE type = $t", LogicalPlan{})
	cache.Invalidate(id)
	if cache.Len() != 0 {
		t.Fatalf("expected 0 entries after invalidate, got %d", cache.Len())
	}
}
