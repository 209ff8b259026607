package core

import (
	"testing"
	"time"
)

func TestConflictDetectStartsOpen(t *testing.T) {
	r := NewConflictResolver(DefaultConflictConfig())
	c := r.DetectConflict("entity-1", []string{ModalityGraph, ModalitySemantic}, 0.2, "graph/semantic disagree")
	if c.Status != ConflictOpen {
		t.Fatalf("expected Open status, got %v", c.Status)
	}
	if len(r.Active()) != 1 {
		t.Fatalf("expected 1 active conflict, got %d", len(r.Active()))
	}
}

func TestConflictResolveLastWriterWinsBelowThreshold(t *testing.T) {
	r := NewConflictResolver(DefaultConflictConfig())
	c := r.DetectConflict("entity-1", []string{ModalityGraph, ModalitySemantic}, 0.1, "low drift")

	writes := []ModalityTimestamp{
		{Modality: ModalityGraph, WrittenAt: mustParseTime(t, "2026-07-29T10:00:00Z")},
		{Modality: ModalitySemantic, WrittenAt: mustParseTime(t, "2026-07-29T11:00:00Z")},
	}
	res, err := r.Resolve(c.ID, nil, writes)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.WinningModality != ModalitySemantic {
		t.Errorf("expected semantic (latest write) to win, got %s", res.WinningModality)
	}
	if len(r.Active()) != 0 {
		t.Fatalf("expected conflict removed from active, got %d", len(r.Active()))
	}
	if len(r.History()) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(r.History()))
	}
}

func TestConflictForcesManualAboveRequireManualThreshold(t *testing.T) {
	cfg := DefaultConflictConfig()
	r := NewConflictResolver(cfg)
	c := r.DetectConflict("entity-1", []string{ModalityGraph, ModalitySemantic}, 0.9, "severe drift")

	_, err := r.Resolve(c.ID, nil, nil)
	if err == nil {
		t.Fatal("expected resolve to refuse automatic resolution above require_manual_above")
	}

	active := r.Active()
	if len(active) != 1 || active[0].Status != ConflictInProgress {
		t.Fatalf("expected conflict to remain active and InProgress, got %+v", active)
	}

	res, err := r.ResolveManual(c.ID, "operator-1", ModalityGraph, "manual review confirmed graph")
	if err != nil {
		t.Fatalf("manual resolve: %v", err)
	}
	if res.WinningModality != ModalityGraph || res.Resolver != "operator-1" {
		t.Fatalf("unexpected manual resolution: %+v", res)
	}
	if len(r.Active()) != 0 {
		t.Fatalf("expected no active conflicts after manual resolution, got %d", len(r.Active()))
	}
}

func TestConflictModalityPriorityOverride(t *testing.T) {
	cfg := DefaultConflictConfig()
	cfg.SetPerPairPolicy(ModalityGraph, ModalitySemantic, ConflictPolicy{
		Kind:          PolicyModalityPriority,
		PriorityOrder: []string{ModalityDocument, ModalitySemantic, ModalityGraph},
	})
	r := NewConflictResolver(cfg)
	c := r.DetectConflict("entity-1", []string{ModalityGraph, ModalitySemantic}, 0.25, "ranked by priority")

	res, err := r.Resolve(c.ID, nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.WinningModality != ModalitySemantic {
		t.Errorf("expected semantic to outrank graph per priority order, got %s", res.WinningModality)
	}
}

func TestConflictAboveAutoResolveThresholdRequiresEscalation(t *testing.T) {
	cfg := DefaultConflictConfig()
	r := NewConflictResolver(cfg)
	c := r.DetectConflict("entity-1", []string{ModalityGraph, ModalitySemantic}, 0.5, "moderate drift")

	_, err := r.Resolve(c.ID, nil, nil)
	if err == nil {
		t.Fatal("expected resolve to refuse automatic last_writer_wins above auto_resolve_threshold")
	}
	if verr, ok := err.(*Error); !ok || verr.Code != CodeConflict {
		t.Fatalf("expected Conflict *Error, got %T: %v", err, err)
	}
}

func TestConflictAlreadyResolvedErrors(t *testing.T) {
	r := NewConflictResolver(DefaultConflictConfig())
	c := r.DetectConflict("entity-1", []string{ModalityGraph, ModalitySemantic}, 0.1, "low drift")
	if _, err := r.Resolve(c.ID, nil, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := r.Resolve(c.ID, nil, nil); err == nil {
		t.Fatal("expected re-resolving an already-resolved conflict to error")
	}
}

func TestConflictNotFound(t *testing.T) {
	r := NewConflictResolver(DefaultConflictConfig())
	if _, err := r.Resolve("missing", nil, nil); err == nil {
		t.Fatal("expected NotFound for unknown conflict id")
	}
	if err := r.Dismiss("missing"); err == nil {
		t.Fatal("expected NotFound for unknown conflict id on dismiss")
	}
}

func TestConflictDismiss(t *testing.T) {
	r := NewConflictResolver(DefaultConflictConfig())
	c := r.DetectConflict("entity-1", []string{ModalityGraph, ModalitySemantic}, 0.1, "not worth resolving")
	if err := r.Dismiss(c.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	history := r.History()
	if len(history) != 1 || history[0].Status != ConflictDismissed {
		t.Fatalf("expected dismissed history entry, got %+v", history)
	}
}

func TestConflictHistoryEvictsFIFO(t *testing.T) {
	cfg := DefaultConflictConfig()
	cfg.MaxHistoryEntries = 2
	r := NewConflictResolver(cfg)

	first := r.DetectConflict("e1", []string{ModalityGraph, ModalitySemantic}, 0.1, "first")
	second := r.DetectConflict("e2", []string{ModalityGraph, ModalitySemantic}, 0.1, "second")
	third := r.DetectConflict("e3", []string{ModalityGraph, ModalitySemantic}, 0.1, "third")

	for _, c := range []*Conflict{first, second, third} {
		if _, err := r.Resolve(c.ID, nil, nil); err != nil {
			t.Fatalf("resolve %s: %v", c.ID, err)
		}
	}

	history := r.History()
	if len(history) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(history))
	}
	if history[0].EntityID != "e2" || history[1].EntityID != "e3" {
		t.Fatalf("expected FIFO eviction to drop e1, got %+v", history)
	}
}

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return ts
}
