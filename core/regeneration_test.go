package core

import "testing"

func TestRegenerationPicksHighestAuthorityPresent(t *testing.T) {
	e := NewRegenerationEngine()
	h := &Hexad{
		ID:           "e-1",
		DocumentData: &Document{Title: "t"},
		Embedding:    &Embedding{Vector: []float32{1, 0}},
	}

	event, err := e.Regenerate(h, ModalityVector, 0.7, 0.1)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if event.Authoritative != ModalityDocument {
		t.Errorf("expected document as authority, got %s", event.Authoritative)
	}
	if event.DriftedModality != ModalityVector {
		t.Errorf("expected vector as drifted modality, got %s", event.DriftedModality)
	}
	if len(e.History()) != 1 {
		t.Fatalf("expected 1 history event, got %d", len(e.History()))
	}
}

func TestRegenerationSkipsDriftedModality(t *testing.T) {
	e := NewRegenerationEngine()
	h := &Hexad{
		ID:           "e-1",
		DocumentData: &Document{Title: "t"},
	}

	// Document is both the only modality present and the drifted one;
	// no other authority exists.
	_, err := e.Regenerate(h, ModalityDocument, 0.5, 0.1)
	if err == nil {
		t.Fatal("expected error when no other authoritative modality is present")
	}
	if verr, ok := err.(*Error); !ok || verr.Code != CodeNotFound {
		t.Fatalf("expected NotFound *Error, got %T: %v", err, err)
	}
}

func TestRegenerationCustomAuthorityOrder(t *testing.T) {
	e := NewRegenerationEngine()
	e.SetAuthorityOrder([]string{ModalitySemantic, ModalityDocument})
	h := &Hexad{
		ID:           "e-1",
		DocumentData: &Document{Title: "t"},
		SemanticData: &Semantic{Types: []string{"ex:Person"}},
	}

	event, err := e.Regenerate(h, ModalityVector, 0.5, 0.1)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if event.Authoritative != ModalitySemantic {
		t.Errorf("expected semantic per custom order, got %s", event.Authoritative)
	}
}

func TestRegenerationUserResolveRefusesAutomatic(t *testing.T) {
	e := NewRegenerationEngine()
	e.SetStrategy(ModalityVector, UserResolve)
	h := &Hexad{ID: "e-1", DocumentData: &Document{Title: "t"}}

	_, err := e.Regenerate(h, ModalityVector, 0.5, 0.1)
	if err == nil {
		t.Fatal("expected UserResolve to refuse automatic regeneration")
	}
	if verr, ok := err.(*Error); !ok || verr.Code != CodeConflict {
		t.Fatalf("expected Conflict *Error, got %T: %v", err, err)
	}
}

func TestRegenerationMergeAnnotatesChange(t *testing.T) {
	e := NewRegenerationEngine()
	e.SetStrategy(ModalityVector, Merge)
	h := &Hexad{ID: "e-1", DocumentData: &Document{Title: "t"}}

	event, err := e.Regenerate(h, ModalityVector, 0.5, 0.1)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	want := "merged vector with regenerated data from document"
	if event.Change.Description != want {
		t.Errorf("expected %q, got %q", want, event.Change.Description)
	}
}
