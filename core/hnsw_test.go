package core

import (
	"math"
	"testing"
)

func TestHnswEmptySearchReturnsEmpty(t *testing.T) {
	h := NewHnsw(DefaultHnswConfig(3, MetricCosine))
	results, err := h.Search([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("search on empty index: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %v", results)
	}
}

func TestHnswBasicRecall(t *testing.T) {
	h := NewHnsw(DefaultHnswConfig(3, MetricCosine))
	if err := h.Upsert("e1", []float32{1, 0, 0}, nil); err != nil {
		t.Fatalf("upsert e1: %v", err)
	}
	if err := h.Upsert("e2", []float32{0.9, 0.1, 0}, nil); err != nil {
		t.Fatalf("upsert e2: %v", err)
	}
	if err := h.Upsert("e3", []float32{0, 1, 0}, nil); err != nil {
		t.Fatalf("upsert e3: %v", err)
	}

	results, err := h.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "e1" {
		t.Errorf("expected e1 first, got %s", results[0].ID)
	}
	if math.Abs(results[0].Similarity-1.0) > 1e-6 {
		t.Errorf("expected e1 similarity ~1.0, got %f", results[0].Similarity)
	}
	if results[1].ID != "e2" {
		t.Errorf("expected e2 second, got %s", results[1].ID)
	}
	if math.Abs(results[1].Similarity-0.994) > 0.01 {
		t.Errorf("expected e2 similarity ~0.994, got %f", results[1].Similarity)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Fatalf("results not monotonically non-increasing: %+v", results)
		}
	}
}

func TestHnswUpsertInPlace(t *testing.T) {
	h := NewHnsw(DefaultHnswConfig(2, MetricEuclidean))
	if err := h.Upsert("a", []float32{0, 0}, map[string]string{"v": "1"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := h.Upsert("a", []float32{1, 1}, map[string]string{"v": "2"}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	vec, meta, ok := h.Get("a")
	if !ok {
		t.Fatal("expected a to be present")
	}
	if vec[0] != 1 || vec[1] != 1 {
		t.Errorf("expected updated vector, got %v", vec)
	}
	if meta["v"] != "2" {
		t.Errorf("expected updated metadata, got %v", meta)
	}
	if h.Len() != 1 {
		t.Errorf("expected a single logical node after upsert-in-place, got %d", h.Len())
	}
}

func TestHnswSoftDelete(t *testing.T) {
	h := NewHnsw(DefaultHnswConfig(2, MetricCosine))
	h.Upsert("a", []float32{1, 0}, nil)
	h.Upsert("b", []float32{0, 1}, nil)

	if !h.Delete("a") {
		t.Fatal("expected delete to succeed")
	}
	if h.Len() != 1 {
		t.Errorf("expected 1 live node after delete, got %d", h.Len())
	}
	results, err := h.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		if r.ID == "a" {
			t.Fatalf("deleted node %q should not appear in search results", r.ID)
		}
	}
}

func TestHnswDimensionMismatch(t *testing.T) {
	h := NewHnsw(DefaultHnswConfig(3, MetricCosine))
	if err := h.Upsert("a", []float32{1, 0}, nil); err == nil {
		t.Fatal("expected validation error on dimension mismatch")
	}
	if _, err := h.Search([]float32{1, 0}, 1); err == nil {
		t.Fatal("expected validation error on query dimension mismatch")
	}
}

func TestHnswRejectsNaNAndInf(t *testing.T) {
	h := NewHnsw(DefaultHnswConfig(2, MetricCosine))
	if err := h.Upsert("a", []float32{float32(math.NaN()), 0}, nil); err == nil {
		t.Fatal("expected validation error on NaN component")
	}
	if err := h.Upsert("b", []float32{float32(math.Inf(1)), 0}, nil); err == nil {
		t.Fatal("expected validation error on infinite component")
	}
}

func TestHnswLargerGraphRecall(t *testing.T) {
	h := NewHnsw(DefaultHnswConfig(2, MetricEuclidean))
	for i := 0; i < 200; i++ {
		angle := float64(i) * 0.03
		v := []float32{float32(math.Cos(angle) * 10), float32(math.Sin(angle) * 10)}
		if err := h.Upsert(idFor(i), v, nil); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	results, err := h.Search([]float32{10, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Fatalf("results not monotonically non-increasing at %d: %+v", i, results)
		}
	}
}

func idFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	if i < len(letters) {
		return "n-" + string(letters[i])
	}
	return "n-" + string(letters[i%len(letters)]) + string(letters[(i/len(letters))%len(letters)])
}
