package core

import (
	"testing"
	"time"
)

func TestDriftDetectorMovingAverage(t *testing.T) {
	d := NewDriftDetector(DefaultDriftThresholds())
	d.Observe(DriftEvent{Type: DriftSemanticVector, Score: 0.2})
	d.Observe(DriftEvent{Type: DriftSemanticVector, Score: 0.6})

	m := d.Metrics(DriftSemanticVector)
	if m.MeasurementCount != 2 {
		t.Fatalf("expected 2 measurements, got %d", m.MeasurementCount)
	}
	if m.CurrentScore != 0.6 {
		t.Errorf("expected current score 0.6, got %f", m.CurrentScore)
	}
	if m.MaxScore != 0.6 {
		t.Errorf("expected max score 0.6, got %f", m.MaxScore)
	}
	if m.MovingAverage < 0.39 || m.MovingAverage > 0.41 {
		t.Errorf("expected moving average ~0.4, got %f", m.MovingAverage)
	}
}

func TestDriftDetectorHealthStatus(t *testing.T) {
	d := NewDriftDetector(DefaultDriftThresholds())
	if got := d.HealthStatus(); got != "healthy" {
		t.Fatalf("expected healthy with no observations, got %s", got)
	}
	d.Observe(DriftEvent{Type: DriftQuality, Score: 0.6})
	if got := d.HealthStatus(); got != "degraded" {
		t.Fatalf("expected degraded at score 0.6, got %s", got)
	}
	d.Observe(DriftEvent{Type: DriftSchema, Score: 0.9})
	if got := d.HealthStatus(); got != "critical" {
		t.Fatalf("expected critical at score 0.9, got %s", got)
	}
}

func TestNormalizerBelowThresholdDoesNothing(t *testing.T) {
	n := NewNormalizer(NewDriftDetector(DefaultDriftThresholds()))
	h := &Hexad{ID: "e-1", DocumentData: &Document{Title: "t"}}

	res := n.HandleEvent(h, DriftEvent{Type: DriftSemanticVector, Score: 0.1})
	if res.Applied {
		t.Fatal("expected no repair below min_score")
	}
	if c := n.Counters(); c.Completed != 0 {
		t.Errorf("expected no completed repairs, got %d", c.Completed)
	}
}

func TestNormalizerSemanticVectorRegeneratesFromDocument(t *testing.T) {
	n := NewNormalizer(NewDriftDetector(DefaultDriftThresholds()))
	h := &Hexad{ID: "e-1", DocumentData: &Document{Title: "t", Body: "b"}}

	res := n.HandleEvent(h, DriftEvent{Type: DriftSemanticVector, Score: 0.7})
	if !res.Applied {
		t.Fatal("expected repair to apply")
	}
	if len(res.Changes) != 1 || res.Changes[0].Modality != ModalityVector {
		t.Fatalf("expected a single vector change, got %+v", res.Changes)
	}
	if c := n.Counters(); c.Completed != 1 {
		t.Errorf("expected 1 completed repair, got %d", c.Completed)
	}
}

func TestNormalizerTemporalRepairCorrectsInvariants(t *testing.T) {
	n := NewNormalizer(NewDriftDetector(DefaultDriftThresholds()))
	now := time.Now().UTC()
	h := &Hexad{
		ID:           "e-1",
		Status:       Status{CreatedAt: now.Add(time.Hour), ModifiedAt: now, Version: 3},
		VersionCount: 1,
	}

	res := n.HandleEvent(h, DriftEvent{Type: DriftTemporalConsistency, Score: 0.5})
	if !res.Applied {
		t.Fatal("expected temporal repair to apply")
	}
	if len(res.Changes) != 2 {
		t.Fatalf("expected corrections for timestamp order and version_count, got %+v", res.Changes)
	}
}

func TestNormalizerQualityCascadesAllStrategies(t *testing.T) {
	n := NewNormalizer(NewDriftDetector(DefaultDriftThresholds()))
	h := &Hexad{
		ID:           "e-1",
		Status:       Status{Version: 1},
		VersionCount: 1,
		DocumentData: &Document{Title: "t"},
		Embedding:    &Embedding{Vector: []float32{1, 0}},
	}

	res := n.HandleEvent(h, DriftEvent{Type: DriftQuality, Score: 0.6})
	if !res.Applied {
		t.Fatal("expected cascading quality repair to apply")
	}
	// semantic-vector, graph-document and tensor strategies all fire for
	// a hexad with document + embedding; temporal invariants hold.
	if len(res.Changes) != 3 {
		t.Fatalf("expected 3 cascaded changes, got %+v", res.Changes)
	}
}

func TestNormalizerResultsChannelReceives(t *testing.T) {
	n := NewNormalizer(NewDriftDetector(DefaultDriftThresholds()))
	h := &Hexad{ID: "e-1", DocumentData: &Document{Title: "t"}}

	n.HandleEvent(h, DriftEvent{Type: DriftSemanticVector, Score: 0.7})
	select {
	case res := <-n.Results():
		if !res.Applied {
			t.Errorf("expected applied result on channel, got %+v", res)
		}
	default:
		t.Fatal("expected a buffered result on the channel")
	}
}
