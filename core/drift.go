package core

import "sync"

// DriftType enumerates the fixed set of divergence categories the
// detector tracks
type DriftType int

const (
	DriftSemanticVector DriftType = iota
	DriftGraphDocument
	DriftTensor
	DriftTemporalConsistency
	DriftQuality
	DriftSchema
)

func (t DriftType) String() string {
	switch t {
	case DriftSemanticVector:
		return "semantic_vector"
	case DriftGraphDocument:
		return "graph_document"
	case DriftTensor:
		return "tensor"
	case DriftTemporalConsistency:
		return "temporal_consistency"
	case DriftQuality:
		return "quality"
	default:
		return "schema"
	}
}

// DriftEvent is consumed by the detector to update a type's metrics.
type DriftEvent struct {
	Type        DriftType
	Score       float64
	Description string
}

// DriftMetrics tracks a single DriftType's running statistics.
type DriftMetrics struct {
	CurrentScore     float64
	MovingAverage    float64
	MaxScore         float64
	MeasurementCount uint64
}

// DriftThresholds configures when normalization triggers and how health
// is reported.
type DriftThresholds struct {
	MinScore          float64 // triggers normalization
	DegradedThreshold float64
	CriticalThreshold float64
}

// DefaultDriftThresholds mirrors the normalizer's documented defaults.
func DefaultDriftThresholds() DriftThresholds {
	return DriftThresholds{MinScore: 0.3, DegradedThreshold: 0.5, CriticalThreshold: 0.8}
}

// DriftDetector maintains per-type running drift metrics.
type DriftDetector struct {
	mu         sync.Mutex
	thresholds DriftThresholds
	metrics    map[DriftType]*DriftMetrics
}

// NewDriftDetector constructs a detector with all metrics zeroed.
func NewDriftDetector(thresholds DriftThresholds) *DriftDetector {
	d := &DriftDetector{thresholds: thresholds, metrics: make(map[DriftType]*DriftMetrics)}
	for _, t := range []DriftType{DriftSemanticVector, DriftGraphDocument, DriftTensor, DriftTemporalConsistency, DriftQuality, DriftSchema} {
		d.metrics[t] = &DriftMetrics{}
	}
	return d
}

// Observe updates the tracked metrics for event.Type with a simple
// cumulative moving average.
func (d *DriftDetector) Observe(event DriftEvent) DriftMetrics {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.metrics[event.Type]
	m.MeasurementCount++
	m.CurrentScore = event.Score
	if event.Score > m.MaxScore {
		m.MaxScore = event.Score
	}
	n := float64(m.MeasurementCount)
	m.MovingAverage = m.MovingAverage + (event.Score-m.MovingAverage)/n
	return *m
}

// Metrics returns a snapshot of a single type's running metrics.
func (d *DriftDetector) Metrics(t DriftType) DriftMetrics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.metrics[t]
}

// ShouldNormalize reports whether event.Score meets the configured
// min_score threshold.
func (d *DriftDetector) ShouldNormalize(event DriftEvent) bool {
	return event.Score >= d.thresholds.MinScore
}

// OverallScore returns the worst current score across all drift types,
// for health reporting.
func (d *DriftDetector) OverallScore() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	worst := 0.0
	for _, m := range d.metrics {
		if m.CurrentScore > worst {
			worst = m.CurrentScore
		}
	}
	return worst
}

// HealthStatus reports the detector's health classification:
// healthy / degraded / critical, based on the highest current score
// across all types.
func (d *DriftDetector) HealthStatus() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	worst := 0.0
	for _, m := range d.metrics {
		if m.CurrentScore > worst {
			worst = m.CurrentScore
		}
	}
	switch {
	case worst >= d.thresholds.CriticalThreshold:
		return "critical"
	case worst >= d.thresholds.DegradedThreshold:
		return "degraded"
	default:
		return "healthy"
	}
}
