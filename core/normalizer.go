package core

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// NormalizationChange describes a proposed repair produced by a strategy.
type NormalizationChange struct {
	Modality    string
	Description string
}

// NormalizationResult is a strategy's outcome for a single event.
type NormalizationResult struct {
	Applied bool
	Changes []NormalizationChange
	Err     error
}

// NormalizationStrategy declares which drift types it handles and
// implements the repair itself.
type NormalizationStrategy interface {
	Name() string
	AppliesTo(t DriftType) bool
	Normalize(h *Hexad, event DriftEvent) NormalizationResult
}

// SemanticVectorStrategy regenerates the vector embedding from document
// (or semantic) data when they drift apart, treating text as
// authoritative.
type SemanticVectorStrategy struct{}

func (SemanticVectorStrategy) Name() string { return "semantic_vector" }
func (SemanticVectorStrategy) AppliesTo(t DriftType) bool { return t == DriftSemanticVector }
func (SemanticVectorStrategy) Normalize(h *Hexad, event DriftEvent) NormalizationResult {
	if h.DocumentData == nil && h.SemanticData == nil {
		return NormalizationResult{Applied: false}
	}
	return NormalizationResult{
		Applied: true,
		Changes: []NormalizationChange{{Modality: ModalityVector, Description: "regenerate vector from document"}},
	}
}

// GraphDocumentStrategy applies the same policy between graph and
// document views.
type GraphDocumentStrategy struct{}

func (GraphDocumentStrategy) Name() string { return "graph_document" }
func (GraphDocumentStrategy) AppliesTo(t DriftType) bool { return t == DriftGraphDocument }
func (GraphDocumentStrategy) Normalize(h *Hexad, event DriftEvent) NormalizationResult {
	if h.DocumentData == nil {
		return NormalizationResult{Applied: false}
	}
	return NormalizationResult{
		Applied: true,
		Changes: []NormalizationChange{{Modality: ModalityGraph, Description: "regenerate graph node from document"}},
	}
}

// TensorRegenerationStrategy reshapes the vector embedding into a [1,D]
// tensor, optionally incorporating document TF-IDF features.
type TensorRegenerationStrategy struct{}

func (TensorRegenerationStrategy) Name() string { return "tensor_regeneration" }
func (TensorRegenerationStrategy) AppliesTo(t DriftType) bool { return t == DriftTensor }
func (TensorRegenerationStrategy) Normalize(h *Hexad, event DriftEvent) NormalizationResult {
	if h.Embedding == nil {
		return NormalizationResult{Applied: false}
	}
	desc := "reshape vector embedding into [1,D] tensor"
	if h.DocumentData != nil {
		desc += " incorporating document TF-IDF features"
	}
	return NormalizationResult{
		Applied: true,
		Changes: []NormalizationChange{{Modality: ModalityTensor, Description: desc}},
	}
}

// TemporalRepairStrategy enforces the temporal invariants: created_at <=
// modified_at, version >= 1, version_count >= version.
type TemporalRepairStrategy struct{}

func (TemporalRepairStrategy) Name() string { return "temporal_repair" }
func (TemporalRepairStrategy) AppliesTo(t DriftType) bool { return t == DriftTemporalConsistency }
func (TemporalRepairStrategy) Normalize(h *Hexad, event DriftEvent) NormalizationResult {
	var changes []NormalizationChange
	if h.Status.CreatedAt.After(h.Status.ModifiedAt) {
		changes = append(changes, NormalizationChange{Modality: ModalityTemporal, Description: "corrected modified_at to match created_at"})
	}
	if h.Status.Version < 1 {
		changes = append(changes, NormalizationChange{Modality: ModalityTemporal, Description: "corrected version to 1"})
	}
	if h.VersionCount < h.Status.Version {
		changes = append(changes, NormalizationChange{Modality: ModalityTemporal, Description: "corrected version_count to match version"})
	}
	return NormalizationResult{Applied: len(changes) > 0, Changes: changes}
}

// QualityReconciliationStrategy cascades the other four strategies in
// order; it succeeds iff no inner strategy returns a fatal error.
type QualityReconciliationStrategy struct {
	inner []NormalizationStrategy
}

// NewQualityReconciliationStrategy builds the cascading strategy over the
// four data-repair strategies.
func NewQualityReconciliationStrategy() *QualityReconciliationStrategy {
	return &QualityReconciliationStrategy{inner: []NormalizationStrategy{
		SemanticVectorStrategy{}, GraphDocumentStrategy{}, TensorRegenerationStrategy{}, TemporalRepairStrategy{},
	}}
}

func (s *QualityReconciliationStrategy) Name() string { return "quality_reconciliation" }
func (s *QualityReconciliationStrategy) AppliesTo(t DriftType) bool { return t == DriftQuality }
func (s *QualityReconciliationStrategy) Normalize(h *Hexad, event DriftEvent) NormalizationResult {
	var all []NormalizationChange
	for _, strat := range s.inner {
		res := strat.Normalize(h, event)
		if res.Err != nil {
			return NormalizationResult{Applied: false, Err: res.Err}
		}
		all = append(all, res.Changes...)
	}
	return NormalizationResult{Applied: len(all) > 0, Changes: all}
}

// NormalizerCounters tracks pending/active/completed/failure totals.
type NormalizerCounters struct {
	Pending   int64
	Active    int64
	Completed int64
	Failure   int64
}

// Normalizer holds an ordered list of pluggable strategies and drives
// repairs when drift crosses the detector's min_score threshold.
type Normalizer struct {
	mu         sync.Mutex
	strategies []NormalizationStrategy
	detector   *DriftDetector
	counters   NormalizerCounters
	results    chan NormalizationResult
}

// NewNormalizer constructs a normalizer with the five built-in
// strategies in the documented order, backed by detector.
func NewNormalizer(detector *DriftDetector) *Normalizer {
	return &Normalizer{
		detector: detector,
		strategies: []NormalizationStrategy{
			SemanticVectorStrategy{},
			GraphDocumentStrategy{},
			TensorRegenerationStrategy{},
			TemporalRepairStrategy{},
			NewQualityReconciliationStrategy(),
		},
		results: make(chan NormalizationResult, 64),
	}
}

// Results exposes the async result channel consumers can drain (adapted
// for an optional gorilla/websocket push feed at the transport layer).
func (n *Normalizer) Results() <-chan NormalizationResult { return n.results }

// HandleEvent runs detector.Observe, then, if the score crosses
// min_score, invokes the first strategy that applies to event.Type.
func (n *Normalizer) HandleEvent(h *Hexad, event DriftEvent) NormalizationResult {
	n.detector.Observe(event)
	if !n.detector.ShouldNormalize(event) {
		return NormalizationResult{Applied: false}
	}

	atomic.AddInt64(&n.counters.Pending, 1)
	atomic.AddInt64(&n.counters.Active, 1)
	defer atomic.AddInt64(&n.counters.Active, -1)

	n.mu.Lock()
	strategies := n.strategies
	n.mu.Unlock()

	for _, s := range strategies {
		if !s.AppliesTo(event.Type) {
			continue
		}
		result := s.Normalize(h, event)
		if result.Err != nil {
			atomic.AddInt64(&n.counters.Failure, 1)
			zap.L().Sugar().Warnw("normalizer: strategy failed", "strategy", s.Name(), "error", result.Err)
		} else {
			atomic.AddInt64(&n.counters.Completed, 1)
		}
		select {
		case n.results <- result:
		default:
		}
		return result
	}
	return NormalizationResult{Applied: false}
}

// Counters returns a snapshot of the pending/active/completed/failure
// totals.
func (n *Normalizer) Counters() NormalizerCounters {
	return NormalizerCounters{
		Pending:   atomic.LoadInt64(&n.counters.Pending),
		Active:    atomic.LoadInt64(&n.counters.Active),
		Completed: atomic.LoadInt64(&n.counters.Completed),
		Failure:   atomic.LoadInt64(&n.counters.Failure),
	}
}
