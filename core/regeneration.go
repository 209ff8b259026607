package core

import "sync"

// RegenerationStrategy selects how a drifted modality is rebuilt.
type RegenerationStrategy int

const (
	FromAuthoritative RegenerationStrategy = iota
	Merge
	UserResolve
)

// DefaultAuthorityOrder ranks modalities by default authority, highest
// first
var DefaultAuthorityOrder = []string{
	ModalityDocument, ModalitySemantic, ModalityProvenance, ModalityGraph,
	ModalityVector, ModalityTensor, ModalitySpatial, ModalityTemporal,
}

// ModalityRegenerator rebuilds a drifted modality's data from an
// authoritative source. Pluggable per deployment.
type ModalityRegenerator interface {
	Regenerate(h *Hexad, drifted, authoritative string) (NormalizationChange, error)
}

// defaultRegenerator implements the built-in regeneration descriptions
// used when no custom regenerator is registered.
type defaultRegenerator struct{}

func (defaultRegenerator) Regenerate(h *Hexad, drifted, authoritative string) (NormalizationChange, error) {
	return NormalizationChange{
		Modality:    drifted,
		Description: "regenerated " + drifted + " from authoritative " + authoritative,
	}, nil
}

// NormalizationEvent records the outcome of a single regeneration pass.
type NormalizationEvent struct {
	HexadID         string
	DriftedModality string
	Authoritative   string
	PreDriftScore   float64
	PostDriftScore  float64
	Change          NormalizationChange
}

// RegenerationEngine queries the first authoritative modality present
// (other than the drifted one) in authority order and invokes the
// pluggable regenerator. Each modality carries its own
// RegenerationStrategy; FromAuthoritative is the default for all eight.
type RegenerationEngine struct {
	mu             sync.Mutex
	authorityOrder []string
	strategies     map[string]RegenerationStrategy
	regenerator    ModalityRegenerator
	history        []NormalizationEvent
}

// NewRegenerationEngine constructs an engine over the default authority
// order and the built-in regenerator.
func NewRegenerationEngine() *RegenerationEngine {
	return &RegenerationEngine{
		authorityOrder: append([]string{}, DefaultAuthorityOrder...),
		strategies:     make(map[string]RegenerationStrategy),
		regenerator:    defaultRegenerator{},
	}
}

// SetStrategy overrides the regeneration strategy for one modality.
func (e *RegenerationEngine) SetStrategy(modality string, s RegenerationStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[modality] = s
}

// StrategyFor returns the configured strategy for modality, defaulting
// to FromAuthoritative.
func (e *RegenerationEngine) StrategyFor(modality string) RegenerationStrategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strategies[modality]
}

// SetAuthorityOrder overrides the ranked modality order.
func (e *RegenerationEngine) SetAuthorityOrder(order []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.authorityOrder = append([]string{}, order...)
}

// SetRegenerator installs a custom ModalityRegenerator.
func (e *RegenerationEngine) SetRegenerator(r ModalityRegenerator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.regenerator = r
}

func hexadHasModality(h *Hexad, modality string) bool {
	switch modality {
	case ModalityGraph:
		return h.GraphNode != nil
	case ModalityVector:
		return h.Embedding != nil
	case ModalityTensor:
		return h.TensorData != nil
	case ModalitySemantic:
		return h.SemanticData != nil
	case ModalityDocument:
		return h.DocumentData != nil
	case ModalityTemporal:
		return h.VersionCount > 0
	case ModalitySpatial:
		return h.Spatial != nil
	case ModalityProvenance:
		return h.ProvenanceChainLength > 0
	default:
		return false
	}
}

// Regenerate finds the first authoritative modality present on h (other
// than drifted), invokes the regenerator per the drifted modality's
// configured strategy, and records a NormalizationEvent. UserResolve
// refuses automatic regeneration; Merge annotates the change rather than
// replacing the drifted view wholesale.
func (e *RegenerationEngine) Regenerate(h *Hexad, drifted string, preScore, postScore float64) (*NormalizationEvent, error) {
	e.mu.Lock()
	order := e.authorityOrder
	strategy := e.strategies[drifted]
	regen := e.regenerator
	e.mu.Unlock()

	if strategy == UserResolve {
		return nil, Conflictf("modality %s requires user resolution, not automatic regeneration", drifted)
	}

	for _, candidate := range order {
		if candidate == drifted {
			continue
		}
		if !hexadHasModality(h, candidate) {
			continue
		}
		change, err := regen.Regenerate(h, drifted, candidate)
		if err != nil {
			return nil, err
		}
		if strategy == Merge {
			change.Description = "merged " + drifted + " with regenerated data from " + candidate
		}
		event := NormalizationEvent{
			HexadID:         h.ID,
			DriftedModality: drifted,
			Authoritative:   candidate,
			PreDriftScore:   preScore,
			PostDriftScore:  postScore,
			Change:          change,
		}
		e.mu.Lock()
		e.history = append(e.history, event)
		e.mu.Unlock()
		return &event, nil
	}
	return nil, NotFoundf("no authoritative modality present to regenerate %s", drifted)
}

// History returns every recorded normalization event.
func (e *RegenerationEngine) History() []NormalizationEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]NormalizationEvent, len(e.history))
	copy(out, e.history)
	return out
}
