package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConflictPolicyKind names a conflict resolution strategy
type ConflictPolicyKind int

const (
	PolicyLastWriterWins ConflictPolicyKind = iota
	PolicyModalityPriority
	PolicyManualResolve
	PolicyAutoMerge
	PolicyCustom
)

// ConflictPolicy pairs a policy kind with its payload: a priority order
// for ModalityPriority, a name for Custom.
type ConflictPolicy struct {
	Kind           ConflictPolicyKind
	PriorityOrder  []string
	CustomName     string
}

func (p ConflictPolicy) String() string {
	switch p.Kind {
	case PolicyModalityPriority:
		return "modality_priority"
	case PolicyManualResolve:
		return "manual_resolve"
	case PolicyAutoMerge:
		return "auto_merge"
	case PolicyCustom:
		return "custom(" + p.CustomName + ")"
	default:
		return "last_writer_wins"
	}
}

// ConflictStatus is a conflict's lifecycle state.
type ConflictStatus int

const (
	ConflictOpen ConflictStatus = iota
	ConflictInProgress
	ConflictResolved
	ConflictDismissed
)

// ConflictResolution records how a conflict was resolved.
type ConflictResolution struct {
	ResolvedAt      time.Time
	PolicyUsed      ConflictPolicy
	WinningModality string // empty if the policy produced no single winner
	Resolver        string
	Notes           string
}

// Conflict is a detected disagreement between two or more modalities on
// one entity.
type Conflict struct {
	ID                    string
	EntityID              string
	DetectedAt            time.Time
	ConflictingModalities []string
	DriftScore            float64
	Description           string
	Status                ConflictStatus
	Resolution            *ConflictResolution
}

type modalityPair struct{ a, b string }

func pairKey(a, b string) modalityPair {
	if a > b {
		a, b = b, a
	}
	return modalityPair{a, b}
}

// ConflictConfig controls the default policy, per-pair overrides, and
// the auto/manual threshold gates.
type ConflictConfig struct {
	DefaultPolicy        ConflictPolicy
	PerModalityPolicies  map[modalityPair]ConflictPolicy
	AutoResolveThreshold float64
	RequireManualAbove   float64
	MaxHistoryEntries    int
}

// DefaultConflictConfig returns the default threshold gates and policy.
func DefaultConflictConfig() ConflictConfig {
	return ConflictConfig{
		DefaultPolicy:        ConflictPolicy{Kind: PolicyLastWriterWins},
		PerModalityPolicies:  make(map[modalityPair]ConflictPolicy),
		AutoResolveThreshold: 0.3,
		RequireManualAbove:   0.8,
		MaxHistoryEntries:    1000,
	}
}

// PolicyForPair looks up a's/b's override, falling back to DefaultPolicy.
func (c ConflictConfig) PolicyForPair(a, b string) ConflictPolicy {
	if p, ok := c.PerModalityPolicies[pairKey(a, b)]; ok {
		return p
	}
	return c.DefaultPolicy
}

// SetPerPairPolicy installs an override for the (a, b) modality pair,
// order-independent.
func (c *ConflictConfig) SetPerPairPolicy(a, b string, p ConflictPolicy) {
	if c.PerModalityPolicies == nil {
		c.PerModalityPolicies = make(map[modalityPair]ConflictPolicy)
	}
	c.PerModalityPolicies[pairKey(a, b)] = p
}

// ConflictResolver tracks conflicts through {Open -> InProgress ->
// Resolved | Dismissed} and applies policies to determine winners.
// Coexists with, and does not replace, RegenerationEngine.
type ConflictResolver struct {
	mu     sync.Mutex
	config ConflictConfig
	active []*Conflict
	history []*Conflict
}

// NewConflictResolver constructs a resolver over config.
func NewConflictResolver(config ConflictConfig) *ConflictResolver {
	return &ConflictResolver{config: config}
}

// Config returns the resolver's configuration.
func (r *ConflictResolver) Config() ConflictConfig { return r.config }

// DetectConflict records a new Open conflict and returns it.
func (r *ConflictResolver) DetectConflict(entityID string, modalities []string, driftScore float64, description string) *Conflict {
	c := &Conflict{
		ID:                    uuid.NewString(),
		EntityID:              entityID,
		DetectedAt:            time.Now().UTC(),
		ConflictingModalities: append([]string{}, modalities...),
		DriftScore:            driftScore,
		Description:           description,
		Status:                ConflictOpen,
	}
	r.mu.Lock()
	r.active = append(r.active, c)
	r.mu.Unlock()
	return c
}

// ModalityTimestamp supplies the wall-clock time a modality's data was
// last written, used by LastWriterWins.
type ModalityTimestamp struct {
	Modality string
	WrittenAt time.Time
}

// Resolve applies policy (or, if nil, the config-derived policy) to the
// named conflict. A drift_score at or above require_manual_above always
// forces ManualResolve regardless of the requested policy.
func (r *ConflictResolver) Resolve(conflictID string, policy *ConflictPolicy, writes []ModalityTimestamp) (*ConflictResolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var conflict *Conflict
	idx := -1
	for i, c := range r.active {
		if c.ID == conflictID {
			conflict = c
			idx = i
			break
		}
	}
	if conflict == nil {
		return nil, NotFoundf("conflict %s not found", conflictID)
	}
	if conflict.Status == ConflictResolved || conflict.Status == ConflictDismissed {
		return nil, Conflictf("conflict %s already resolved", conflictID)
	}

	if conflict.DriftScore >= r.config.RequireManualAbove {
		conflict.Status = ConflictInProgress
		return nil, Conflictf("conflict %s requires manual resolution (drift %.2f >= %.2f)",
			conflictID, conflict.DriftScore, r.config.RequireManualAbove)
	}

	effective := r.config.DefaultPolicy
	if len(conflict.ConflictingModalities) >= 2 {
		effective = r.config.PolicyForPair(conflict.ConflictingModalities[0], conflict.ConflictingModalities[1])
	}
	if policy != nil {
		effective = *policy
	}

	if effective.Kind == PolicyManualResolve {
		conflict.Status = ConflictInProgress
		return nil, Conflictf("conflict %s policy requires manual resolution", conflictID)
	}
	if effective.Kind == PolicyCustom {
		conflict.Status = ConflictInProgress
		return nil, Conflictf("conflict %s delegated to custom resolver %q", conflictID, effective.CustomName)
	}
	if conflict.DriftScore > r.config.AutoResolveThreshold && effective.Kind != PolicyModalityPriority {
		// Above the auto-resolve cutoff: only a priority-ranked policy (a
		// deterministic, non-heuristic choice) is still applied automatically.
		conflict.Status = ConflictInProgress
		return nil, Conflictf("conflict %s drift %.2f exceeds auto_resolve_threshold %.2f", conflictID, conflict.DriftScore, r.config.AutoResolveThreshold)
	}

	resolution := &ConflictResolution{ResolvedAt: time.Now().UTC(), PolicyUsed: effective, Resolver: "system"}

	switch effective.Kind {
	case PolicyLastWriterWins:
		resolution.WinningModality = latestWriter(writes)
	case PolicyModalityPriority:
		resolution.WinningModality = highestPriority(conflict.ConflictingModalities, effective.PriorityOrder)
	case PolicyAutoMerge:
		resolution.Notes = "merged; no single winning modality"
	}

	conflict.Status = ConflictResolved
	conflict.Resolution = resolution
	r.active = append(r.active[:idx], r.active[idx+1:]...)
	r.pushHistory(conflict)
	return resolution, nil
}

// ResolveManual finishes an InProgress/Open conflict with a
// human-supplied winner and notes.
func (r *ConflictResolver) ResolveManual(conflictID, resolver, winningModality, notes string) (*ConflictResolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	var conflict *Conflict
	for i, c := range r.active {
		if c.ID == conflictID {
			conflict, idx = c, i
			break
		}
	}
	if conflict == nil {
		return nil, NotFoundf("conflict %s not found", conflictID)
	}
	resolution := &ConflictResolution{
		ResolvedAt:      time.Now().UTC(),
		PolicyUsed:      ConflictPolicy{Kind: PolicyManualResolve},
		WinningModality: winningModality,
		Resolver:        resolver,
		Notes:           notes,
	}
	conflict.Status = ConflictResolved
	conflict.Resolution = resolution
	r.active = append(r.active[:idx], r.active[idx+1:]...)
	r.pushHistory(conflict)
	return resolution, nil
}

// Dismiss marks a conflict Dismissed without a resolution.
func (r *ConflictResolver) Dismiss(conflictID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	var conflict *Conflict
	for i, c := range r.active {
		if c.ID == conflictID {
			conflict, idx = c, i
			break
		}
	}
	if conflict == nil {
		return NotFoundf("conflict %s not found", conflictID)
	}
	conflict.Status = ConflictDismissed
	r.active = append(r.active[:idx], r.active[idx+1:]...)
	r.pushHistory(conflict)
	return nil
}

// pushHistory appends to history, evicting oldest entries FIFO once
// max_history_entries is exceeded. Must be called with r.mu held.
func (r *ConflictResolver) pushHistory(c *Conflict) {
	r.history = append(r.history, c)
	max := r.config.MaxHistoryEntries
	if max > 0 && len(r.history) > max {
		r.history = r.history[len(r.history)-max:]
	}
}

// Active returns a snapshot of currently active conflicts.
func (r *ConflictResolver) Active() []*Conflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conflict, len(r.active))
	copy(out, r.active)
	return out
}

// History returns a snapshot of resolved/dismissed conflicts.
func (r *ConflictResolver) History() []*Conflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conflict, len(r.history))
	copy(out, r.history)
	return out
}

func latestWriter(writes []ModalityTimestamp) string {
	best := ""
	var bestAt time.Time
	for _, w := range writes {
		if best == "" || w.WrittenAt.After(bestAt) {
			best, bestAt = w.Modality, w.WrittenAt
		}
	}
	return best
}

func highestPriority(conflicting, order []string) string {
	rank := make(map[string]int, len(order))
	for i, m := range order {
		rank[m] = i
	}
	best := ""
	bestRank := len(order) + 1
	for _, m := range conflicting {
		r, ok := rank[m]
		if !ok {
			r = len(order) // unranked modalities sort lowest
		}
		if best == "" || r < bestRank {
			best, bestRank = m, r
		}
	}
	return best
}
