package core

import (
	"strings"
)

// PlanSource names where a logical plan's rows originate.
type PlanSource int

const (
	SourceHexad PlanSource = iota
	SourceFederation
	SourceStore
)

// ConditionKind enumerates the filter shapes a PlanNode may carry.
type ConditionKind int

const (
	ConditionEquality ConditionKind = iota
	ConditionRange
	ConditionSimilarity
	ConditionFulltext
	ConditionTraversal
	ConditionAtTime
	ConditionProofVerification
	ConditionPredicate
)

// Condition is one filter attached to a PlanNode. Only the fields
// relevant to Kind are populated: a tagged union carrying every variant's
// payload on one struct rather than an interface per kind, which keeps
// the cost model's per-condition switch branch-free to write.
type Condition struct {
	Kind ConditionKind

	// Similarity
	K int

	// Traversal
	Predicate string
	Depth     int

	// AtTime
	Timestamp int64

	// ProofVerification
	ProofContract ProofContractKind

	// Predicate (VQL OR/NOT, broadcast to every active modality node per
	// "broadcast of compound conditions")
	Expression string
}

// ProofContractKind enumerates the proof-obligation cost classes.
type ProofContractKind int

const (
	ProofExistence ProofContractKind = iota
	ProofCitation
	ProofAccess
	ProofIntegrity
	ProofProvenance
	ProofZKPOrCustom
)

// PlanNode is one modality-scoped unit of work in a LogicalPlan.
type PlanNode struct {
	Modality    string
	Conditions  []Condition
	Projections []string
	EarlyLimit  int
}

// PostProcessingKind enumerates the post-fetch transformations a logical
// plan may declare.
type PostProcessingKind int

const (
	PPOrderBy PostProcessingKind = iota
	PPLimit
	PPGroupBy
	PPProject
)

// PostProcessing is one post-fetch step.
type PostProcessing struct {
	Kind       PostProcessingKind
	Fields     []string
	Count      int
	Aggregates []string
	Columns    []string
}

// LogicalPlan is a modality-independent query tree: a source, the
// modality-scoped work nodes, and post-fetch processing.
type LogicalPlan struct {
	Source        PlanSource
	FederationIDs []string
	StoreModality string
	Nodes         []PlanNode
	PostProcess   []PostProcessing
}

// OptimizationMode scales the cost model's per-modality base cost.
type OptimizationMode int

const (
	OptConservative OptimizationMode = iota
	OptBalanced
	OptAggressive
)

func (m OptimizationMode) multiplier() float64 {
	switch m {
	case OptConservative:
		return 1.5
	case OptAggressive:
		return 0.8
	default:
		return 1.0
	}
}

// modalityBaseCost is the fixed {time_ms, selectivity} pair per modality,
// cost table.
type modalityBaseCost struct {
	timeMS      float64
	selectivity float64
}

var modalityCosts = map[string]modalityBaseCost{
	ModalityGraph:    {150, 0.2},
	ModalityVector:   {50, 0.01},
	ModalityTensor:   {200, 0.5},
	ModalitySemantic: {300, 0.8},
	ModalityDocument: {80, 0.05},
	ModalityTemporal: {30, 0.1},
}

func proofContractCostMS(k ProofContractKind) float64 {
	switch k {
	case ProofExistence:
		return 1
	case ProofCitation:
		return 5
	case ProofAccess:
		return 15
	case ProofIntegrity:
		return 60
	case ProofProvenance:
		return 30
	default:
		return 300
	}
}

// StepCost breaks down one physical plan step's estimated cost.
type StepCost struct {
	TimeMS      float64
	Selectivity float64
	Hint        string
}

// PlanStep is one ordered unit of the physical plan.
type PlanStep struct {
	Modality   string
	Cost       StepCost
	EarlyLimit int
}

// ExecutionStrategy chooses how step costs combine into a total estimate.
type ExecutionStrategy int

const (
	ExecSequential ExecutionStrategy = iota
	ExecParallel
)

// PhysicalPlan is the cost-estimated, ordered execution plan produced by
// the planner from a LogicalPlan.
type PhysicalPlan struct {
	Steps         []PlanStep
	PostProcess   []PostProcessing
	Strategy      ExecutionStrategy
	TotalTimeMS   float64
	Selectivity   float64
}

func modalityHint(modality string) string {
	switch modality {
	case ModalityVector:
		return "HNSW approximate nearest neighbor"
	case ModalityDocument:
		return "inverted index full-text scan"
	case ModalityGraph:
		return "adjacency traversal"
	case ModalityTensor:
		return "dense tensor fetch"
	case ModalitySemantic:
		return "triple store scan"
	default:
		return "temporal version scan"
	}
}

// StoreStatistics is an optional, possibly stale row-count/selectivity
// hint a modality backend may supply for a more accurate cost estimate.
type StoreStatistics struct {
	Modality    string
	RowCount    int64
	Selectivity float64
	Fresh       bool
}

// PlannerConfig configures the cost model.
type PlannerConfig struct {
	Mode             OptimizationMode
	StatisticsWeight float64 // [0,1]; 0 ignores statistics entirely
}

// DefaultPlannerConfig mirrors the documented balanced default.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{Mode: OptBalanced, StatisticsWeight: 0.5}
}

// Planner compiles LogicalPlans into cost-estimated PhysicalPlans.
type Planner struct {
	cfg   PlannerConfig
	stats map[string]StoreStatistics
}

// NewPlanner constructs a planner over cfg.
func NewPlanner(cfg PlannerConfig) *Planner {
	return &Planner{cfg: cfg, stats: make(map[string]StoreStatistics)}
}

// SetStatistics installs a per-modality statistics hint.
func (p *Planner) SetStatistics(s StoreStatistics) {
	p.stats[s.Modality] = s
}

func applyConditionAdjustment(cost modalityBaseCost, cond Condition) modalityBaseCost {
	switch cond.Kind {
	case ConditionEquality:
		cost.selectivity /= 10
	case ConditionRange:
		cost.selectivity /= 3
	case ConditionSimilarity:
		k := cond.K
		if k <= 0 {
			k = 1
		}
		cost.selectivity = float64(k) / 10000.0
	case ConditionFulltext:
		cost.timeMS *= 0.6
	case ConditionProofVerification:
		cost.timeMS += proofContractCostMS(cond.ProofContract)
	}
	return cost
}

func (p *Planner) nodeCost(node PlanNode) StepCost {
	base, ok := modalityCosts[node.Modality]
	if !ok {
		base = modalityBaseCost{timeMS: 100, selectivity: 0.5}
	}
	for _, c := range node.Conditions {
		base = applyConditionAdjustment(base, c)
	}
	if s, ok := p.stats[node.Modality]; ok && s.Fresh && p.cfg.StatisticsWeight > 0 {
		w := p.cfg.StatisticsWeight
		base.selectivity = base.selectivity*(1-w) + s.Selectivity*w
	}
	mult := p.cfg.Mode.multiplier()
	timeMS := base.timeMS * mult
	if node.EarlyLimit > 0 {
		timeMS *= 0.5
		base.selectivity = base.selectivity * 0.5
	}
	return StepCost{TimeMS: timeMS, Selectivity: base.selectivity, Hint: modalityHint(node.Modality)}
}

func postProcessCost(pp PostProcessing, rows float64) float64 {
	switch pp.Kind {
	case PPOrderBy:
		if rows < 2 {
			return 0
		}
		return rows * logBase2(rows)
	case PPGroupBy:
		return rows
	default:
		return 0.01
	}
}

func logBase2(x float64) float64 {
	if x <= 1 {
		return 0
	}
	n := 0.0
	for x > 1 {
		x /= 2
		n++
	}
	return n
}

// Plan converts a LogicalPlan into a cost-estimated PhysicalPlan using
// ExecSequential for a single-modality plan and ExecParallel when the
// logical plan fans out to more than one modality concurrently.
func (p *Planner) Plan(lp LogicalPlan) PhysicalPlan {
	steps := make([]PlanStep, 0, len(lp.Nodes))
	var totalSeq, maxParallel, sel float64
	sel = 1
	for _, n := range lp.Nodes {
		cost := p.nodeCost(n)
		steps = append(steps, PlanStep{Modality: n.Modality, Cost: cost, EarlyLimit: n.EarlyLimit})
		totalSeq += cost.TimeMS
		if cost.TimeMS > maxParallel {
			maxParallel = cost.TimeMS
		}
		sel *= cost.Selectivity
	}

	strategy := ExecSequential
	if len(lp.Nodes) > 1 {
		strategy = ExecParallel
	}

	total := totalSeq
	if strategy == ExecParallel {
		total = maxParallel
	}

	estimatedRows := sel * 10000
	for _, pp := range lp.PostProcess {
		total += postProcessCost(pp, estimatedRows)
	}

	return PhysicalPlan{
		Steps:       steps,
		PostProcess: lp.PostProcess,
		Strategy:    strategy,
		TotalTimeMS: total,
		Selectivity: sel,
	}
}

// fingerprintKeywords is the recognised keyword set lowercased during
// fingerprinting
var fingerprintKeywords = map[string]bool{}

func init() {
	for _, kw := range strings.Fields(
		"select where from search limit order by group and or not join on as having " +
			"insert update delete set into values with union intersect except exists " +
			"between like in is null true false asc desc distinct all any some case " +
			"when then else end proof verify drift hexad modality graph vector tensor " +
			"semantic document temporal") {
		fingerprintKeywords[kw] = true
	}
}

// NormalizeQueryText collapses whitespace to single spaces, trims the
// ends, and lowercases recognised keyword tokens while leaving
// identifiers and string literals untouched.
func NormalizeQueryText(q string) string {
	fields := strings.Fields(q)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		lower := strings.ToLower(f)
		if fingerprintKeywords[lower] {
			out = append(out, lower)
		} else {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

// ExtractParameters finds $name tokens in query text, deduplicated in
// first-occurrence order.
func ExtractParameters(q string) []string {
	var out []string
	seen := map[string]bool{}
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		name := cur.String()
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
		cur.Reset()
	}
	inParam := false
	for _, r := range q {
		switch {
		case r == '$':
			flush()
			inParam = true
		case inParam && (isAlnum(r) || r == '_'):
			cur.WriteRune(r)
		default:
			inParam = false
			flush()
		}
	}
	flush()
	return out
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
