package core

import "testing"

func TestNormalizeQueryTextCaseAndWhitespace(t *testing.T) {
	a := NormalizeQueryText("SEARCH graph WHERE type = $t")
	b := NormalizeQueryText("search   GRAPH   where   type = $t")
	if a != b {
		t.Fatalf("expected normalized forms to match: %q vs %q", a, b)
	}
}

func TestFingerprintStability(t *testing.T) {
	id1 := Fingerprint("SEARCH graph WHERE type = $t")
	id2 := Fingerprint("search   GRAPH   where   type = $t")
	if id1 != id2 {
		t.Fatalf("expected equal fingerprints, got %s vs %s", id1, id2)
	}
	id3 := Fingerprint("SEARCH graph WHERE type = $other")
	if id1 == id3 {
		t.Fatal("expected different identifiers to change the fingerprint")
	}
}

func TestExtractParametersDedupesFirstOccurrence(t *testing.T) {
	params := ExtractParameters("SEARCH graph WHERE type = $t AND owner = $owner OR type = $t")
	if len(params) != 2 || params[0] != "t" || params[1] != "owner" {
		t.Fatalf("expected [t owner], got %v", params)
	}
}

func TestPlannerCostModelSimilarityDrivesSelectivity(t *testing.T) {
	p := NewPlanner(DefaultPlannerConfig())
	plan := p.Plan(LogicalPlan{
		Source: SourceHexad,
		Nodes: []PlanNode{
			{Modality: ModalityVector, Conditions: []Condition{{Kind: ConditionSimilarity, K: 5}}},
		},
	})
	if plan.Steps[0].Cost.Selectivity != 5.0/10000.0 {
		t.Errorf("expected selectivity 5/10000, got %f", plan.Steps[0].Cost.Selectivity)
	}
}

func TestPlannerParallelStrategyForMultiModality(t *testing.T) {
	p := NewPlanner(DefaultPlannerConfig())
	plan := p.Plan(LogicalPlan{
		Source: SourceHexad,
		Nodes: []PlanNode{
			{Modality: ModalityGraph},
			{Modality: ModalityDocument},
		},
	})
	if plan.Strategy != ExecParallel {
		t.Errorf("expected parallel strategy for 2 modalities, got %v", plan.Strategy)
	}
}

func TestPlannerAggressiveModeCheaperThanConservative(t *testing.T) {
	node := []PlanNode{{Modality: ModalityGraph}}
	aggressive := NewPlanner(PlannerConfig{Mode: OptAggressive}).Plan(LogicalPlan{Nodes: node})
	conservative := NewPlanner(PlannerConfig{Mode: OptConservative}).Plan(LogicalPlan{Nodes: node})
	if aggressive.TotalTimeMS >= conservative.TotalTimeMS {
		t.Errorf("expected aggressive (%f) < conservative (%f)", aggressive.TotalTimeMS, conservative.TotalTimeMS)
	}
}
