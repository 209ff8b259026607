package core

import "testing"

func TestZkpPublicProofRoundTrip(t *testing.T) {
	bridge := NewZkpBridge(nil)
	claim := []byte("entity:123 has-type Person")

	proof, err := bridge.Generate(ZkpProofRequest{Claim: claim, PrivacyLevel: PrivacyPublic})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if proof.BlindingNonce != nil {
		t.Error("expected no blinding nonce for a public proof")
	}
	if !bridge.Verify(proof, claim) {
		t.Error("expected public proof to verify against the original claim")
	}
	if bridge.Verify(proof, []byte("entity:456 has-type Robot")) {
		t.Error("expected public proof to reject a different claim")
	}
}

func TestZkpPrivateProofCommitment(t *testing.T) {
	bridge := NewZkpBridge(nil)
	claim := []byte("confidential-data-hash")

	proof, err := bridge.Generate(ZkpProofRequest{Claim: claim, PrivacyLevel: PrivacyPrivate})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if proof.BlindingNonce == nil || proof.Commitment == nil {
		t.Fatal("expected nonce and commitment on a private proof")
	}
	if !bridge.Verify(proof, claim) {
		t.Error("expected private proof to verify against the original claim")
	}
	if bridge.Verify(proof, []byte("wrong-claim")) {
		t.Error("expected private proof to reject a different claim")
	}
}

func TestZkpPrivateProofWithMembershipSet(t *testing.T) {
	bridge := NewZkpBridge(nil)
	claims := [][]byte{[]byte("claim-a"), []byte("claim-b"), []byte("claim-c"), []byte("claim-d")}

	proof, err := bridge.Generate(ZkpProofRequest{
		Claim: claims[1], PrivacyLevel: PrivacyPrivate,
		MembershipSet: claims, MembershipIndex: 1, HasMembership: true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if proof.MerkleRoot == nil {
		t.Fatal("expected a merkle root for a membership proof")
	}
	if !bridge.Verify(proof, claims[1]) {
		t.Error("expected membership proof to verify")
	}
}

func TestZkpZeroKnowledgeGeneration(t *testing.T) {
	bridge := NewZkpBridge(nil)
	claim := []byte("zero-knowledge-secret")

	proof, err := bridge.Generate(ZkpProofRequest{Claim: claim, PrivacyLevel: PrivacyZeroKnowledge})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if proof.BlindingNonce == nil || proof.Commitment == nil {
		t.Fatal("expected nonce and commitment on a zero-knowledge proof")
	}
	if !bridge.Verify(proof, claim) {
		t.Error("expected zero-knowledge proof to verify")
	}
}

func TestZkpZeroKnowledgeBlindedRootDiffersFromPlain(t *testing.T) {
	bridge := NewZkpBridge(nil)
	claims := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}

	privateProof, err := bridge.Generate(ZkpProofRequest{
		Claim: claims[0], PrivacyLevel: PrivacyPrivate,
		MembershipSet: claims, MembershipIndex: 0, HasMembership: true,
	})
	if err != nil {
		t.Fatalf("generate private: %v", err)
	}
	zkProof, err := bridge.Generate(ZkpProofRequest{
		Claim: claims[0], PrivacyLevel: PrivacyZeroKnowledge,
		MembershipSet: claims, MembershipIndex: 0, HasMembership: true,
	})
	if err != nil {
		t.Fatalf("generate zk: %v", err)
	}
	if *privateProof.MerkleRoot == *zkProof.MerkleRoot {
		t.Error("expected the blinded ZK root to differ from the plain private root")
	}
}

func TestZkpMembershipIndexOutOfBounds(t *testing.T) {
	bridge := NewZkpBridge(nil)
	claims := [][]byte{[]byte("only-one")}

	_, err := bridge.Generate(ZkpProofRequest{
		Claim: claims[0], PrivacyLevel: PrivacyPrivate,
		MembershipSet: claims, MembershipIndex: 5, HasMembership: true,
	})
	if err == nil {
		t.Fatal("expected out-of-bounds membership index to fail")
	}
}

func TestZkpWithCircuitRegistry(t *testing.T) {
	registry := NewCircuitRegistry()
	// x * y = z, with public inputs [x, z] at wires 0,1 and witness y at wire 2.
	constraint := R1CSConstraint{
		A: map[int]float64{0: 1.0},
		B: map[int]float64{2: 1.0},
		C: map[int]float64{1: 1.0},
	}
	registry.RegisterCircuit("test-mul", CompiledCircuit{
		IR: CircuitIR{Name: "test-mul", NumPublicInputs: 2, NumWitnessWires: 1, NumWires: 3, Constraints: []R1CSConstraint{constraint}},
	})

	bridge := NewZkpBridge(registry)
	proof, err := bridge.Generate(ZkpProofRequest{
		Claim:        []byte("verified-computation"),
		PrivacyLevel: PrivacyPublic,
		CircuitName:  "test-mul",
		Witness:      []float64{4.0},
		PublicInputs: []float64{3.0, 12.0},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if proof.CircuitResult == nil || !proof.CircuitResult.Satisfied {
		t.Fatalf("expected satisfied circuit result, got %+v", proof.CircuitResult)
	}
	if proof.CircuitResult.ConstraintsChecked != 1 {
		t.Errorf("expected 1 constraint checked, got %d", proof.CircuitResult.ConstraintsChecked)
	}
}

func TestZkpCircuitUnsatisfied(t *testing.T) {
	registry := NewCircuitRegistry()
	constraint := R1CSConstraint{A: map[int]float64{0: 1.0}, B: map[int]float64{2: 1.0}, C: map[int]float64{1: 1.0}}
	registry.RegisterCircuit("test-mul", CompiledCircuit{
		IR: CircuitIR{NumWires: 3, Constraints: []R1CSConstraint{constraint}},
	})

	bridge := NewZkpBridge(registry)
	proof, err := bridge.Generate(ZkpProofRequest{
		Claim:        []byte("bad-computation"),
		PrivacyLevel: PrivacyPublic,
		CircuitName:  "test-mul",
		Witness:      []float64{5.0}, // 3 * 5 != 12
		PublicInputs: []float64{3.0, 12.0},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if proof.CircuitResult.Satisfied {
		t.Error("expected unsatisfied circuit result")
	}
}
