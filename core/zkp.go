package core

import (
	"bytes"
	"crypto/sha256"
	"sync"
	"time"
)

// PrivacyLevel selects a ZKP bridge proof's visibility
type PrivacyLevel int

const (
	PrivacyPublic PrivacyLevel = iota
	PrivacyPrivate
	PrivacyZeroKnowledge
)

func (p PrivacyLevel) String() string {
	switch p {
	case PrivacyPrivate:
		return "Private"
	case PrivacyZeroKnowledge:
		return "ZeroKnowledge"
	default:
		return "Public"
	}
}

// zkpNonceDomainSeparator distinguishes the bridge's deterministic nonce
// from a plain content hash. The reference build derives the nonce this
// way for reproducibility; a deployment build must substitute a CSPRNG
// — the public contract (ZkpProof shape) is unchanged.
const zkpNonceDomainSeparator = "verisimdb-zkp-nonce-v1"

func hashBytes(b []byte) [32]byte { return sha256.Sum256(b) }

func deterministicNonce(claim []byte) []byte {
	h := hashBytes(claim)
	sum := sha256.Sum256(append(h[:], []byte(zkpNonceDomainSeparator)...))
	return sum[:]
}

// commit computes the Pedersen-style hash commitment H(claim || nonce).
func commit(claim, nonce []byte) [32]byte {
	return sha256.Sum256(append(append([]byte{}, claim...), nonce...))
}

// buildMerkleTree returns the level-by-level hashes of a tree built from
// leaves.
func buildMerkleTree(leaves [][]byte) [][][32]byte {
	level := make([][32]byte, len(leaves))
	for i, l := range leaves {
		level[i] = sha256.Sum256(l)
	}
	tree := [][][32]byte{level}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = sha256.Sum256(append(append([]byte{}, level[i][:]...), level[i+1][:]...))
		}
		tree = append(tree, next)
		level = next
	}
	return tree
}

// MerkleProof is a single leaf's sibling path plus the tree root it
// proves membership in.
type MerkleProof struct {
	LeafIndex int
	Siblings  [][32]byte
	Root      [32]byte
}

func merkleProofFor(leaves [][]byte, index int) (MerkleProof, bool) {
	if index < 0 || index >= len(leaves) {
		return MerkleProof{}, false
	}
	tree := buildMerkleTree(leaves)
	var siblings [][32]byte
	idx := index
	for i := 0; i < len(tree)-1; i++ {
		level := tree[i]
		if idx%2 == 0 {
			siblings = append(siblings, level[idx+1])
		} else {
			siblings = append(siblings, level[idx-1])
		}
		idx /= 2
	}
	root := tree[len(tree)-1][0]
	return MerkleProof{LeafIndex: index, Siblings: siblings, Root: root}, true
}

func verifyMerkleProof(leaf []byte, mp MerkleProof) bool {
	h := sha256.Sum256(leaf)
	hash := h[:]
	idx := mp.LeafIndex
	for _, sib := range mp.Siblings {
		if idx%2 == 0 {
			sum := sha256.Sum256(append(append([]byte{}, hash...), sib[:]...))
			hash = sum[:]
		} else {
			sum := sha256.Sum256(append(append([]byte{}, sib[:]...), hash...))
			hash = sum[:]
		}
		idx /= 2
	}
	return bytes.Equal(hash, mp.Root[:])
}

// ProofDataKind distinguishes the underlying proof payload shape.
type ProofDataKind int

const (
	ProofDataContentIntegrity ProofDataKind = iota
	ProofDataCommitment
	ProofDataMerkleInclusion
)

// ProofData carries the payload for one ProofDataKind; only the relevant
// field is populated.
type ProofData struct {
	Kind         ProofDataKind
	ContentHash  [32]byte
	Commitment   [32]byte
	MerkleLeaf   []byte
	MerkleProof  MerkleProof
}

// CircuitVerificationResult is attached to a ZkpProof when a named
// circuit was checked alongside proof generation.
type CircuitVerificationResult struct {
	CircuitName        string
	Satisfied          bool
	ConstraintsChecked int
}

// ZkpProofRequest is the bridge's proof generation input.
type ZkpProofRequest struct {
	Claim           []byte
	PrivacyLevel    PrivacyLevel
	CircuitName     string
	Witness         []float64
	PublicInputs    []float64
	MembershipSet   [][]byte
	MembershipIndex int
	HasMembership   bool
}

// ZkpProof is a generated, privacy-routed proof.
type ZkpProof struct {
	PrivacyLevel   PrivacyLevel
	ProofData      ProofData
	BlindingNonce  []byte
	Commitment     *[32]byte
	MerkleRoot     *[32]byte
	CircuitResult  *CircuitVerificationResult
	GeneratedAt    time.Time
}

// ZkpBridge routes proof generation/verification through the three
// privacy levels and an optional pluggable circuit registry.
type ZkpBridge struct {
	registry *CircuitRegistry
}

// NewZkpBridge constructs a bridge over registry (nil is valid; circuit
// checks are then simply skipped).
func NewZkpBridge(registry *CircuitRegistry) *ZkpBridge {
	return &ZkpBridge{registry: registry}
}

// Generate routes request to the public/private/zero-knowledge proof
// builder named by request.PrivacyLevel, then, if a circuit name is
// supplied, additionally runs the circuit check and attaches its result.
func (b *ZkpBridge) Generate(request ZkpProofRequest) (*ZkpProof, error) {
	var proof *ZkpProof
	var err error
	switch request.PrivacyLevel {
	case PrivacyPrivate:
		proof, err = b.generatePrivate(request)
	case PrivacyZeroKnowledge:
		proof, err = b.generateZK(request)
	default:
		proof, err = b.generatePublic(request)
	}
	if err != nil {
		return nil, err
	}

	if request.CircuitName != "" && b.registry != nil {
		satisfied, constraints, verr := b.registry.Verify(request.CircuitName, request.Witness, request.PublicInputs)
		if verr != nil {
			return nil, verr
		}
		proof.CircuitResult = &CircuitVerificationResult{
			CircuitName:        request.CircuitName,
			Satisfied:          satisfied,
			ConstraintsChecked: constraints,
		}
	}
	return proof, nil
}

func (b *ZkpBridge) generatePublic(request ZkpProofRequest) (*ZkpProof, error) {
	return &ZkpProof{
		PrivacyLevel: PrivacyPublic,
		ProofData:    ProofData{Kind: ProofDataContentIntegrity, ContentHash: hashBytes(request.Claim)},
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

func (b *ZkpBridge) generatePrivate(request ZkpProofRequest) (*ZkpProof, error) {
	nonce := deterministicNonce(request.Claim)
	commitment := commit(request.Claim, nonce)

	proofData := ProofData{Kind: ProofDataCommitment, Commitment: commitment}
	var root *[32]byte
	if request.HasMembership {
		mp, ok := merkleProofFor(request.MembershipSet, request.MembershipIndex)
		if !ok {
			return nil, Validationf("membership index %d out of bounds for set of size %d", request.MembershipIndex, len(request.MembershipSet))
		}
		proofData = ProofData{Kind: ProofDataMerkleInclusion, MerkleLeaf: request.MembershipSet[request.MembershipIndex], MerkleProof: mp}
		root = &mp.Root
	}

	return &ZkpProof{
		PrivacyLevel:  PrivacyPrivate,
		ProofData:     proofData,
		BlindingNonce: nonce,
		Commitment:    &commitment,
		MerkleRoot:    root,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

// generateZK blinds every leaf as H(leaf || nonce) before building the
// Merkle tree, so the verifier sees only blinded siblings — the root
// differs from the equivalent Private proof's plain root.
func (b *ZkpBridge) generateZK(request ZkpProofRequest) (*ZkpProof, error) {
	nonce := deterministicNonce(request.Claim)
	commitment := commit(request.Claim, nonce)

	proofData := ProofData{Kind: ProofDataCommitment, Commitment: commitment}
	var root *[32]byte
	if request.HasMembership {
		blinded := make([][]byte, len(request.MembershipSet))
		for i, leaf := range request.MembershipSet {
			c := commit(leaf, nonce)
			blinded[i] = append([]byte{}, c[:]...)
		}
		mp, ok := merkleProofFor(blinded, request.MembershipIndex)
		if !ok {
			return nil, Validationf("membership index %d out of bounds for set of size %d", request.MembershipIndex, len(blinded))
		}
		proofData = ProofData{Kind: ProofDataMerkleInclusion, MerkleLeaf: blinded[request.MembershipIndex], MerkleProof: mp}
		root = &mp.Root
	}

	return &ZkpProof{
		PrivacyLevel:  PrivacyZeroKnowledge,
		ProofData:     proofData,
		BlindingNonce: nonce,
		Commitment:    &commitment,
		MerkleRoot:    root,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

// Verify checks proof against claim according to its privacy level.
// ZeroKnowledge verification checks only the blinded Merkle structure's
// internal consistency — it never needs the plain claim bytes, by
// design of the blinding scheme.
func (b *ZkpBridge) Verify(proof *ZkpProof, claim []byte) bool {
	switch proof.PrivacyLevel {
	case PrivacyPrivate:
		return verifyPrivate(proof, claim)
	case PrivacyZeroKnowledge:
		return verifyZK(proof)
	default:
		return proof.ProofData.Kind == ProofDataContentIntegrity && proof.ProofData.ContentHash == hashBytes(claim)
	}
}

func verifyPrivate(proof *ZkpProof, claim []byte) bool {
	if proof.Commitment != nil {
		expected := commit(claim, proof.BlindingNonce)
		if expected != *proof.Commitment {
			return false
		}
	}
	switch proof.ProofData.Kind {
	case ProofDataMerkleInclusion:
		return verifyMerkleProof(proof.ProofData.MerkleLeaf, proof.ProofData.MerkleProof)
	default:
		return true
	}
}

func verifyZK(proof *ZkpProof) bool {
	switch proof.ProofData.Kind {
	case ProofDataMerkleInclusion:
		return verifyMerkleProof(proof.ProofData.MerkleLeaf, proof.ProofData.MerkleProof)
	case ProofDataCommitment:
		return proof.Commitment != nil
	default:
		return false
	}
}

// --- Circuit registry: a pluggable R1CS-style circuit verifier keyed by
// name, so a proof can optionally attach a CircuitVerificationResult. ---

// R1CSConstraint is a single rank-1 constraint a·w * b·w = c·w over
// sparse wire-index -> coefficient maps.
type R1CSConstraint struct {
	A map[int]float64
	B map[int]float64
	C map[int]float64
}

// CircuitIR is a compiled circuit's intermediate representation.
type CircuitIR struct {
	Name             string
	NumPublicInputs  int
	NumWitnessWires  int
	NumWires         int
	Constraints      []R1CSConstraint
}

// CompiledCircuit pairs a CircuitIR with its content hash and a stand-in
// verification key; the pluggable circuit hook stops
// here rather than integrating a full SNARK prover.
type CompiledCircuit struct {
	IR               CircuitIR
	CircuitHash      string
	VerificationKey  []byte
}

// CircuitRegistry maps named circuits to their compiled form.
type CircuitRegistry struct {
	mu       sync.RWMutex
	circuits map[string]CompiledCircuit
}

// NewCircuitRegistry constructs an empty registry.
func NewCircuitRegistry() *CircuitRegistry {
	return &CircuitRegistry{circuits: make(map[string]CompiledCircuit)}
}

// RegisterCircuit installs a compiled circuit under name.
func (r *CircuitRegistry) RegisterCircuit(name string, circuit CompiledCircuit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.circuits[name] = circuit
}

// GetCircuit returns the compiled circuit registered under name.
func (r *CircuitRegistry) GetCircuit(name string) (CompiledCircuit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.circuits[name]
	return c, ok
}

// wireAssignment builds the full wire vector: public inputs first, then
// witness wires, indexed as the constraints' maps expect.
func wireAssignment(publicInputs, witness []float64, numWires int) []float64 {
	w := make([]float64, numWires)
	copy(w, publicInputs)
	copy(w[len(publicInputs):], witness)
	return w
}

func dot(terms map[int]float64, w []float64) float64 {
	var sum float64
	for idx, coeff := range terms {
		if idx < len(w) {
			sum += coeff * w[idx]
		}
	}
	return sum
}

// Verify checks every R1CS constraint a·w * b·w == c·w for the named
// circuit against the supplied witness/public inputs. Returns the number
// of constraints checked alongside the satisfied verdict.
func (r *CircuitRegistry) Verify(name string, witness, publicInputs []float64) (bool, int, error) {
	circuit, ok := r.GetCircuit(name)
	if !ok {
		return false, 0, NotFoundf("circuit %q not registered", name)
	}
	w := wireAssignment(publicInputs, witness, circuit.IR.NumWires)
	for _, c := range circuit.IR.Constraints {
		if dot(c.A, w)*dot(c.B, w) != dot(c.C, w) {
			return false, len(circuit.IR.Constraints), nil
		}
	}
	return true, len(circuit.IR.Constraints), nil
}
