package core

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// HexadStore is the coordination layer: it fans a single hexad-level
// operation out to the relevant modality backends inside a transaction,
// recording WAL entries and provenance events
type HexadStore struct {
	mu       sync.RWMutex
	registry map[HexadId]*Status

	wal      *Wal
	txns     *TxnManager
	graph    *GraphBackend
	vector   *VectorBackend
	tensor   *TensorBackend
	semantic *SemanticBackend
	document *DocumentBackend
	temporal *TemporalBackend
	spatial  *SpatialStore
	prov     *ProvenanceStore

	log *logrus.Logger
}

// HexadStoreConfig bundles the backends a coordinator is built over.
type HexadStoreConfig struct {
	Wal       *Wal
	VectorCfg HnswConfig
	Log       *logrus.Logger
}

// NewHexadStore wires a coordinator over fresh modality backends.
func NewHexadStore(cfg HexadStoreConfig) *HexadStore {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}
	return &HexadStore{
		registry: make(map[HexadId]*Status),
		wal:      cfg.Wal,
		txns:     NewTxnManager(),
		graph:    NewGraphBackend(),
		vector:   NewVectorBackend(cfg.VectorCfg),
		tensor:   NewTensorBackend(),
		semantic: NewSemanticBackend(),
		document: NewDocumentBackend(),
		temporal: NewTemporalBackend(),
		spatial:  NewSpatialStore(),
		prov:     NewProvenanceStore(),
		log:      log,
	}
}

func (s *HexadStore) walAppend(op WalOperation, modality, id string, payload any) {
	if s.wal == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.WithError(err).Warn("hexadstore: failed to encode wal payload")
		return
	}
	if _, err := s.wal.Append(op, modality, id, body); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"modality": modality, "entity_id": id}).
			Warn("hexadstore: wal append failed")
	}
}

// Create generates a fresh HexadId, writes every populated modality
// inside a transaction, records a temporal snapshot and provenance
// event, and returns the fully-populated hexad.
func (s *HexadStore) Create(input HexadInput) (*Hexad, error) {
	id := uuid.NewString()

	if err := validateEmbedding(input.Embedding, s.vector.Dimension()); err != nil {
		return nil, err
	}
	if err := validateTensor(input.TensorData); err != nil {
		return nil, err
	}

	txn := s.txns.Begin(ReadCommitted)
	modalityStatus := input.ModalityStatus()

	rollback := func(cause error) (*Hexad, error) {
		if _, rerr := s.txns.Rollback(txn); rerr != nil {
			s.log.WithError(rerr).Warn("hexadstore: rollback failed during create")
		}
		return nil, cause
	}

	if input.GraphNode != nil {
		if err := s.txns.AcquireLock(txn, id, ModalityGraph, LockExclusive); err != nil {
			return rollback(err)
		}
		if err := s.graph.Insert(GraphEdge{From: id, To: input.GraphNode.IRI, Predicate: "rdf:type"}); err != nil {
			return rollback(err)
		}
		s.txns.RecordUndo(txn, id, ModalityGraph, nil, false, 0)
	}
	if input.Embedding != nil {
		if err := s.txns.AcquireLock(txn, id, ModalityVector, LockExclusive); err != nil {
			return rollback(err)
		}
		if err := s.vector.Upsert(id, input.Embedding); err != nil {
			return rollback(err)
		}
		s.txns.RecordUndo(txn, id, ModalityVector, nil, false, 0)
	}
	if input.TensorData != nil {
		if err := s.txns.AcquireLock(txn, id, ModalityTensor, LockExclusive); err != nil {
			return rollback(err)
		}
		if err := s.tensor.Put(id, *input.TensorData); err != nil {
			return rollback(err)
		}
		s.txns.RecordUndo(txn, id, ModalityTensor, nil, false, 0)
	}
	if input.SemanticData != nil {
		if err := s.txns.AcquireLock(txn, id, ModalitySemantic, LockExclusive); err != nil {
			return rollback(err)
		}
		if err := s.semantic.Annotate(id, *input.SemanticData); err != nil {
			return rollback(err)
		}
		s.txns.RecordUndo(txn, id, ModalitySemantic, nil, false, 0)
	}
	if input.DocumentData != nil {
		if err := s.txns.AcquireLock(txn, id, ModalityDocument, LockExclusive); err != nil {
			return rollback(err)
		}
		if err := s.document.Index(id, *input.DocumentData); err != nil {
			return rollback(err)
		}
		s.document.Commit()
		s.txns.RecordUndo(txn, id, ModalityDocument, nil, false, 0)
	}
	if input.Spatial != nil {
		if err := s.spatial.Index(id, *input.Spatial); err != nil {
			return rollback(err)
		}
	}

	if err := s.txns.AcquireLock(txn, id, ModalityTemporal, LockExclusive); err != nil {
		return rollback(err)
	}
	snapshotBytes, _ := json.Marshal(input)
	s.temporal.Append(id, snapshotBytes, "system", "initial create")
	s.txns.RecordUndo(txn, id, ModalityTemporal, nil, false, 0)

	if err := s.txns.Commit(txn); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	status := &Status{CreatedAt: now, ModifiedAt: now, Version: 1, Modalities: modalityStatus}

	s.mu.Lock()
	s.registry[id] = status
	s.mu.Unlock()

	if input.GraphNode != nil {
		s.walAppend(WalInsert, ModalityGraph, id, input.GraphNode)
	}
	if input.Embedding != nil {
		s.walAppend(WalInsert, ModalityVector, id, input.Embedding)
	}
	if input.TensorData != nil {
		s.walAppend(WalInsert, ModalityTensor, id, input.TensorData)
	}
	if input.SemanticData != nil {
		s.walAppend(WalInsert, ModalitySemantic, id, input.SemanticData)
	}
	if input.DocumentData != nil {
		s.walAppend(WalInsert, ModalityDocument, id, input.DocumentData)
	}
	s.walAppend(WalInsert, ModalityTemporal, id, snapshotBytes)

	s.prov.RecordEvent(id, EventCreated, "", "system", "", "hexad created")

	return s.assemble(id, status)
}

// Update mutates only the modalities present in input; version
// increments by 1; modality-status flags are sticky.
func (s *HexadStore) Update(id HexadId, input HexadInput) (*Hexad, error) {
	s.mu.Lock()
	status, ok := s.registry[id]
	if !ok {
		s.mu.Unlock()
		return nil, NotFoundf("hexad %s not found", id)
	}
	s.mu.Unlock()

	if err := validateEmbedding(input.Embedding, s.vector.Dimension()); err != nil {
		return nil, err
	}
	if err := validateTensor(input.TensorData); err != nil {
		return nil, err
	}

	txn := s.txns.Begin(ReadCommitted)
	rollback := func(cause error) (*Hexad, error) {
		if _, rerr := s.txns.Rollback(txn); rerr != nil {
			s.log.WithError(rerr).Warn("hexadstore: rollback failed during update")
		}
		return nil, cause
	}

	newStatus := ModalityStatus{
		Graph:    status.Modalities.Graph || input.GraphNode != nil,
		Vector:   status.Modalities.Vector || input.Embedding != nil,
		Tensor:   status.Modalities.Tensor || input.TensorData != nil,
		Semantic: status.Modalities.Semantic || input.SemanticData != nil,
		Document: status.Modalities.Document || input.DocumentData != nil,
		Temporal: true,
	}

	if input.GraphNode != nil {
		if err := s.txns.AcquireLock(txn, id, ModalityGraph, LockExclusive); err != nil {
			return rollback(err)
		}
		if err := s.graph.Insert(GraphEdge{From: id, To: input.GraphNode.IRI, Predicate: "rdf:type"}); err != nil {
			return rollback(err)
		}
		s.txns.RecordUndo(txn, id, ModalityGraph, nil, true, 0)
	}
	if input.Embedding != nil {
		if err := s.txns.AcquireLock(txn, id, ModalityVector, LockExclusive); err != nil {
			return rollback(err)
		}
		if err := s.vector.Upsert(id, input.Embedding); err != nil {
			return rollback(err)
		}
		s.txns.RecordUndo(txn, id, ModalityVector, nil, true, 0)
	}
	if input.TensorData != nil {
		if err := s.txns.AcquireLock(txn, id, ModalityTensor, LockExclusive); err != nil {
			return rollback(err)
		}
		if err := s.tensor.Put(id, *input.TensorData); err != nil {
			return rollback(err)
		}
		s.txns.RecordUndo(txn, id, ModalityTensor, nil, true, 0)
	}
	if input.SemanticData != nil {
		if err := s.txns.AcquireLock(txn, id, ModalitySemantic, LockExclusive); err != nil {
			return rollback(err)
		}
		if err := s.semantic.Annotate(id, *input.SemanticData); err != nil {
			return rollback(err)
		}
		s.txns.RecordUndo(txn, id, ModalitySemantic, nil, true, 0)
	}
	if input.DocumentData != nil {
		if err := s.txns.AcquireLock(txn, id, ModalityDocument, LockExclusive); err != nil {
			return rollback(err)
		}
		if err := s.document.Index(id, *input.DocumentData); err != nil {
			return rollback(err)
		}
		s.document.Commit()
		s.txns.RecordUndo(txn, id, ModalityDocument, nil, true, 0)
	}
	if input.Spatial != nil {
		if err := s.spatial.Index(id, *input.Spatial); err != nil {
			return rollback(err)
		}
	}

	if err := s.txns.AcquireLock(txn, id, ModalityTemporal, LockExclusive); err != nil {
		return rollback(err)
	}
	snapshotBytes, _ := json.Marshal(input)
	s.temporal.Append(id, snapshotBytes, "system", "update")
	s.txns.RecordUndo(txn, id, ModalityTemporal, nil, true, 0)

	if err := s.txns.Commit(txn); err != nil {
		return nil, err
	}

	s.mu.Lock()
	status.ModifiedAt = time.Now().UTC()
	status.Version++
	status.Modalities = newStatus
	s.mu.Unlock()

	if input.GraphNode != nil {
		s.walAppend(WalUpdate, ModalityGraph, id, input.GraphNode)
	}
	if input.Embedding != nil {
		s.walAppend(WalUpdate, ModalityVector, id, input.Embedding)
	}
	if input.TensorData != nil {
		s.walAppend(WalUpdate, ModalityTensor, id, input.TensorData)
	}
	if input.SemanticData != nil {
		s.walAppend(WalUpdate, ModalitySemantic, id, input.SemanticData)
	}
	if input.DocumentData != nil {
		s.walAppend(WalUpdate, ModalityDocument, id, input.DocumentData)
	}
	s.walAppend(WalUpdate, ModalityTemporal, id, snapshotBytes)

	s.prov.RecordEvent(id, EventModified, "", "system", "", "hexad updated")

	return s.assemble(id, status)
}

// Delete best-effort removes id from each modality store, retains
// temporal history, removes the registry entry, and records a Deleted
// provenance event.
func (s *HexadStore) Delete(id HexadId) error {
	s.mu.Lock()
	_, ok := s.registry[id]
	if ok {
		delete(s.registry, id)
	}
	s.mu.Unlock()
	if !ok {
		return NotFoundf("hexad %s not found", id)
	}

	s.vector.Delete(id)
	s.tensor.Delete(id)
	s.document.Delete(id)
	s.spatial.Delete(id)
	// Graph and semantic backends are append-only; deletion is ignored.

	s.walAppend(WalDelete, "", id, nil)
	s.prov.RecordEvent(id, EventDeleted, "", "system", "", "hexad deleted")
	return nil
}

// Read loads status then concurrently fetches every populated modality,
// assembling a Hexad. Missing returns (nil, nil).
func (s *HexadStore) Read(id HexadId) (*Hexad, error) {
	s.mu.RLock()
	status, ok := s.registry[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.assemble(id, status)
}

func (s *HexadStore) assemble(id HexadId, status *Status) (*Hexad, error) {
	h := &Hexad{ID: id, Status: *status}

	var g errgroup.Group
	var mu sync.Mutex

	if status.Modalities.Vector {
		g.Go(func() error {
			if emb, ok := s.vector.Get(id); ok {
				mu.Lock()
				h.Embedding = emb
				mu.Unlock()
			}
			return nil
		})
	}
	if status.Modalities.Tensor {
		g.Go(func() error {
			if t, ok := s.tensor.Get(id); ok {
				mu.Lock()
				h.TensorData = &t
				mu.Unlock()
			}
			return nil
		})
	}
	if status.Modalities.Semantic {
		g.Go(func() error {
			anns := s.semantic.GetAnnotations(id)
			if len(anns) > 0 {
				mu.Lock()
				last := anns[len(anns)-1]
				h.SemanticData = &last
				mu.Unlock()
			}
			return nil
		})
	}
	if status.Modalities.Document {
		g.Go(func() error {
			if doc, ok := s.document.Get(id); ok {
				mu.Lock()
				h.DocumentData = &doc
				mu.Unlock()
			}
			return nil
		})
	}
	if status.Modalities.Graph {
		g.Go(func() error {
			edges := s.graph.Outgoing(id)
			if len(edges) > 0 {
				mu.Lock()
				h.GraphNode = &GraphNode{IRI: edges[0].To, LocalName: id}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	h.VersionCount = s.temporal.Count(id)
	h.ProvenanceChainLength = s.prov.ChainLength(id)
	if coord, ok := s.spatial.Get(id); ok {
		h.Spatial = &coord
	}
	return h, nil
}

// SearchSimilar runs a vector ANN query and loads each matched hexad.
func (s *HexadStore) SearchSimilar(queryVector []float32, k int) ([]*Hexad, error) {
	results, err := s.vector.Search(queryVector, k)
	if err != nil {
		return nil, err
	}
	out := make([]*Hexad, 0, len(results))
	for _, r := range results {
		h, err := s.Read(r.ID)
		if err != nil || h == nil {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// SearchText runs a full-text query and loads each matched hexad.
func (s *HexadStore) SearchText(query string, limit int) ([]*Hexad, error) {
	hits := s.document.Search(query, limit)
	out := make([]*Hexad, 0, len(hits))
	for _, hit := range hits {
		h, err := s.Read(hit.ID)
		if err != nil || h == nil {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// QueryRelated follows graph outgoing edges filtered by predicate IRI and
// loads each target hexad.
func (s *HexadStore) QueryRelated(id HexadId, predicate string) ([]*Hexad, error) {
	targets := s.graph.QueryRelated(id, predicate)
	out := make([]*Hexad, 0, len(targets))
	for _, t := range targets {
		h, err := s.Read(t)
		if err != nil || h == nil {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// List traverses the registry, returning up to limit hexads starting at
// offset. Order is not guaranteed beyond stability within a single call.
func (s *HexadStore) List(limit, offset int) ([]*Hexad, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.registry))
	for id := range s.registry {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	if offset > len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*Hexad, 0, len(ids))
	for _, id := range ids {
		h, err := s.Read(id)
		if err != nil || h == nil {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// AtTime loads the current hexad state and annotates it with the
// temporal version valid at ts.
func (s *HexadStore) AtTime(id HexadId, ts time.Time) (*Hexad, *TemporalSnapshot, error) {
	h, err := s.Read(id)
	if err != nil || h == nil {
		return h, nil, err
	}
	snap, ok := s.temporal.AtTime(id, ts)
	if !ok {
		return h, nil, nil
	}
	return h, &snap, nil
}

// Provenance exposes the coordinator's provenance store for read access.
func (s *HexadStore) Provenance() *ProvenanceStore { return s.prov }

// Spatial exposes the coordinator's spatial store for read access.
func (s *HexadStore) Spatial() *SpatialStore { return s.spatial }

// Vector exposes the coordinator's vector backend for read access.
func (s *HexadStore) Vector() *VectorBackend { return s.vector }

// Graph exposes the coordinator's graph backend for read access.
func (s *HexadStore) Graph() *GraphBackend { return s.graph }

// Count returns the number of registered hexads, for health reporting.
func (s *HexadStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registry)
}
