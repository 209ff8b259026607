package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProvenanceEventType enumerates the recognised provenance event kinds.
type ProvenanceEventType int

const (
	EventCreated ProvenanceEventType = iota
	EventModified
	EventImported
	EventNormalized
	EventDriftRepaired
	EventDeleted
	EventMerged
	EventCustom
)

func (t ProvenanceEventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventImported:
		return "imported"
	case EventNormalized:
		return "normalized"
	case EventDriftRepaired:
		return "drift_repaired"
	case EventDeleted:
		return "deleted"
	case EventMerged:
		return "merged"
	default:
		return "custom"
	}
}

// ProvenanceRecord is a single hash-chained audit entry.
type ProvenanceRecord struct {
	EventType   ProvenanceEventType `json:"event_type"`
	CustomName  string              `json:"custom_name,omitempty"`
	Actor       string              `json:"actor"`
	Timestamp   time.Time           `json:"timestamp"`
	SourceURI   string              `json:"source_uri,omitempty"`
	Description string              `json:"description"`
	ParentHash  string              `json:"parent_hash"`
	ContentHash string              `json:"content_hash"`
}

var genesisHash = hex.EncodeToString(sha256.New().Sum(nil))

func canonicalRecordEncoding(r ProvenanceRecord) []byte {
	// Canonical, order-stable encoding over the record's non-hash fields.
	return []byte(fmt.Sprintf("%s|%s|%s|%d|%s|%s|%s",
		r.EventType, r.CustomName, r.Actor, r.Timestamp.UnixNano(), r.SourceURI, r.Description, r.ParentHash))
}

func computeContentHash(r ProvenanceRecord) string {
	sum := sha256.Sum256(canonicalRecordEncoding(r))
	return hex.EncodeToString(sum[:])
}

// ProvenanceStore is a per-entity append-only hash-chained log.
type ProvenanceStore struct {
	mu     sync.Mutex
	chains map[string][]ProvenanceRecord
}

// NewProvenanceStore constructs an empty store.
func NewProvenanceStore() *ProvenanceStore {
	return &ProvenanceStore{chains: make(map[string][]ProvenanceRecord)}
}

// RecordEvent appends a new record to id's chain, linking parent_hash to
// the previous record's content_hash (or the genesis hash for the first).
func (s *ProvenanceStore) RecordEvent(id string, eventType ProvenanceEventType, customName, actor, sourceURI, description string) ProvenanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[id]
	parent := genesisHash
	if len(chain) > 0 {
		parent = chain[len(chain)-1].ContentHash
	}
	rec := ProvenanceRecord{
		EventType:   eventType,
		CustomName:  customName,
		Actor:       actor,
		Timestamp:   time.Now().UTC(),
		SourceURI:   sourceURI,
		Description: description,
		ParentHash:  parent,
	}
	rec.ContentHash = computeContentHash(rec)
	s.chains[id] = append(chain, rec)
	return rec
}

// GetChain returns the ordered list of records for id.
func (s *ProvenanceStore) GetChain(id string) []ProvenanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[id]
	out := make([]ProvenanceRecord, len(chain))
	copy(out, chain)
	return out
}

// VerifyChain walks id's chain checking parent_hash linkage and
// recomputed content_hash; any mismatch produces ChainCorruptedError.
func (s *ProvenanceStore) VerifyChain(id string) error {
	s.mu.Lock()
	chain := make([]ProvenanceRecord, len(s.chains[id]))
	copy(chain, s.chains[id])
	s.mu.Unlock()

	parent := genesisHash
	for i, rec := range chain {
		if rec.ParentHash != parent {
			zap.L().Sugar().Warnw("provenance: chain corrupted", "entity_id", id, "index", i, "reason", "parent hash mismatch")
			return &ChainCorruptedError{Reason: "parent hash mismatch", Index: i}
		}
		recomputed := computeContentHash(ProvenanceRecord{
			EventType:   rec.EventType,
			CustomName:  rec.CustomName,
			Actor:       rec.Actor,
			Timestamp:   rec.Timestamp,
			SourceURI:   rec.SourceURI,
			Description: rec.Description,
			ParentHash:  rec.ParentHash,
		})
		if recomputed != rec.ContentHash {
			zap.L().Sugar().Warnw("provenance: chain corrupted", "entity_id", id, "index", i, "reason", "content hash mismatch")
			return &ChainCorruptedError{Reason: "content hash mismatch", Index: i}
		}
		parent = rec.ContentHash
	}
	return nil
}

// ChainLength returns the number of records for id.
func (s *ProvenanceStore) ChainLength(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chains[id])
}
