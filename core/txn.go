package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Isolation selects a transaction's consistency level.
type Isolation int

const (
	ReadCommitted Isolation = iota
	Serializable
)

// TxnState is the transaction's lifecycle state.
type TxnState int

const (
	TxnActive TxnState = iota
	TxnCommitted
	TxnRolledBack
)

// LockType distinguishes compatible Shared locks from exclusive ones.
type LockType int

const (
	LockShared LockType = iota
	LockExclusive
)

// UndoEntry records a modality's previous state so it can be restored on
// rollback.
type UndoEntry struct {
	EntityID        string
	Modality        string
	PreviousData    []byte
	PreviousVersion uint64
	HadPrevious     bool
}

// ReadStamp records the MVCC version observed by a Serializable
// transaction's record_read call, re-checked at commit time.
type ReadStamp struct {
	EntityID string
	Modality string
	Version  uint64
}

// Transaction is a single unit of cross-modality work.
type Transaction struct {
	ID          string
	State       TxnState
	Isolation   Isolation
	UndoLog     []UndoEntry
	ReadSet     []ReadStamp
	StartTime   time.Time
	EndTime     time.Time
	heldLocks   map[lockKey]LockType
}

type lockKey struct {
	entity   string
	modality string
}

type lockHolder struct {
	txnID string
	kind  LockType
}

// TxnManager orchestrates strict 2PL + MVCC across the six modalities:
// lock acquisition with deadlock detection via wait-for graph BFS,
// undo-log rollback, and a version table bumped only at commit.
type TxnManager struct {
	mu sync.Mutex

	txns map[string]*Transaction

	locks   map[lockKey][]lockHolder
	waitFor map[string]map[string]bool // txnID -> set of txnIDs it waits on

	versions map[lockKey]uint64
}

// NewTxnManager constructs an empty transaction manager.
func NewTxnManager() *TxnManager {
	return &TxnManager{
		txns:     make(map[string]*Transaction),
		locks:    make(map[lockKey][]lockHolder),
		waitFor:  make(map[string]map[string]bool),
		versions: make(map[lockKey]uint64),
	}
}

// Begin creates a new Active transaction under the given isolation level.
func (m *TxnManager) Begin(isolation Isolation) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.txns[id] = &Transaction{
		ID:        id,
		State:     TxnActive,
		Isolation: isolation,
		StartTime: time.Now().UTC(),
		heldLocks: make(map[lockKey]LockType),
	}
	return id
}

func (m *TxnManager) requireActive(id string) (*Transaction, error) {
	txn, ok := m.txns[id]
	if !ok {
		return nil, Internalf("unknown transaction %s", id)
	}
	if txn.State != TxnActive {
		return nil, Conflictf("transaction %s is not active", id)
	}
	return txn, nil
}

// AcquireLock validates the modality name, checks the transaction is
// Active, and attempts to grant the requested lock, running deadlock
// detection on conflict.
func (m *TxnManager) AcquireLock(txnID, entityID, modality string, kind LockType) error {
	if !RecognisedModality(modality) {
		return Validationf("unrecognised modality %q", modality)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	txn, err := m.requireActive(txnID)
	if err != nil {
		return err
	}

	key := lockKey{entity: entityID, modality: modality}
	holders := m.locks[key]

	if existing, already := txn.heldLocks[key]; already {
		if existing == kind || existing == LockExclusive {
			return nil // idempotent re-request, or already holds the stronger lock
		}
		// Upgrade Shared -> Exclusive iff sole holder.
		if len(holders) == 1 && holders[0].txnID == txnID {
			m.locks[key] = []lockHolder{{txnID: txnID, kind: LockExclusive}}
			txn.heldLocks[key] = LockExclusive
			return nil
		}
		return m.conflict(txnID, holders)
	}

	if len(holders) == 0 {
		m.locks[key] = append(m.locks[key], lockHolder{txnID: txnID, kind: kind})
		txn.heldLocks[key] = kind
		return nil
	}

	if kind == LockShared && allShared(holders) {
		m.locks[key] = append(m.locks[key], lockHolder{txnID: txnID, kind: kind})
		txn.heldLocks[key] = kind
		return nil
	}

	return m.conflict(txnID, holders)
}

func allShared(holders []lockHolder) bool {
	for _, h := range holders {
		if h.kind != LockShared {
			return false
		}
	}
	return true
}

// conflict records wait-for edges from txnID to every blocking holder,
// then runs BFS for a cycle back to txnID. If found, the request fails
// with DeadlockDetected and txnID's wait edges are cleared; otherwise it
// fails with a LockConflictError naming the first blocker.
func (m *TxnManager) conflict(txnID string, holders []lockHolder) error {
	if m.waitFor[txnID] == nil {
		m.waitFor[txnID] = make(map[string]bool)
	}
	for _, h := range holders {
		if h.txnID == txnID {
			continue
		}
		m.waitFor[txnID][h.txnID] = true
	}

	if cycle, ok := m.detectCycle(txnID); ok {
		delete(m.waitFor, txnID)
		return &DeadlockError{Cycle: cycle}
	}

	blocker := ""
	for _, h := range holders {
		if h.txnID != txnID {
			blocker = h.txnID
			break
		}
	}
	return &LockConflictError{Blocker: blocker}
}

// detectCycle runs BFS from start over the wait-for graph and returns the
// actual cycle path if start is reachable from itself.
func (m *TxnManager) detectCycle(start string) ([]string, bool) {
	type frame struct {
		node string
		path []string
	}
	visited := map[string]bool{}
	queue := []frame{{node: start, path: []string{start}}}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		for next := range m.waitFor[f.node] {
			if next == start {
				return append(append([]string{}, f.path...), start), true
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, frame{node: next, path: append(append([]string{}, f.path...), next)})
		}
	}
	return nil, false
}

// RecordUndo appends an undo entry for the given modality write.
func (m *TxnManager) RecordUndo(txnID, entityID, modality string, previous []byte, hadPrevious bool, previousVersion uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, err := m.requireActive(txnID)
	if err != nil {
		return err
	}
	txn.UndoLog = append(txn.UndoLog, UndoEntry{
		EntityID:        entityID,
		Modality:        modality,
		PreviousData:    previous,
		PreviousVersion: previousVersion,
		HadPrevious:     hadPrevious,
	})
	return nil
}

// RecordRead stamps the current version for later Serializable
// validation. No-op for ReadCommitted transactions (only Serializable
// needs the read set).
func (m *TxnManager) RecordRead(txnID, entityID, modality string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, err := m.requireActive(txnID)
	if err != nil {
		return err
	}
	if txn.Isolation != Serializable {
		return nil
	}
	key := lockKey{entity: entityID, modality: modality}
	txn.ReadSet = append(txn.ReadSet, ReadStamp{EntityID: entityID, Modality: modality, Version: m.versions[key]})
	return nil
}

// CurrentVersion returns the MVCC version for (entity, modality),
// defaulting to 0.
func (m *TxnManager) CurrentVersion(entityID, modality string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[lockKey{entity: entityID, modality: modality}]
}

// IsLocked reports whether any transaction currently holds a lock on
// (entity, modality).
func (m *TxnManager) IsLocked(entityID, modality string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks[lockKey{entity: entityID, modality: modality}]) > 0
}

// Commit validates (for Serializable) that every stamped read version is
// unchanged, then bumps the version for every (entity, modality) pair in
// the undo log and releases all locks.
func (m *TxnManager) Commit(txnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, err := m.requireActive(txnID)
	if err != nil {
		return err
	}

	if txn.Isolation == Serializable {
		for _, rs := range txn.ReadSet {
			key := lockKey{entity: rs.EntityID, modality: rs.Modality}
			actual := m.versions[key]
			if actual != rs.Version {
				txn.State = TxnRolledBack
				txn.EndTime = time.Now().UTC()
				m.releaseLocks(txn)
				return &VersionConflictError{Entity: rs.EntityID, Modality: rs.Modality, Expected: rs.Version, Actual: actual}
			}
		}
	}

	seen := map[lockKey]bool{}
	for _, u := range txn.UndoLog {
		key := lockKey{entity: u.EntityID, modality: u.Modality}
		if seen[key] {
			continue
		}
		seen[key] = true
		m.versions[key]++
	}

	txn.State = TxnCommitted
	txn.EndTime = time.Now().UTC()
	m.releaseLocks(txn)
	return nil
}

// Rollback returns the undo log in reverse chronological order, releases
// locks, and marks the transaction RolledBack. Versions are not bumped.
func (m *TxnManager) Rollback(txnID string) ([]UndoEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, err := m.requireActive(txnID)
	if err != nil {
		return nil, err
	}
	reversed := make([]UndoEntry, len(txn.UndoLog))
	for i, u := range txn.UndoLog {
		reversed[len(txn.UndoLog)-1-i] = u
	}
	txn.State = TxnRolledBack
	txn.EndTime = time.Now().UTC()
	m.releaseLocks(txn)
	return reversed, nil
}

func (m *TxnManager) releaseLocks(txn *Transaction) {
	for key := range txn.heldLocks {
		holders := m.locks[key]
		kept := holders[:0]
		for _, h := range holders {
			if h.txnID != txn.ID {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(m.locks, key)
		} else {
			m.locks[key] = kept
		}
	}
	txn.heldLocks = make(map[lockKey]LockType)
	delete(m.waitFor, txn.ID)
}

// PurgeCompleted removes Committed/RolledBack transactions from memory.
func (m *TxnManager) PurgeCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, txn := range m.txns {
		if txn.State != TxnActive {
			delete(m.txns, id)
		}
	}
}

// State returns a transaction's current state.
func (m *TxnManager) State(txnID string) (TxnState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[txnID]
	if !ok {
		return 0, false
	}
	return txn.State, true
}
