package core

import "testing"

// Rollback must return undo entries in reverse recording order and
// leave every version and lock untouched.
func TestTxnCrossModalityRollback(t *testing.T) {
	m := NewTxnManager()
	txn := m.Begin(ReadCommitted)

	modalities := []string{ModalityGraph, ModalityVector, ModalityTensor, ModalitySemantic, ModalityDocument, ModalityTemporal}
	for _, mod := range modalities {
		if err := m.AcquireLock(txn, "e-x", mod, LockExclusive); err != nil {
			t.Fatalf("acquire %s: %v", mod, err)
		}
		if err := m.RecordUndo(txn, "e-x", mod, []byte("previous"), true, 0); err != nil {
			t.Fatalf("record undo %s: %v", mod, err)
		}
	}

	reversed, err := m.Rollback(txn)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if len(reversed) != 6 {
		t.Fatalf("expected 6 undo entries, got %d", len(reversed))
	}
	for i := range modalities {
		want := modalities[len(modalities)-1-i]
		if reversed[i].Modality != want {
			t.Errorf("undo entry %d: expected modality %s, got %s", i, want, reversed[i].Modality)
		}
	}
	for _, mod := range modalities {
		if m.CurrentVersion("e-x", mod) != 0 {
			t.Errorf("expected version 0 for %s after rollback", mod)
		}
		if m.IsLocked("e-x", mod) {
			t.Errorf("expected %s unlocked after rollback", mod)
		}
	}
}

// A Serializable transaction whose read set was overwritten by a
// concurrent commit must fail commit-time validation and roll back.
func TestTxnSerializableWriteSkew(t *testing.T) {
	m := NewTxnManager()

	txnA := m.Begin(Serializable)
	if err := m.RecordRead(txnA, "e-1", ModalityGraph); err != nil {
		t.Fatalf("record read: %v", err)
	}

	txnB := m.Begin(ReadCommitted)
	if err := m.AcquireLock(txnB, "e-1", ModalityGraph, LockExclusive); err != nil {
		t.Fatalf("acquire lock for B: %v", err)
	}
	if err := m.RecordUndo(txnB, "e-1", ModalityGraph, nil, false, 0); err != nil {
		t.Fatalf("record undo for B: %v", err)
	}
	if err := m.Commit(txnB); err != nil {
		t.Fatalf("commit B: %v", err)
	}

	err := m.Commit(txnA)
	if err == nil {
		t.Fatal("expected VersionConflict committing A")
	}
	vc, ok := err.(*VersionConflictError)
	if !ok {
		t.Fatalf("expected *VersionConflictError, got %T: %v", err, err)
	}
	if vc.Expected != 0 || vc.Actual != 1 {
		t.Errorf("expected conflict {0,1}, got {%d,%d}", vc.Expected, vc.Actual)
	}
	state, _ := m.State(txnA)
	if state != TxnRolledBack {
		t.Errorf("expected A rolled back, got state %v", state)
	}
}

func TestTxnLockUpgrade(t *testing.T) {
	m := NewTxnManager()
	txn := m.Begin(ReadCommitted)
	if err := m.AcquireLock(txn, "e", ModalityGraph, LockShared); err != nil {
		t.Fatalf("acquire shared: %v", err)
	}
	if err := m.AcquireLock(txn, "e", ModalityGraph, LockExclusive); err != nil {
		t.Fatalf("upgrade to exclusive: %v", err)
	}
}

func TestTxnLockUpgradeConflict(t *testing.T) {
	m := NewTxnManager()
	txnA := m.Begin(ReadCommitted)
	txnB := m.Begin(ReadCommitted)
	if err := m.AcquireLock(txnA, "e", ModalityGraph, LockShared); err != nil {
		t.Fatalf("A acquire shared: %v", err)
	}
	if err := m.AcquireLock(txnB, "e", ModalityGraph, LockShared); err != nil {
		t.Fatalf("B acquire shared: %v", err)
	}
	err := m.AcquireLock(txnA, "e", ModalityGraph, LockExclusive)
	if err == nil {
		t.Fatal("expected upgrade conflict when not sole holder")
	}
	if _, ok := err.(*LockConflictError); !ok {
		t.Fatalf("expected *LockConflictError, got %T: %v", err, err)
	}
}

func TestTxnDeadlockDetection(t *testing.T) {
	m := NewTxnManager()
	txnA := m.Begin(ReadCommitted)
	txnB := m.Begin(ReadCommitted)

	if err := m.AcquireLock(txnA, "e-1", ModalityGraph, LockExclusive); err != nil {
		t.Fatalf("A locks e-1: %v", err)
	}
	if err := m.AcquireLock(txnB, "e-2", ModalityGraph, LockExclusive); err != nil {
		t.Fatalf("B locks e-2: %v", err)
	}
	// A waits on B for e-2.
	if err := m.AcquireLock(txnA, "e-2", ModalityGraph, LockExclusive); err == nil {
		t.Fatal("expected conflict for A waiting on B")
	}
	// B waits on A for e-1, closing the cycle.
	err := m.AcquireLock(txnB, "e-1", ModalityGraph, LockExclusive)
	if err == nil {
		t.Fatal("expected deadlock detection")
	}
	if _, ok := err.(*DeadlockError); !ok {
		t.Fatalf("expected *DeadlockError, got %T: %v", err, err)
	}
}

func TestTxnInvalidModality(t *testing.T) {
	m := NewTxnManager()
	txn := m.Begin(ReadCommitted)
	if err := m.AcquireLock(txn, "e", "not-a-modality", LockShared); err == nil {
		t.Fatal("expected validation error for unrecognised modality")
	}
}

func TestTxnOperationOnNonActive(t *testing.T) {
	m := NewTxnManager()
	txn := m.Begin(ReadCommitted)
	if _, err := m.Rollback(txn); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := m.AcquireLock(txn, "e", ModalityGraph, LockShared); err == nil {
		t.Fatal("expected error acquiring lock on rolled-back transaction")
	}
}
