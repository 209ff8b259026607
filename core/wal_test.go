package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWalAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWal(dir, SyncFsync, 0, nil)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}

	ids := []string{"e-1", "e-2", "e-3"}
	for _, id := range ids {
		if _, err := w.Append(WalInsert, ModalityDocument, id, []byte(`{"v":1}`)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r := OpenWalReader(dir, nil)
	entries, err := r.ReplayAll()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.EntityID != ids[i] {
			t.Errorf("entry %d: expected id %s, got %s", i, ids[i], e.EntityID)
		}
		if e.Sequence != uint64(i+1) {
			t.Errorf("entry %d: expected sequence %d, got %d", i, i+1, e.Sequence)
		}
	}
}

// TestWalCrashRecoveryTruncatedSegment truncates a segment mid-write to
// the third entry's body; replay must yield exactly the first two
// entries, without error.
func TestWalCrashRecoveryTruncatedSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWal(dir, SyncFsync, 0, nil)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	for _, id := range []string{"e-1", "e-2", "e-3"} {
		if _, err := w.Append(WalInsert, ModalityDocument, id, []byte(`{"payload":"data"}`)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	segments, err := listSegments(dir)
	if err != nil || len(segments) != 1 {
		t.Fatalf("expected single segment, got %v err=%v", segments, err)
	}
	path := filepath.Join(dir, segments[0].name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}

	// Find the byte offset where the third entry's header begins, then
	// truncate partway through its body.
	offset := 0
	var thirdHeaderEnd int
	for i := 0; i < 3; i++ {
		length := int(le32(data[offset : offset+4]))
		if i == 2 {
			thirdHeaderEnd = offset + 8
			_ = length
			break
		}
		offset += 8 + length
	}
	truncateAt := thirdHeaderEnd + 3 // partway into the third body
	if truncateAt > len(data) {
		truncateAt = len(data) - 1
	}
	if err := os.WriteFile(path, data[:truncateAt], 0o644); err != nil {
		t.Fatalf("truncate segment: %v", err)
	}

	r := OpenWalReader(dir, nil)
	entries, err := r.ReplayAll()
	if err != nil {
		t.Fatalf("replay after truncation: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after truncation, got %d", len(entries))
	}
	if entries[0].EntityID != "e-1" || entries[1].EntityID != "e-2" {
		t.Fatalf("unexpected entries after truncation: %+v", entries)
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func TestWalSegmentRotation(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWal(dir, SyncAsync, 64, nil) // tiny segment size forces rotation
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := w.Append(WalInsert, ModalityDocument, "e", []byte(`{"x":"some payload bytes here"}`)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	w.Close()

	segments, err := listSegments(dir)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments from rotation, got %d", len(segments))
	}
}

func TestWalCheckpointAndReplayFrom(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWal(dir, SyncAsync, 0, nil)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	if _, err := w.Append(WalInsert, ModalityDocument, "e-1", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	ckpt, err := w.Checkpoint()
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if _, err := w.Append(WalUpdate, ModalityDocument, "e-1", nil); err != nil {
		t.Fatalf("append after checkpoint: %v", err)
	}
	w.Close()

	r := OpenWalReader(dir, nil)
	seq, ok, err := r.FindLastCheckpoint()
	if err != nil {
		t.Fatalf("find last checkpoint: %v", err)
	}
	if !ok || seq != ckpt {
		t.Fatalf("expected checkpoint at %d, got %d (ok=%v)", ckpt, seq, ok)
	}

	entries, err := r.ReplayFrom(ckpt)
	if err != nil {
		t.Fatalf("replay from checkpoint: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected checkpoint + following entry, got %d entries", len(entries))
	}
	if entries[0].Operation != WalCheckpoint || entries[1].Operation != WalUpdate {
		t.Fatalf("unexpected replayed operations: %+v", entries)
	}
}

func TestWalEntryTooLarge(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWal(dir, SyncFsync, 0, nil)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	defer w.Close()

	huge := make([]byte, MaxEntrySize+1)
	_, err = w.Append(WalInsert, ModalityDocument, "e-huge", huge)
	if err == nil {
		t.Fatal("expected EntryTooLargeError")
	}
	if _, ok := err.(*EntryTooLargeError); !ok {
		t.Fatalf("expected *EntryTooLargeError, got %T: %v", err, err)
	}
}
