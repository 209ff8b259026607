package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"verisimdb/pkg/utils"
)

// WalOperation is the mutation kind recorded in a WalEntry.
type WalOperation int

const (
	WalInsert WalOperation = iota
	WalUpdate
	WalDelete
	WalCheckpoint
)

func (o WalOperation) String() string {
	switch o {
	case WalInsert:
		return "insert"
	case WalUpdate:
		return "update"
	case WalDelete:
		return "delete"
	case WalCheckpoint:
		return "checkpoint"
	default:
		return "unknown"
	}
}

// SyncMode controls whether WAL appends fsync before returning.
type SyncMode int

const (
	// SyncFsync blocks append until the OS confirms the write is durable.
	SyncFsync SyncMode = iota
	// SyncAsync returns once the write is buffered; durability is
	// deferred. Test suites should exercise both modes explicitly.
	SyncAsync
)

// MaxEntrySize bounds a single WalEntry's serialized body.
const MaxEntrySize = 16 * 1024 * 1024 // 16 MiB

// DefaultMaxSegmentSize is the default segment rotation threshold.
const DefaultMaxSegmentSize int64 = 64 * 1024 * 1024 // 64 MiB

// WalEntry is a single durable mutation record.
type WalEntry struct {
	Sequence  uint64       `json:"sequence"`
	Timestamp time.Time    `json:"timestamp"`
	Operation WalOperation `json:"operation"`
	Modality  string       `json:"modality"`
	EntityID  string       `json:"entity_id"`
	Payload   []byte       `json:"payload"`
}

func encodeEntry(e WalEntry) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func decodeEntry(body []byte) (WalEntry, error) {
	var e WalEntry
	err := json.Unmarshal(body, &e)
	return e, err
}

var segmentNamePattern = regexp.MustCompile(`^wal-(\d{20})\.log$`)

func segmentName(firstSequence uint64) string {
	return fmt.Sprintf("wal-%020d.log", firstSequence)
}

// Wal is the write-ahead log writer. It owns the active segment file and
// assigns strictly monotonic sequence numbers.
type Wal struct {
	mu             sync.Mutex
	dir            string
	sync           SyncMode
	maxSegmentSize int64
	log            *logrus.Logger

	file        *os.File
	segmentSize int64
	nextSeq     uint64
}

// OpenWal opens (creating if necessary) a WAL directory, recovering the
// next sequence number by scanning existing segments.
func OpenWal(dir string, mode SyncMode, maxSegmentSize int64, log *logrus.Logger) (*Wal, error) {
	if maxSegmentSize <= 0 {
		maxSegmentSize = DefaultMaxSegmentSize
	}
	if log == nil {
		log = logrus.New()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapErr(CodeIO, "create wal dir", err)
	}

	w := &Wal{dir: dir, sync: mode, maxSegmentSize: maxSegmentSize, log: log, nextSeq: 1}

	segments, err := listSegments(dir)
	if err != nil {
		return nil, wrapErr(CodeIO, "list wal segments", err)
	}
	if len(segments) > 0 {
		last := segments[len(segments)-1]
		entries, _ := readSegment(filepath.Join(dir, last.name), log)
		if len(entries) > 0 {
			w.nextSeq = entries[len(entries)-1].Sequence + 1
		} else {
			w.nextSeq = last.firstSeq
		}
		f, err := os.OpenFile(filepath.Join(dir, last.name), os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return nil, wrapErr(CodeIO, "reopen wal segment", err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, wrapErr(CodeIO, "stat wal segment", err)
		}
		w.file = f
		w.segmentSize = info.Size()
	} else {
		if err := w.rotate(1); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Wal) rotate(firstSeq uint64) error {
	if w.file != nil {
		w.file.Close()
	}
	path := filepath.Join(w.dir, segmentName(firstSeq))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return wrapErr(CodeIO, "create wal segment", err)
	}
	w.file = f
	w.segmentSize = 0
	return nil
}

// Append assigns the next sequence number, writes length|crc32|body, and
// flushes according to the configured sync mode. Returns the assigned
// sequence.
func (w *Wal) Append(operation WalOperation, modality, entityID string, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append(operation, modality, entityID, payload, w.sync == SyncFsync)
}

// append writes a single entry. Caller must hold w.mu.
func (w *Wal) append(operation WalOperation, modality, entityID string, payload []byte, fsync bool) (uint64, error) {
	seq := w.nextSeq
	body, err := encodeEntry(WalEntry{
		Sequence:  seq,
		Operation: operation,
		Modality:  modality,
		EntityID:  entityID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return 0, wrapErr(CodeInternal, "encode wal entry", err)
	}
	if len(body) > MaxEntrySize {
		return 0, &EntryTooLargeError{Size: len(body), Max: MaxEntrySize}
	}

	if w.segmentSize+int64(4+4+len(body)) > w.maxSegmentSize && w.segmentSize > 0 {
		if err := w.rotate(seq); err != nil {
			return 0, err
		}
	}

	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(body))

	if _, err := w.file.Write(header[:]); err != nil {
		return 0, wrapErr(CodeIO, "write wal header", err)
	}
	if _, err := w.file.Write(body); err != nil {
		return 0, wrapErr(CodeIO, "write wal body", err)
	}
	if fsync {
		if err := w.file.Sync(); err != nil {
			return 0, wrapErr(CodeIO, "fsync wal segment", err)
		}
	}

	w.segmentSize += int64(8 + len(body))
	w.nextSeq++
	return seq, nil
}

// Checkpoint writes a Checkpoint entry with an empty payload; always
// fsync'd regardless of the configured sync mode.
func (w *Wal) Checkpoint() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append(WalCheckpoint, "", "", nil, true)
}

// CurrentSequence returns the next sequence number that will be assigned,
// useful for health reporting.
func (w *Wal) CurrentSequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextSeq
}

// Close flushes and closes the active segment.
func (w *Wal) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

type segmentInfo struct {
	name     string
	firstSeq uint64
}

// listSegments lists WAL segment files in dir sorted by the embedded
// starting sequence number, mirroring the original's numeric-suffix
// segment listing helper.
func listSegments(dir string) ([]segmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var segs []segmentInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := segmentNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		seq, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		segs = append(segs, segmentInfo{name: e.Name(), firstSeq: seq})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].firstSeq < segs[j].firstSeq })
	return segs, nil
}

// readSegment reads a single segment file, stopping at the first
// truncated or malformed header without error. CRC mismatches are logged
// and skipped; reading continues with the next entry.
func readSegment(path string, log *logrus.Logger) ([]WalEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []WalEntry
	offset := 0
	size := len(data)
	for offset+8 <= size {
		length := binary.LittleEndian.Uint32(data[offset : offset+4])
		crc := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		if length == 0 || int(length) > MaxEntrySize {
			break
		}
		if offset+8+int(length) > size {
			break // final entry truncated mid-write
		}
		body := data[offset+8 : offset+8+int(length)]
		if crc32.ChecksumIEEE(body) != crc {
			if log != nil {
				log.WithField("offset", offset).Warn("wal: crc mismatch, skipping entry")
			}
			offset += 8 + int(length)
			continue
		}
		entry, err := decodeEntry(body)
		if err != nil {
			if log != nil {
				log.WithField("offset", offset).WithError(err).Warn("wal: malformed entry, skipping")
			}
			offset += 8 + int(length)
			continue
		}
		entries = append(entries, entry)
		offset += 8 + int(length)
	}
	return entries, nil
}

// WalReader replays entries from a WAL directory independently of the
// writer, used for crash recovery and federation-free inspection.
type WalReader struct {
	dir string
	log *logrus.Logger
}

// OpenWalReader opens a reader over dir without taking ownership of the
// active segment (read-only, shared with the writer).
func OpenWalReader(dir string, log *logrus.Logger) *WalReader {
	if log == nil {
		log = logrus.New()
	}
	return &WalReader{dir: dir, log: log}
}

// ReplayFrom returns every entry with Sequence >= threshold across all
// segments, in ascending order. Corrupt entries are skipped, not fatal.
func (r *WalReader) ReplayFrom(threshold uint64) ([]WalEntry, error) {
	segments, err := listSegments(r.dir)
	if err != nil {
		return nil, utils.Wrap(err, "list segments")
	}
	var all []WalEntry
	for _, seg := range segments {
		entries, err := readSegment(filepath.Join(r.dir, seg.name), r.log)
		if err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("read segment %s", seg.name))
		}
		all = append(all, entries...)
	}
	out := all[:0:0]
	for _, e := range all {
		if e.Sequence >= threshold {
			out = append(out, e)
		}
	}
	return out, nil
}

// ReplayAll is ReplayFrom(0), returning every entry in the log.
func (r *WalReader) ReplayAll() ([]WalEntry, error) {
	return r.ReplayFrom(0)
}

// FindLastCheckpoint returns the highest sequence whose operation is
// Checkpoint, used as the safe replay-start point during recovery.
func (r *WalReader) FindLastCheckpoint() (uint64, bool, error) {
	entries, err := r.ReplayAll()
	if err != nil {
		return 0, false, err
	}
	var found uint64
	ok := false
	for _, e := range entries {
		if e.Operation == WalCheckpoint && (!ok || e.Sequence > found) {
			found = e.Sequence
			ok = true
		}
	}
	return found, ok, nil
}
