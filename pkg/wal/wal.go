// Package wal implements the append-only write-ahead log for catalog
// mutations.
//
// On-disk format: a single file of frames, each frame a 4-byte little-endian
// length followed by that many bytes of JSON-encoded Entry. Appends are
// flushed to the OS after every entry; fsync is not mandated, so the reader
// tolerates a torn tail and stops at the last complete frame.
package wal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stashfs/stashfs/internal/logger"
)

// FileName is the name of the active WAL file inside the WAL directory.
const FileName = "current.wal"

// ErrClosed is returned by appends after Close.
var ErrClosed = errors.New("wal: writer closed")

// Writer appends entries to the WAL. A single mutex serializes appends;
// append order is the serialization order of the mutations it records.
type Writer struct {
	mu     sync.Mutex
	dir    string
	file   *os.File
	count  uint64
	closed bool
}

// Open creates the WAL directory if needed and opens the log for appending.
func Open(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating wal dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening wal: %w", err)
	}
	return &Writer{dir: dir, file: f}, nil
}

// Append serializes the entry, writes one frame and flushes to the OS. The
// entry is durable (modulo OS buffers) before Append returns; callers must
// not make the recorded mutation visible before that.
func (w *Writer) Append(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding wal entry: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	var frame [4]byte
	binary.LittleEndian.PutUint32(frame[:], uint32(len(data)))
	if _, err := w.file.Write(frame[:]); err != nil {
		return fmt.Errorf("writing wal frame: %w", err)
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("writing wal entry: %w", err)
	}
	w.count++
	return nil
}

// Truncate atomically replaces the current WAL with an empty file. Called
// only after a successful snapshot; this is the only supported compaction.
func (w *Writer) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	fresh, err := os.OpenFile(filepath.Join(w.dir, FileName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("truncating wal: %w", err)
	}
	old := w.file
	w.file = fresh
	w.count = 0
	if err := old.Close(); err != nil {
		logger.Warn("closing previous wal file", "error", err)
	}
	return nil
}

// EntryCount returns the number of entries appended since open or truncate.
func (w *Writer) EntryCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close releases the underlying file. Further appends fail with ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// ReadEntries reads all complete entries from the WAL in append order. A
// short frame or an undecodable entry at the tail ends the scan without
// error: a crash mid-append must not block recovery.
func ReadEntries(dir string) ([]Entry, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading wal: %w", err)
	}

	var entries []Entry
	cursor := 0
	for cursor+4 <= len(data) {
		length := int(binary.LittleEndian.Uint32(data[cursor : cursor+4]))
		cursor += 4
		if cursor+length > len(data) {
			logger.Warn("wal truncated at entry boundary, stopping replay",
				"entries_read", len(entries))
			break
		}
		var entry Entry
		if err := json.Unmarshal(data[cursor:cursor+length], &entry); err != nil {
			logger.Warn("wal entry corrupt, stopping replay",
				"entries_read", len(entries), "error", err)
			break
		}
		entries = append(entries, entry)
		cursor += length
	}
	return entries, nil
}
