// Package snapshot persists full catalog dumps as versioned binary blobs.
//
// Writes stage to "<path>.tmp" and rename over the target, so readers only
// ever observe a complete previous or complete new snapshot. Loads treat a
// missing file, a version mismatch or a decode failure as "no snapshot";
// recovery then proceeds from the WAL alone.
package snapshot

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stashfs/stashfs/internal/logger"
	"github.com/stashfs/stashfs/pkg/model"
)

// Save serializes the snapshot and atomically replaces the file at path.
func Save(path string, snap *model.Snapshot) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("staging snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot at path. A nil snapshot with nil error means no
// usable snapshot exists.
func Load(path string) (*model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap model.Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		logger.Error("snapshot decode failed, ignoring snapshot", "path", path, "error", err)
		return nil, nil
	}
	if snap.Version != model.SnapshotVersion {
		logger.Warn("snapshot version mismatch, ignoring snapshot",
			"expected", model.SnapshotVersion, "got", snap.Version)
		return nil, nil
	}
	return &snap, nil
}
