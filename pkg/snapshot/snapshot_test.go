package snapshot

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stashfs/stashfs/pkg/model"
)

func sampleSnapshot() *model.Snapshot {
	repoID := uuid.New()
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Snapshot{
		Version:   model.SnapshotVersion,
		Timestamp: now,
		Repos: map[uuid.UUID]model.RepoMeta{
			repoID: {
				ID: repoID, Name: "docs", MaxSizeBytes: 1 << 20,
				CurrentSizeBytes: 5, FileCount: 1,
				CreatedAt: now, UpdatedAt: now, LastAccessedAt: now,
				Tags: map[string]string{"team": "infra"},
			},
		},
		Files: map[uuid.UUID]map[string]model.FileMeta{
			repoID: {
				"a.txt": {
					RepoID: repoID, Path: "a.txt", SizeBytes: 5,
					ETag: "deadbeef", ContentType: "text/plain",
					CreatedAt: now, UpdatedAt: now, LastAccessedAt: now,
				},
			},
		},
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	snap := sampleSnapshot()

	if err := Save(path, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("staging file left behind")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil for a valid snapshot")
	}
	if len(loaded.Repos) != 1 || len(loaded.Files) != 1 {
		t.Fatalf("loaded %d repos, %d file maps", len(loaded.Repos), len(loaded.Files))
	}
	for id, repo := range loaded.Repos {
		if repo.Name != "docs" || repo.Tags["team"] != "infra" {
			t.Errorf("repo mismatch: %+v", repo)
		}
		if loaded.Files[id]["a.txt"].ETag != "deadbeef" {
			t.Errorf("file mismatch: %+v", loaded.Files[id]["a.txt"])
		}
	}
}

func TestLoad_Missing(t *testing.T) {
	snap, err := Load(filepath.Join(t.TempDir(), "nope.bin"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap != nil {
		t.Error("missing snapshot should load as nil")
	}
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	if err := os.WriteFile(path, []byte("not a snapshot"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	snap, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap != nil {
		t.Error("corrupt snapshot should load as nil")
	}
}

func TestLoad_VersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")

	bad := sampleSnapshot()
	bad.Version = 99
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(bad); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	snap, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap != nil {
		t.Error("mismatched version should load as nil")
	}
}

func TestSave_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")

	first := sampleSnapshot()
	if err := Save(path, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := sampleSnapshot()
	second.Repos = map[uuid.UUID]model.RepoMeta{}
	second.Files = map[uuid.UUID]map[string]model.FileMeta{}
	if err := Save(path, second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Repos) != 0 {
		t.Errorf("expected empty snapshot, got %d repos", len(loaded.Repos))
	}
}
