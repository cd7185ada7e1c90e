// Package recovery rebuilds the metadata catalog at startup: load the last
// snapshot, replay the write-ahead log on top of it, then reconcile the
// result against what is actually on disk.
package recovery

import (
	"fmt"
	"os"
	"time"

	"github.com/stashfs/stashfs/internal/logger"
	"github.com/stashfs/stashfs/pkg/catalog"
	"github.com/stashfs/stashfs/pkg/model"
	"github.com/stashfs/stashfs/pkg/snapshot"
	"github.com/stashfs/stashfs/pkg/store"
	"github.com/stashfs/stashfs/pkg/wal"
)

// Result carries the recovered state: a consistent catalog and an open WAL
// writer positioned for appends.
type Result struct {
	Catalog *catalog.Catalog
	WAL     *wal.Writer
}

// Bootstrap performs the full startup sequence. reposDir and walDir are
// created if missing; snapshotPath may point at a missing file.
func Bootstrap(reposDir, walDir, snapshotPath string, st *store.Store) (*Result, error) {
	for _, dir := range []string{reposDir, walDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	w, err := wal.Open(walDir)
	if err != nil {
		return nil, fmt.Errorf("opening WAL: %w", err)
	}

	cat := catalog.New()
	if snap, err := snapshot.Load(snapshotPath); err != nil {
		w.Close()
		return nil, fmt.Errorf("loading snapshot: %w", err)
	} else if snap != nil {
		cat.Restore(snap)
		logger.Info("snapshot loaded",
			"repos", len(snap.Repos), "taken_at", snap.Timestamp)
	}

	entries, err := wal.ReadEntries(walDir)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("reading WAL: %w", err)
	}
	replay(cat, entries)
	if len(entries) > 0 {
		logger.Info("WAL replayed", "entries", len(entries))
	}

	reconcile(cat, st)

	logger.Info("recovery complete",
		"repos", cat.RepoCount(), "total_bytes", cat.TotalSizeBytes())
	return &Result{Catalog: cat, WAL: w}, nil
}

// replay applies WAL entries in order, exactly as the live mutation paths
// would. Entries referencing missing records are ignored; access stats are
// not persisted and start at zero.
func replay(cat *catalog.Catalog, entries []wal.Entry) {
	now := time.Now().UTC()

	for _, e := range entries {
		switch e.Type {
		case wal.TypeRepoCreated:
			rc := e.RepoCreated
			if rc == nil {
				continue
			}
			cat.InsertRepo(model.RepoMeta{
				ID:             rc.ID,
				Name:           rc.Name,
				MaxSizeBytes:   rc.MaxSizeBytes,
				CreatedAt:      rc.CreatedAt,
				UpdatedAt:      rc.CreatedAt,
				LastAccessedAt: rc.CreatedAt,
				DefaultTTLSecs: rc.DefaultTTLSecs,
				Tags:           map[string]string{},
			})

		case wal.TypeRepoUpdated:
			if e.RepoUpdated == nil {
				continue
			}
			cat.MutateRepo(e.RepoUpdated.ID, e.RepoUpdated.Apply)

		case wal.TypeRepoDeleted:
			if e.RepoDeleted == nil {
				continue
			}
			cat.DeleteRepo(e.RepoDeleted.ID)

		case wal.TypeRepoSizeChanged:
			sc := e.RepoSizeChanged
			if sc == nil {
				continue
			}
			cat.SetRepoAccounting(sc.ID, sc.CurrentSizeBytes, sc.FileCount)

		case wal.TypeFileCreated:
			fc := e.FileCreated
			if fc == nil {
				continue
			}
			cat.ApplyFileCreate(fc.RepoID, model.FileMeta{
				RepoID:         fc.RepoID,
				Path:           fc.Path,
				SizeBytes:      fc.SizeBytes,
				ETag:           fc.ETag,
				ContentType:    fc.ContentType,
				CreatedAt:      fc.CreatedAt,
				UpdatedAt:      fc.CreatedAt,
				LastAccessedAt: fc.CreatedAt,
				ExpiresAt:      fc.ExpiresAt,
			})

		case wal.TypeFileDeleted:
			fd := e.FileDeleted
			if fd == nil {
				continue
			}
			cat.ApplyFileDelete(fd.RepoID, fd.Path, now)

		case wal.TypeFileMoved:
			fm := e.FileMoved
			if fm == nil {
				continue
			}
			cat.ApplyFileMove(fm.RepoID, fm.Source, fm.Destination, fm.UpdatedAt)

		default:
			logger.Warn("unknown WAL entry type skipped", "type", string(e.Type))
		}
	}
}

// reconcile aligns the replayed catalog with the byte store: repositories
// whose directory vanished are dropped entirely, file records without bytes
// are dropped, and size accounting is recomputed from the survivors.
func reconcile(cat *catalog.Catalog, st *store.Store) {
	for _, id := range cat.RepoIDs() {
		if !st.RepoExists(id) {
			logger.Warn("repository directory missing, dropping record", "repo_id", id)
			cat.DeleteRepo(id)
			continue
		}

		var size, count uint64
		for _, meta := range cat.ListFiles(id) {
			if !st.Exists(id, meta.Path) {
				logger.Warn("file bytes missing, dropping record",
					"repo_id", id, "path", meta.Path)
				cat.DropFile(id, meta.Path)
				continue
			}
			size += meta.SizeBytes
			count++
		}
		cat.SetRepoAccounting(id, size, count)
	}
}
