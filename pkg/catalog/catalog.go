// Package catalog holds the in-memory metadata index: every repository
// record and, per repository, every file record. It is the single source of
// truth at runtime; durability lives in the WAL and snapshot store.
//
// Locking discipline: a global RWMutex guards only the repository map
// structure. Each repository entry carries its own RWMutex guarding the repo
// record and its file map, so mutations on different repositories proceed in
// parallel while size accounting on one repository is serialized. No lock is
// ever held across I/O.
package catalog

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stashfs/stashfs/pkg/model"
)

type repoEntry struct {
	mu    sync.RWMutex
	repo  model.RepoMeta
	files map[string]model.FileMeta
}

// Catalog is the concurrent metadata index. The zero value is not usable;
// call New.
type Catalog struct {
	mu    sync.RWMutex
	repos map[uuid.UUID]*repoEntry
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{repos: make(map[uuid.UUID]*repoEntry)}
}

func (c *Catalog) entry(id uuid.UUID) (*repoEntry, bool) {
	c.mu.RLock()
	e, ok := c.repos[id]
	c.mu.RUnlock()
	return e, ok
}

// ============================================================================
// Repository operations
// ============================================================================

// InsertRepo adds a repository with an empty file index, replacing any
// existing entry with the same id.
func (c *Catalog) InsertRepo(repo model.RepoMeta) {
	c.mu.Lock()
	c.repos[repo.ID] = &repoEntry{repo: repo, files: make(map[string]model.FileMeta)}
	c.mu.Unlock()
}

// GetRepo returns a copy of the repository record.
func (c *Catalog) GetRepo(id uuid.UUID) (model.RepoMeta, bool) {
	e, ok := c.entry(id)
	if !ok {
		return model.RepoMeta{}, false
	}
	e.mu.RLock()
	repo := cloneRepo(e.repo)
	e.mu.RUnlock()
	return repo, true
}

// HasRepo reports whether the repository exists.
func (c *Catalog) HasRepo(id uuid.UUID) bool {
	_, ok := c.entry(id)
	return ok
}

// MutateRepo applies fn to the repository record under its entry lock.
// Returns false if the repository does not exist.
func (c *Catalog) MutateRepo(id uuid.UUID, fn func(*model.RepoMeta)) bool {
	e, ok := c.entry(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	fn(&e.repo)
	e.mu.Unlock()
	return true
}

// DeleteRepo removes the repository and its whole file index.
func (c *Catalog) DeleteRepo(id uuid.UUID) bool {
	c.mu.Lock()
	_, ok := c.repos[id]
	delete(c.repos, id)
	c.mu.Unlock()
	return ok
}

// RepoIDs returns a point-in-time list of repository ids.
func (c *Catalog) RepoIDs() []uuid.UUID {
	c.mu.RLock()
	ids := make([]uuid.UUID, 0, len(c.repos))
	for id := range c.repos {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	return ids
}

// RepoCount returns the number of repositories.
func (c *Catalog) RepoCount() int {
	c.mu.RLock()
	n := len(c.repos)
	c.mu.RUnlock()
	return n
}

// ListRepos returns copies of every repository record.
func (c *Catalog) ListRepos() []model.RepoMeta {
	c.mu.RLock()
	entries := make([]*repoEntry, 0, len(c.repos))
	for _, e := range c.repos {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	repos := make([]model.RepoMeta, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		repos = append(repos, cloneRepo(e.repo))
		e.mu.RUnlock()
	}
	return repos
}

// TotalSizeBytes sums current_size_bytes over all repositories.
func (c *Catalog) TotalSizeBytes() uint64 {
	var total uint64
	for _, repo := range c.ListRepos() {
		total += repo.CurrentSizeBytes
	}
	return total
}

// ============================================================================
// File operations
// ============================================================================

// GetFile returns a copy of a file record.
func (c *Catalog) GetFile(repoID uuid.UUID, path string) (model.FileMeta, bool) {
	e, ok := c.entry(repoID)
	if !ok {
		return model.FileMeta{}, false
	}
	e.mu.RLock()
	meta, ok := e.files[path]
	e.mu.RUnlock()
	return meta, ok
}

// FileCount returns the number of files indexed for a repository.
func (c *Catalog) FileCount(repoID uuid.UUID) int {
	e, ok := c.entry(repoID)
	if !ok {
		return 0
	}
	e.mu.RLock()
	n := len(e.files)
	e.mu.RUnlock()
	return n
}

// ListFiles returns copies of every file record of a repository, sorted by
// path ascending.
func (c *Catalog) ListFiles(repoID uuid.UUID) []model.FileMeta {
	e, ok := c.entry(repoID)
	if !ok {
		return nil
	}
	e.mu.RLock()
	files := make([]model.FileMeta, 0, len(e.files))
	for _, meta := range e.files {
		files = append(files, meta)
	}
	e.mu.RUnlock()

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

// ApplyFileCreate inserts or replaces a file record and adjusts the
// repository's size accumulator and file count in the same critical section.
// Returns the previous size and whether the path already existed.
func (c *Catalog) ApplyFileCreate(repoID uuid.UUID, meta model.FileMeta) (prevSize uint64, existed bool) {
	e, ok := c.entry(repoID)
	if !ok {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	old, existed := e.files[meta.Path]
	if existed {
		prevSize = old.SizeBytes
	}
	e.files[meta.Path] = meta

	e.repo.CurrentSizeBytes = e.repo.CurrentSizeBytes - prevSize + meta.SizeBytes
	if !existed {
		e.repo.FileCount++
	}
	e.repo.UpdatedAt = meta.UpdatedAt
	return prevSize, existed
}

// ApplyFileDelete removes a file record and decrements the repository's
// accounting with saturation. Returns the removed record.
func (c *Catalog) ApplyFileDelete(repoID uuid.UUID, path string, now time.Time) (model.FileMeta, bool) {
	e, ok := c.entry(repoID)
	if !ok {
		return model.FileMeta{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	meta, ok := e.files[path]
	if !ok {
		return model.FileMeta{}, false
	}
	delete(e.files, path)

	if e.repo.CurrentSizeBytes >= meta.SizeBytes {
		e.repo.CurrentSizeBytes -= meta.SizeBytes
	} else {
		e.repo.CurrentSizeBytes = 0
	}
	if e.repo.FileCount > 0 {
		e.repo.FileCount--
	}
	e.repo.UpdatedAt = now
	return meta, true
}

// ApplyFileMove re-keys a file record from source to destination. The
// destination must be vacant; callers check before appending the WAL entry
// and this re-checks under the lock. No size change.
func (c *Catalog) ApplyFileMove(repoID uuid.UUID, source, destination string, now time.Time) (model.FileMeta, bool) {
	e, ok := c.entry(repoID)
	if !ok {
		return model.FileMeta{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	meta, ok := e.files[source]
	if !ok {
		return model.FileMeta{}, false
	}
	if _, taken := e.files[destination]; taken {
		return model.FileMeta{}, false
	}
	delete(e.files, source)
	meta.Path = destination
	meta.UpdatedAt = now
	e.files[destination] = meta
	return meta, true
}

// TouchFile updates access stats for a file. Not persisted; recovery resets
// these fields.
func (c *Catalog) TouchFile(repoID uuid.UUID, path string, now time.Time) {
	e, ok := c.entry(repoID)
	if !ok {
		return
	}
	e.mu.Lock()
	if meta, ok := e.files[path]; ok {
		meta.LastAccessedAt = now
		meta.AccessCount++
		e.files[path] = meta
	}
	e.mu.Unlock()
}

// SetRepoAccounting overwrites the size accumulator and file count with
// exact values. Used by WAL replay and filesystem reconciliation.
func (c *Catalog) SetRepoAccounting(repoID uuid.UUID, sizeBytes, fileCount uint64) {
	c.MutateRepo(repoID, func(r *model.RepoMeta) {
		r.CurrentSizeBytes = sizeBytes
		r.FileCount = fileCount
	})
}

// DropFile removes a file record without touching repository accounting.
// Reconciliation uses this before recomputing exact totals.
func (c *Catalog) DropFile(repoID uuid.UUID, path string) {
	e, ok := c.entry(repoID)
	if !ok {
		return
	}
	e.mu.Lock()
	delete(e.files, path)
	e.mu.Unlock()
}

// ============================================================================
// Snapshots
// ============================================================================

// Snapshot deep-copies the whole catalog into a snapshot record. It takes
// only point-in-time copies of the maps and never blocks writers for the
// duration of snapshot I/O.
func (c *Catalog) Snapshot(now time.Time) *model.Snapshot {
	c.mu.RLock()
	entries := make(map[uuid.UUID]*repoEntry, len(c.repos))
	for id, e := range c.repos {
		entries[id] = e
	}
	c.mu.RUnlock()

	snap := &model.Snapshot{
		Version:   model.SnapshotVersion,
		Timestamp: now,
		Repos:     make(map[uuid.UUID]model.RepoMeta, len(entries)),
		Files:     make(map[uuid.UUID]map[string]model.FileMeta, len(entries)),
	}
	for id, e := range entries {
		e.mu.RLock()
		snap.Repos[id] = cloneRepo(e.repo)
		files := make(map[string]model.FileMeta, len(e.files))
		for path, meta := range e.files {
			files[path] = meta
		}
		snap.Files[id] = files
		e.mu.RUnlock()
	}
	return snap
}

// Restore replaces the catalog contents with a loaded snapshot.
func (c *Catalog) Restore(snap *model.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.repos = make(map[uuid.UUID]*repoEntry, len(snap.Repos))
	for id, repo := range snap.Repos {
		files := make(map[string]model.FileMeta, len(snap.Files[id]))
		for path, meta := range snap.Files[id] {
			files[path] = meta
		}
		c.repos[id] = &repoEntry{repo: cloneRepo(repo), files: files}
	}
}

func cloneRepo(repo model.RepoMeta) model.RepoMeta {
	out := repo
	if repo.Tags != nil {
		out.Tags = make(map[string]string, len(repo.Tags))
		for k, v := range repo.Tags {
			out.Tags[k] = v
		}
	}
	if repo.DefaultTTLSecs != nil {
		ttl := *repo.DefaultTTLSecs
		out.DefaultTTLSecs = &ttl
	}
	return out
}
