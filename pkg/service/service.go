// Package service coordinates the catalog, the write-ahead log and the byte
// store so that metadata and bytes never permanently disagree. Every durable
// mutation follows the same ordering: append the WAL entry, touch the
// filesystem, then make the catalog mutation visible.
package service

import (
	"github.com/google/uuid"

	"github.com/stashfs/stashfs/internal/apperr"
	"github.com/stashfs/stashfs/pkg/catalog"
	"github.com/stashfs/stashfs/pkg/metrics"
	"github.com/stashfs/stashfs/pkg/store"
	"github.com/stashfs/stashfs/pkg/wal"
)

// Service is the write path for repositories and files.
type Service struct {
	cat   *catalog.Catalog
	wlog  *wal.Writer
	store *store.Store
	met   *metrics.Metrics

	defaultMaxRepoSize uint64
	maxUploadSize      uint64
}

// Params bundles the collaborators and limits a Service needs.
type Params struct {
	Catalog *catalog.Catalog
	WAL     *wal.Writer
	Store   *store.Store
	Metrics *metrics.Metrics

	DefaultMaxRepoSize uint64
	MaxUploadSize      uint64
}

// New wires a Service from its collaborators.
func New(p Params) *Service {
	return &Service{
		cat:                p.Catalog,
		wlog:               p.WAL,
		store:              p.Store,
		met:                p.Metrics,
		defaultMaxRepoSize: p.DefaultMaxRepoSize,
		maxUploadSize:      p.MaxUploadSize,
	}
}

// appendWAL appends one entry and counts it. A failed append aborts the
// mutation before any state became visible.
func (s *Service) appendWAL(entry wal.Entry) error {
	if err := s.wlog.Append(&entry); err != nil {
		return apperr.Wrap(err, "Failed to write WAL entry")
	}
	if s.met != nil {
		s.met.WALAppends.Inc()
	}
	return nil
}

// RepoFilesRoot returns the on-disk files root of a repository, the working
// directory for sandboxed commands.
func (s *Service) RepoFilesRoot(repoID uuid.UUID) (string, error) {
	if !s.cat.HasRepo(repoID) {
		return "", apperr.NotFoundf("Repository not found")
	}
	return s.store.FilesRoot(repoID), nil
}

// ResolvePath maps a canonical file path to its on-disk location.
func (s *Service) ResolvePath(repoID uuid.UUID, path string) (string, error) {
	return s.store.Resolve(repoID, path)
}
