package service

import (
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stashfs/stashfs/internal/apperr"
	"github.com/stashfs/stashfs/internal/logger"
	"github.com/stashfs/stashfs/pkg/model"
	"github.com/stashfs/stashfs/pkg/pathsafe"
	"github.com/stashfs/stashfs/pkg/wal"
)

// Upload stores a whole-body payload at the given path, replacing any
// existing file. If the projected repository size would exceed the ceiling,
// the eviction engine is asked to free the difference first.
func (s *Service) Upload(repoID uuid.UUID, rawPath string, data []byte, ttlOverride *uint64) (model.FileMeta, error) {
	p, err := pathsafe.Clean(rawPath)
	if err != nil {
		return model.FileMeta{}, err
	}

	repo, ok := s.cat.GetRepo(repoID)
	if !ok {
		return model.FileMeta{}, apperr.NotFoundf("Repository not found")
	}

	size := uint64(len(data))
	if size > s.maxUploadSize {
		return model.FileMeta{}, apperr.PayloadTooLargef("Upload exceeds maximum size of %d bytes", s.maxUploadSize)
	}

	var existingSize uint64
	if existing, ok := s.cat.GetFile(repoID, p); ok {
		existingSize = existing.SizeBytes
	}
	projected := repo.CurrentSizeBytes - existingSize + size
	if projected > repo.MaxSizeBytes {
		needed := projected - repo.MaxSizeBytes
		freed := s.EvictBytes(repoID, needed)
		if freed < needed {
			return model.FileMeta{}, apperr.PayloadTooLargef(
				"Repository quota exceeded: %d bytes needed, %d freed", needed, freed)
		}
	}

	digest := sha256.Sum256(data)
	etag := hex.EncodeToString(digest[:])
	contentType := guessContentType(p)

	now := time.Now().UTC()
	expiresAt := resolveExpiry(now, ttlOverride, repo.DefaultTTLSecs)

	if err := s.appendWAL(wal.Entry{
		Type: wal.TypeFileCreated,
		FileCreated: &wal.FileCreated{
			RepoID:      repoID,
			Path:        p,
			SizeBytes:   size,
			ETag:        etag,
			ContentType: contentType,
			CreatedAt:   now,
			ExpiresAt:   expiresAt,
		},
	}); err != nil {
		return model.FileMeta{}, err
	}

	if err := s.store.WriteFile(repoID, p, data); err != nil {
		return model.FileMeta{}, apperr.Wrap(err, "Failed to write file")
	}

	meta := model.FileMeta{
		RepoID:         repoID,
		Path:           p,
		SizeBytes:      size,
		ETag:           etag,
		ContentType:    contentType,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      expiresAt,
	}
	s.cat.ApplyFileCreate(repoID, meta)

	if s.met != nil {
		s.met.UploadBytes.Add(float64(size))
	}
	logger.Debug("file uploaded", "repo_id", repoID, "path", p, "size_bytes", size)
	return meta, nil
}

// Download returns the file record with freshly bumped access stats plus the
// resolved on-disk path for the HTTP layer to stream.
func (s *Service) Download(repoID uuid.UUID, rawPath string) (model.FileMeta, string, error) {
	p, err := pathsafe.Clean(rawPath)
	if err != nil {
		return model.FileMeta{}, "", err
	}
	if !s.cat.HasRepo(repoID) {
		return model.FileMeta{}, "", apperr.NotFoundf("Repository not found")
	}
	if _, ok := s.cat.GetFile(repoID, p); !ok {
		return model.FileMeta{}, "", apperr.NotFoundf("File not found")
	}

	s.cat.TouchFile(repoID, p, time.Now().UTC())
	meta, _ := s.cat.GetFile(repoID, p)

	resolved, err := s.store.Resolve(repoID, p)
	if err != nil {
		return model.FileMeta{}, "", err
	}
	if !s.store.Exists(repoID, p) {
		// Bytes vanished outside the service; treat as missing.
		return model.FileMeta{}, "", apperr.NotFoundf("File not found")
	}

	if s.met != nil {
		s.met.DownloadBytes.Add(float64(meta.SizeBytes))
	}
	return meta, resolved, nil
}

// Head returns the file record without touching bytes or access stats.
func (s *Service) Head(repoID uuid.UUID, rawPath string) (model.FileMeta, error) {
	p, err := pathsafe.Clean(rawPath)
	if err != nil {
		return model.FileMeta{}, err
	}
	if !s.cat.HasRepo(repoID) {
		return model.FileMeta{}, apperr.NotFoundf("Repository not found")
	}
	meta, ok := s.cat.GetFile(repoID, p)
	if !ok {
		return model.FileMeta{}, apperr.NotFoundf("File not found")
	}
	return meta, nil
}

// Delete removes one file: WAL entry, catalog record with accounting, then
// the on-disk bytes and any emptied parent directories.
func (s *Service) Delete(repoID uuid.UUID, rawPath string) error {
	p, err := pathsafe.Clean(rawPath)
	if err != nil {
		return err
	}
	if !s.cat.HasRepo(repoID) {
		return apperr.NotFoundf("Repository not found")
	}
	if err := s.deleteCanonical(repoID, p); err != nil {
		return err
	}
	logger.Debug("file deleted", "repo_id", repoID, "path", p)
	return nil
}

// deleteCanonical is the shared delete path for API deletes, eviction and
// TTL expiry. The path must already be canonical.
func (s *Service) deleteCanonical(repoID uuid.UUID, p string) error {
	if _, ok := s.cat.GetFile(repoID, p); !ok {
		return apperr.NotFoundf("File not found")
	}

	if err := s.appendWAL(wal.Entry{
		Type:        wal.TypeFileDeleted,
		FileDeleted: &wal.FileDeleted{RepoID: repoID, Path: p},
	}); err != nil {
		return err
	}

	s.cat.ApplyFileDelete(repoID, p, time.Now().UTC())
	if err := s.store.Remove(repoID, p); err != nil {
		return apperr.Wrap(err, "Failed to remove file")
	}
	return nil
}

// List returns one page of file records matching prefix, plus the total
// match count. When recursive is false, only direct children of the prefix
// are returned.
func (s *Service) List(repoID uuid.UUID, prefix string, recursive bool, page, perPage int) ([]model.FileMeta, int, error) {
	if !s.cat.HasRepo(repoID) {
		return nil, 0, apperr.NotFoundf("Repository not found")
	}

	all := s.cat.ListFiles(repoID)
	matched := make([]model.FileMeta, 0, len(all))
	for _, meta := range all {
		if prefix != "" && !strings.HasPrefix(meta.Path, prefix) {
			continue
		}
		if !recursive {
			rest := strings.TrimPrefix(strings.TrimPrefix(meta.Path, prefix), "/")
			if strings.Contains(rest, "/") {
				continue
			}
		}
		matched = append(matched, meta)
	}

	total := len(matched)
	start, end := pageBounds(page, perPage, total)
	return matched[start:end], total, nil
}

// FilesUnder returns every file record whose path starts with prefix, for
// archive construction. An empty prefix matches the whole repository.
func (s *Service) FilesUnder(repoID uuid.UUID, prefix string) ([]model.FileMeta, error) {
	if !s.cat.HasRepo(repoID) {
		return nil, apperr.NotFoundf("Repository not found")
	}
	all := s.cat.ListFiles(repoID)
	if prefix == "" {
		return all, nil
	}
	matched := make([]model.FileMeta, 0, len(all))
	for _, meta := range all {
		if strings.HasPrefix(meta.Path, prefix) {
			matched = append(matched, meta)
		}
	}
	return matched, nil
}

// Move renames a file within one repository. The destination must be vacant.
func (s *Service) Move(repoID uuid.UUID, req model.MoveFileRequest) (model.FileMeta, error) {
	src, err := pathsafe.Clean(req.Source)
	if err != nil {
		return model.FileMeta{}, err
	}
	dst, err := pathsafe.Clean(req.Destination)
	if err != nil {
		return model.FileMeta{}, err
	}
	if !s.cat.HasRepo(repoID) {
		return model.FileMeta{}, apperr.NotFoundf("Repository not found")
	}
	if _, ok := s.cat.GetFile(repoID, src); !ok {
		return model.FileMeta{}, apperr.NotFoundf("Source file not found")
	}
	if _, ok := s.cat.GetFile(repoID, dst); ok {
		return model.FileMeta{}, apperr.Conflictf("Destination already exists")
	}

	now := time.Now().UTC()
	if err := s.appendWAL(wal.Entry{
		Type: wal.TypeFileMoved,
		FileMoved: &wal.FileMoved{
			RepoID:      repoID,
			Source:      src,
			Destination: dst,
			UpdatedAt:   now,
		},
	}); err != nil {
		return model.FileMeta{}, err
	}

	if err := s.store.Rename(repoID, src, dst); err != nil {
		return model.FileMeta{}, apperr.Wrap(err, "Failed to move file")
	}

	meta, ok := s.cat.ApplyFileMove(repoID, src, dst, now)
	if !ok {
		// Lost a race between the vacancy check and the re-key.
		return model.FileMeta{}, apperr.Conflictf("Destination already exists")
	}
	logger.Debug("file moved", "repo_id", repoID, "source", src, "destination", dst)
	return meta, nil
}

// Copy duplicates a file within one repository. Unlike upload, copy never
// triggers eviction: a projected overflow fails outright.
func (s *Service) Copy(repoID uuid.UUID, req model.CopyFileRequest) (model.FileMeta, error) {
	src, err := pathsafe.Clean(req.Source)
	if err != nil {
		return model.FileMeta{}, err
	}
	dst, err := pathsafe.Clean(req.Destination)
	if err != nil {
		return model.FileMeta{}, err
	}

	repo, ok := s.cat.GetRepo(repoID)
	if !ok {
		return model.FileMeta{}, apperr.NotFoundf("Repository not found")
	}
	source, ok := s.cat.GetFile(repoID, src)
	if !ok {
		return model.FileMeta{}, apperr.NotFoundf("Source file not found")
	}
	if _, ok := s.cat.GetFile(repoID, dst); ok {
		return model.FileMeta{}, apperr.Conflictf("Destination already exists")
	}
	if repo.CurrentSizeBytes+source.SizeBytes > repo.MaxSizeBytes {
		return model.FileMeta{}, apperr.PayloadTooLargef("Repository quota exceeded")
	}

	now := time.Now().UTC()
	if err := s.appendWAL(wal.Entry{
		Type: wal.TypeFileCreated,
		FileCreated: &wal.FileCreated{
			RepoID:      repoID,
			Path:        dst,
			SizeBytes:   source.SizeBytes,
			ETag:        source.ETag,
			ContentType: source.ContentType,
			CreatedAt:   now,
			ExpiresAt:   source.ExpiresAt,
		},
	}); err != nil {
		return model.FileMeta{}, err
	}

	if err := s.store.Copy(repoID, src, dst); err != nil {
		return model.FileMeta{}, apperr.Wrap(err, "Failed to copy file")
	}

	meta := model.FileMeta{
		RepoID:         repoID,
		Path:           dst,
		SizeBytes:      source.SizeBytes,
		ETag:           source.ETag,
		ContentType:    source.ContentType,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      source.ExpiresAt,
	}
	s.cat.ApplyFileCreate(repoID, meta)

	logger.Debug("file copied", "repo_id", repoID, "source", src, "destination", dst)
	return meta, nil
}

// guessContentType maps a path extension to a MIME type, defaulting to an
// opaque byte stream.
func guessContentType(p string) string {
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// resolveExpiry computes the absolute expiry from the per-upload override,
// then the repository default, then none.
func resolveExpiry(now time.Time, override, repoDefault *uint64) *time.Time {
	ttl := override
	if ttl == nil {
		ttl = repoDefault
	}
	if ttl == nil {
		return nil
	}
	t := now.Add(time.Duration(*ttl) * time.Second)
	return &t
}
