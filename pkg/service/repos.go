package service

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stashfs/stashfs/internal/apperr"
	"github.com/stashfs/stashfs/internal/logger"
	"github.com/stashfs/stashfs/pkg/model"
	"github.com/stashfs/stashfs/pkg/wal"
)

// CreateRepo provisions a new repository: WAL entry first, then the on-disk
// tree, then the catalog record.
func (s *Service) CreateRepo(req model.CreateRepoRequest) (model.RepoMeta, error) {
	if req.Name == "" {
		return model.RepoMeta{}, apperr.BadRequestf("Repository name must not be empty")
	}

	maxSize := s.defaultMaxRepoSize
	if req.MaxSizeBytes != nil {
		maxSize = *req.MaxSizeBytes
	}

	id := uuid.New()
	now := time.Now().UTC()

	if err := s.appendWAL(wal.Entry{
		Type: wal.TypeRepoCreated,
		RepoCreated: &wal.RepoCreated{
			ID:             id,
			Name:           req.Name,
			MaxSizeBytes:   maxSize,
			DefaultTTLSecs: req.DefaultTTLSecs,
			CreatedAt:      now,
		},
	}); err != nil {
		return model.RepoMeta{}, err
	}

	if err := s.store.CreateRepo(id); err != nil {
		return model.RepoMeta{}, apperr.Wrap(err, "Failed to create repository directory")
	}

	repo := model.RepoMeta{
		ID:             id,
		Name:           req.Name,
		MaxSizeBytes:   maxSize,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
		DefaultTTLSecs: req.DefaultTTLSecs,
		Tags:           map[string]string{},
	}
	s.cat.InsertRepo(repo)

	logger.Info("repository created", "repo_id", id, "name", req.Name, "max_size_bytes", maxSize)
	return repo, nil
}

// ListRepos returns one page of repository records plus the total count.
func (s *Service) ListRepos(page, perPage int, sortBy model.RepoSort) ([]model.RepoMeta, int) {
	repos := s.cat.ListRepos()

	switch sortBy {
	case model.RepoSortName:
		sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })
	case model.RepoSortSize:
		sort.Slice(repos, func(i, j int) bool { return repos[i].CurrentSizeBytes > repos[j].CurrentSizeBytes })
	default: // created_at, newest first
		sort.Slice(repos, func(i, j int) bool { return repos[i].CreatedAt.After(repos[j].CreatedAt) })
	}

	total := len(repos)
	start, end := pageBounds(page, perPage, total)
	return repos[start:end], total
}

// GetRepo returns a copy of the repository record with last_accessed_at set
// to now. The access timestamp is presentation-only and not persisted.
func (s *Service) GetRepo(id uuid.UUID) (model.RepoMeta, error) {
	repo, ok := s.cat.GetRepo(id)
	if !ok {
		return model.RepoMeta{}, apperr.NotFoundf("Repository not found")
	}
	repo.LastAccessedAt = time.Now().UTC()
	return repo, nil
}

// UpdateRepo applies a patch. The WAL entry is always emitted, even for an
// empty patch, so the log faithfully records intent; replay is idempotent.
func (s *Service) UpdateRepo(id uuid.UUID, patch model.UpdateRepoRequest) (model.RepoMeta, error) {
	if !s.cat.HasRepo(id) {
		return model.RepoMeta{}, apperr.NotFoundf("Repository not found")
	}
	if name := patch.NamePtr(); name != nil && *name == "" {
		return model.RepoMeta{}, apperr.BadRequestf("Repository name must not be empty")
	}

	updated := &wal.RepoUpdated{
		ID:             id,
		Name:           patch.NamePtr(),
		MaxSizeBytes:   patch.MaxSizeBytes,
		DefaultTTLSecs: patch.DefaultTTLSecs,
		Tags:           patch.Tags,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.appendWAL(wal.Entry{Type: wal.TypeRepoUpdated, RepoUpdated: updated}); err != nil {
		return model.RepoMeta{}, err
	}

	s.cat.MutateRepo(id, updated.Apply)

	repo, _ := s.cat.GetRepo(id)
	return repo, nil
}

// DeleteRepo removes a repository, cascading to every file record and the
// whole on-disk tree.
func (s *Service) DeleteRepo(id uuid.UUID) error {
	if !s.cat.HasRepo(id) {
		return apperr.NotFoundf("Repository not found")
	}

	if err := s.appendWAL(wal.Entry{
		Type:        wal.TypeRepoDeleted,
		RepoDeleted: &wal.RepoDeleted{ID: id},
	}); err != nil {
		return err
	}

	s.cat.DeleteRepo(id)
	if err := s.store.RemoveRepo(id); err != nil {
		return apperr.Wrap(err, "Failed to remove repository directory")
	}

	logger.Info("repository deleted", "repo_id", id)
	return nil
}

// pageBounds clamps page/perPage and returns the [start, end) slice bounds.
// Pages start at 1; perPage is clamped to [1, 1000] with default 100.
func pageBounds(page, perPage, total int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 100
	}
	if perPage > 1000 {
		perPage = 1000
	}
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return start, end
}
