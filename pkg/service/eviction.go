package service

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stashfs/stashfs/internal/logger"
)

// victim is one eviction candidate with its precomputed score.
type victim struct {
	path  string
	size  uint64
	score float64
}

// EvictBytes frees at least needed bytes from a repository by deleting the
// least valuable files first, and returns how much was actually freed.
//
// Score is access_count divided by age in seconds: rarely read old files go
// first. Scores are computed once on a point-in-time listing; entries removed
// concurrently are skipped, never rescored.
func (s *Service) EvictBytes(repoID uuid.UUID, needed uint64) uint64 {
	files := s.cat.ListFiles(repoID)
	now := time.Now().UTC()

	victims := make([]victim, 0, len(files))
	for _, meta := range files {
		age := now.Sub(meta.CreatedAt).Seconds()
		if age < 1 {
			age = 1
		}
		victims = append(victims, victim{
			path:  meta.Path,
			size:  meta.SizeBytes,
			score: float64(meta.AccessCount) / age,
		})
	}
	sort.Slice(victims, func(i, j int) bool {
		if victims[i].score != victims[j].score {
			return victims[i].score < victims[j].score
		}
		return victims[i].path < victims[j].path
	})

	var freed uint64
	var count int
	for _, v := range victims {
		if freed >= needed {
			break
		}
		if _, ok := s.cat.GetFile(repoID, v.path); !ok {
			continue
		}
		if err := s.deleteCanonical(repoID, v.path); err != nil {
			logger.Warn("eviction delete failed", "repo_id", repoID, "path", v.path, "error", err)
			continue
		}
		freed += v.size
		count++
	}

	if count > 0 {
		logger.Info("evicted files", "repo_id", repoID, "files", count, "freed_bytes", freed)
		if s.met != nil {
			s.met.EvictedFiles.Add(float64(count))
			s.met.EvictedBytes.Add(float64(freed))
		}
	}
	return freed
}

// EvictOverLimit brings every repository over its byte ceiling back under
// it. Called by the background quota monitor.
func (s *Service) EvictOverLimit() {
	for _, id := range s.cat.RepoIDs() {
		repo, ok := s.cat.GetRepo(id)
		if !ok {
			continue
		}
		if repo.CurrentSizeBytes > repo.MaxSizeBytes {
			s.EvictBytes(id, repo.CurrentSizeBytes-repo.MaxSizeBytes)
		}
	}
}

// SweepExpired deletes every file whose expiry has passed and returns the
// number removed.
func (s *Service) SweepExpired() int {
	now := time.Now().UTC()
	var total int

	for _, id := range s.cat.RepoIDs() {
		var expired []string
		for _, meta := range s.cat.ListFiles(id) {
			if meta.Expired(now) {
				expired = append(expired, meta.Path)
			}
		}
		for _, p := range expired {
			if err := s.deleteCanonical(id, p); err != nil {
				logger.Warn("expiry delete failed", "repo_id", id, "path", p, "error", err)
				continue
			}
			total++
		}
	}

	if total > 0 && s.met != nil {
		s.met.ReapedFiles.Add(float64(total))
	}
	return total
}
