package model

import (
	"time"

	"github.com/google/uuid"
)

// FileMeta is the metadata record for a single file. Identity is the pair
// (RepoID, Path); Path is always the canonical form produced by the path
// validator.
type FileMeta struct {
	RepoID         uuid.UUID  `json:"repo_id"`
	Path           string     `json:"path"`
	SizeBytes      uint64     `json:"size_bytes"`
	ETag           string     `json:"etag"`
	ContentType    string     `json:"content_type"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	AccessCount    uint64     `json:"access_count"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// Expired reports whether the file's TTL has elapsed at the given instant.
func (f *FileMeta) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && !f.ExpiresAt.After(now)
}

// MoveFileRequest is the body of POST /repos/{id}/files-move.
type MoveFileRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// CopyFileRequest is the body of POST /repos/{id}/files-copy.
type CopyFileRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}
