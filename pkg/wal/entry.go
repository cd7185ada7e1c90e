package wal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/stashfs/stashfs/pkg/model"
)

// EntryType tags the variant carried by a WAL entry.
type EntryType string

const (
	TypeRepoCreated     EntryType = "repo_created"
	TypeRepoUpdated     EntryType = "repo_updated"
	TypeRepoDeleted     EntryType = "repo_deleted"
	TypeRepoSizeChanged EntryType = "repo_size_changed"
	TypeFileCreated     EntryType = "file_created"
	TypeFileDeleted     EntryType = "file_deleted"
	TypeFileMoved       EntryType = "file_moved"
)

// Entry is a single WAL record: a type tag plus exactly one populated
// variant. The zero-variant pointers stay nil and are omitted on the wire,
// which keeps the framing self-describing.
type Entry struct {
	Type EntryType `json:"type"`

	RepoCreated     *RepoCreated     `json:"repo_created,omitempty"`
	RepoUpdated     *RepoUpdated     `json:"repo_updated,omitempty"`
	RepoDeleted     *RepoDeleted     `json:"repo_deleted,omitempty"`
	RepoSizeChanged *RepoSizeChanged `json:"repo_size_changed,omitempty"`
	FileCreated     *FileCreated     `json:"file_created,omitempty"`
	FileDeleted     *FileDeleted     `json:"file_deleted,omitempty"`
	FileMoved       *FileMoved       `json:"file_moved,omitempty"`
}

// RepoCreated records a new repository.
type RepoCreated struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	MaxSizeBytes   uint64    `json:"max_size_bytes"`
	DefaultTTLSecs *uint64   `json:"default_ttl_seconds"`
	CreatedAt      time.Time `json:"created_at"`
}

// RepoUpdated records a repository patch. Every field except ID and
// UpdatedAt is optional; DefaultTTLSecs preserves the three-way
// absent/clear/set distinction of the API patch.
type RepoUpdated struct {
	ID             uuid.UUID         `json:"id"`
	Name           *string           `json:"name,omitempty"`
	MaxSizeBytes   *uint64           `json:"max_size_bytes,omitempty"`
	DefaultTTLSecs *model.TTLPatch   `json:"default_ttl_seconds,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// repoUpdatedWire mirrors RepoUpdated for decoding. The TTL goes through a
// RawMessage because encoding/json collapses a JSON null into a nil pointer
// before any custom unmarshaler runs, which would turn a logged clear into
// an absent field on replay.
type repoUpdatedWire struct {
	ID             uuid.UUID         `json:"id"`
	Name           *string           `json:"name,omitempty"`
	MaxSizeBytes   *uint64           `json:"max_size_bytes,omitempty"`
	DefaultTTLSecs json.RawMessage   `json:"default_ttl_seconds,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (e *RepoUpdated) UnmarshalJSON(data []byte) error {
	var w repoUpdatedWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.ID = w.ID
	e.Name = w.Name
	e.MaxSizeBytes = w.MaxSizeBytes
	if w.DefaultTTLSecs != nil {
		patch := &model.TTLPatch{}
		if err := patch.UnmarshalJSON(w.DefaultTTLSecs); err != nil {
			return err
		}
		e.DefaultTTLSecs = patch
	}
	e.Tags = w.Tags
	e.UpdatedAt = w.UpdatedAt
	return nil
}

// RepoDeleted records a repository removal, cascading to its files.
type RepoDeleted struct {
	ID uuid.UUID `json:"id"`
}

// RepoSizeChanged records an exact size/count correction.
type RepoSizeChanged struct {
	ID               uuid.UUID `json:"id"`
	CurrentSizeBytes uint64    `json:"current_size_bytes"`
	FileCount        uint64    `json:"file_count"`
}

// FileCreated records an upload or copy destination.
type FileCreated struct {
	RepoID      uuid.UUID  `json:"repo_id"`
	Path        string     `json:"path"`
	SizeBytes   uint64     `json:"size_bytes"`
	ETag        string     `json:"etag"`
	ContentType string     `json:"content_type"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// FileDeleted records a file removal.
type FileDeleted struct {
	RepoID uuid.UUID `json:"repo_id"`
	Path   string    `json:"path"`
}

// FileMoved records a rename within one repository.
type FileMoved struct {
	RepoID      uuid.UUID `json:"repo_id"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	UpdatedAt   time.Time `json:"updated_at"`
}
