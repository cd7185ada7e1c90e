package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RepoMeta is the metadata record for a repository: a named, quota-bounded
// namespace of files. The catalog owns the authoritative in-memory copy;
// everything handed out over the API is a value copy.
type RepoMeta struct {
	ID               uuid.UUID         `json:"id"`
	Name             string            `json:"name"`
	MaxSizeBytes     uint64            `json:"max_size_bytes"`
	CurrentSizeBytes uint64            `json:"current_size_bytes"`
	FileCount        uint64            `json:"file_count"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	LastAccessedAt   time.Time         `json:"last_accessed_at"`
	DefaultTTLSecs   *uint64           `json:"default_ttl_seconds"`
	Tags             map[string]string `json:"tags"`
}

// CreateRepoRequest is the body of POST /api/v1/repos.
type CreateRepoRequest struct {
	Name           string  `json:"name"`
	MaxSizeBytes   *uint64 `json:"max_size_bytes"`
	DefaultTTLSecs *uint64 `json:"default_ttl_seconds"`
}

// UpdateRepoRequest is the body of PATCH /api/v1/repos/{id}.
//
// All fields are patch-style: a nil pointer means "leave unchanged".
// DefaultTTLSecs is a nested optional with three states: absent (leave
// unchanged), present-but-null (clear), present-with-value (set).
type UpdateRepoRequest struct {
	Name           string            `json:"-"`
	MaxSizeBytes   *uint64           `json:"max_size_bytes"`
	DefaultTTLSecs *TTLPatch         `json:"default_ttl_seconds,omitempty"`
	Tags           map[string]string `json:"tags"`

	namePresent bool
}

// updateRepoWire mirrors UpdateRepoRequest for decoding. Name and the TTL
// need presence tracking; the TTL decodes through a RawMessage because
// encoding/json collapses a JSON null into a nil pointer before any custom
// unmarshaler runs, which would erase the present-but-null state.
type updateRepoWire struct {
	Name           *string           `json:"name"`
	MaxSizeBytes   *uint64           `json:"max_size_bytes"`
	DefaultTTLSecs json.RawMessage   `json:"default_ttl_seconds"`
	Tags           map[string]string `json:"tags"`
}

// UnmarshalJSON decodes the patch, recording which fields were present.
func (r *UpdateRepoRequest) UnmarshalJSON(data []byte) error {
	var w updateRepoWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Name != nil {
		r.Name = *w.Name
		r.namePresent = true
	}
	r.MaxSizeBytes = w.MaxSizeBytes
	if w.DefaultTTLSecs != nil {
		patch := &TTLPatch{}
		if err := patch.UnmarshalJSON(w.DefaultTTLSecs); err != nil {
			return err
		}
		r.DefaultTTLSecs = patch
	}
	r.Tags = w.Tags
	return nil
}

// NamePtr returns the patched name, or nil if the field was absent.
func (r *UpdateRepoRequest) NamePtr() *string {
	if !r.namePresent {
		return nil
	}
	return &r.Name
}

// SetName records a name patch. Used by code constructing requests directly.
func (r *UpdateRepoRequest) SetName(name string) {
	r.Name = name
	r.namePresent = true
}

// TTLPatch carries the inner level of a nested-optional TTL field.
//
// The outer pointer distinguishes "field absent" (nil *TTLPatch) from "field
// present"; Value distinguishes "present but null" (clear the TTL) from
// "present with a value" (set it). Decoders populate the outer level from a
// RawMessage, never directly from a *TTLPatch field.
type TTLPatch struct {
	Value *uint64
}

func (p *TTLPatch) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		p.Value = nil
		return nil
	}
	return json.Unmarshal(data, &p.Value)
}

func (p TTLPatch) MarshalJSON() ([]byte, error) {
	if p.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*p.Value)
}

// RepoSort identifies a sort order for repository listings.
type RepoSort string

const (
	RepoSortName      RepoSort = "name"       // name ascending
	RepoSortCreatedAt RepoSort = "created_at" // newest first
	RepoSortSize      RepoSort = "size"       // largest first
)
