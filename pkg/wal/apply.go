package wal

import "github.com/stashfs/stashfs/pkg/model"

// Apply mutates a repository record with the present-only fields of the
// patch. The live update path and recovery replay both go through this so
// they agree exactly.
func (e *RepoUpdated) Apply(r *model.RepoMeta) {
	if e.Name != nil {
		r.Name = *e.Name
	}
	if e.MaxSizeBytes != nil {
		r.MaxSizeBytes = *e.MaxSizeBytes
	}
	if e.DefaultTTLSecs != nil {
		// Present-but-null clears the default TTL.
		r.DefaultTTLSecs = e.DefaultTTLSecs.Value
	}
	if e.Tags != nil {
		r.Tags = e.Tags
	}
	r.UpdatedAt = e.UpdatedAt
}
