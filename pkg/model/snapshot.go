package model

import (
	"time"

	"github.com/google/uuid"
)

// SnapshotVersion is the on-disk snapshot format version. Snapshots with any
// other version are discarded on load, not upgraded.
const SnapshotVersion = 1

// Snapshot is a full, point-in-time dump of the metadata catalog. It is the
// unit the snapshot store serializes and atomically replaces on disk.
type Snapshot struct {
	Version   int
	Timestamp time.Time
	Repos     map[uuid.UUID]RepoMeta
	Files     map[uuid.UUID]map[string]FileMeta
}
