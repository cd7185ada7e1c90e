package model

// ExecRequest is the body of POST /repos/{id}/exec.
type ExecRequest struct {
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	TimeoutSecs    *uint64  `json:"timeout_seconds"`
	MaxOutputBytes *int     `json:"max_output_bytes"`
}

// ArchiveRequest is the body of POST /repos/{id}/archive. Path limits the
// archive to a subtree; Format currently only admits "tar.gz".
type ArchiveRequest struct {
	Path   string `json:"path"`
	Format string `json:"format"`
}
