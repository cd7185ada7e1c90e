package server

import (
	"net/http"
	"time"

	"github.com/stashfs/stashfs/pkg/model"
)

// maxCommandTimeout caps client-requested timeouts.
const maxCommandTimeout = 300 * time.Second

// handleExec serves POST /api/v1/repos/{id}/exec: run one whitelisted
// read-only command inside the repository's files root.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	id, err := repoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req model.ExecRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	workingDir, err := s.svc.RepoFilesRoot(id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	timeout := s.cfg.CommandTimeout()
	if req.TimeoutSecs != nil && *req.TimeoutSecs > 0 {
		timeout = time.Duration(*req.TimeoutSecs) * time.Second
	}
	if timeout > maxCommandTimeout {
		timeout = maxCommandTimeout
	}

	maxOutput := s.cfg.CommandMaxOutputBytes
	if req.MaxOutputBytes != nil && *req.MaxOutputBytes > 0 && *req.MaxOutputBytes < maxOutput {
		maxOutput = *req.MaxOutputBytes
	}

	result, err := s.runner.Run(r.Context(), workingDir, req.Command, req.Args, timeout, maxOutput)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}
