package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

// handleHealth serves GET /health. Unauthenticated, fixed body.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleStatus serves GET /api/v1/status with counts and uptime.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var totalFiles uint64
	for _, repo := range s.cat.ListRepos() {
		totalFiles += repo.FileCount
	}
	usedBytes := s.cat.TotalSizeBytes()
	uptime := time.Since(s.startTime)

	writeData(w, http.StatusOK, map[string]any{
		"version":         s.version,
		"uptime_seconds":  int64(uptime.Seconds()),
		"uptime":          uptime.Round(time.Second).String(),
		"repositories":    s.cat.RepoCount(),
		"files":           totalFiles,
		"used_bytes":      usedBytes,
		"used_bytes_text": humanize.IBytes(usedBytes),
	})
}
