package server

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/stashfs/stashfs/internal/apperr"
	"github.com/stashfs/stashfs/internal/logger"
	"github.com/stashfs/stashfs/pkg/model"
	"github.com/stashfs/stashfs/pkg/pathsafe"
)

// handleArchive serves POST /api/v1/repos/{id}/archive: a gzip-compressed
// tar of the chosen subtree, streamed without buffering whole files.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id, err := repoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req model.ArchiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Format != "" && req.Format != "tar.gz" {
		writeError(w, r, apperr.BadRequestf("Unknown archive format %q", req.Format))
		return
	}

	prefix := ""
	if req.Path != "" {
		if prefix, err = pathsafe.Clean(req.Path); err != nil {
			writeError(w, r, err)
			return
		}
	}

	files, err := s.svc.FilesUnder(id, prefix)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.tar.gz"`, id))
	w.WriteHeader(http.StatusOK)

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, meta := range files {
		if err := s.writeArchiveEntry(tw, meta); err != nil {
			// Headers are gone; log and stop the stream.
			logger.Warn("archive stream aborted",
				"repo_id", id, "path", meta.Path, "error", err)
			break
		}
	}

	if err := tw.Close(); err != nil {
		logger.Warn("closing tar stream failed", "repo_id", id, "error", err)
	}
	if err := gz.Close(); err != nil {
		logger.Warn("closing gzip stream failed", "repo_id", id, "error", err)
	}
}

func (s *Server) writeArchiveEntry(tw *tar.Writer, meta model.FileMeta) error {
	resolved, err := s.svc.ResolvePath(meta.RepoID, meta.Path)
	if err != nil {
		return err
	}
	f, err := os.Open(resolved)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := &tar.Header{
		Name:    meta.Path,
		Mode:    0o644,
		Size:    int64(meta.SizeBytes),
		ModTime: meta.UpdatedAt,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
