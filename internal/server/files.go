package server

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stashfs/stashfs/internal/apperr"
	"github.com/stashfs/stashfs/internal/logger"
	"github.com/stashfs/stashfs/pkg/model"
)

// filePath extracts the wildcard file path from the route.
func filePath(r *http.Request) string {
	return chi.URLParam(r, "*")
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	id, err := repoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 100)
	recursive := q.Get("recursive") == "true"

	files, total, err := s.svc.List(id, q.Get("prefix"), recursive, page, perPage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"files":    files,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, err := repoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var ttlOverride *uint64
	if raw := r.Header.Get("X-File-TTL"); raw != "" {
		ttl, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, r, apperr.BadRequestf("Invalid X-File-TTL header"))
			return
		}
		ttlOverride = &ttl
	}

	// The body cap is one byte over the limit so an at-limit upload passes
	// and the size check still sees the overflow.
	body := http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxUploadSize)+1)
	data, err := io.ReadAll(body)
	if err != nil {
		if maxBytesExceeded(err) {
			writeError(w, r, apperr.PayloadTooLargef("Upload exceeds maximum size of %d bytes", s.cfg.MaxUploadSize))
			return
		}
		writeError(w, r, apperr.BadRequestf("Failed to read request body"))
		return
	}

	meta, err := s.svc.Upload(id, filePath(r), data, ttlOverride)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", quoteETag(meta.ETag))
	writeData(w, http.StatusCreated, meta)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := repoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	meta, resolved, err := s.svc.Download(id, filePath(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	setFileHeaders(w, meta)
	if matchesETag(r.Header.Get("If-None-Match"), meta.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	f, err := os.Open(resolved)
	if err != nil {
		writeError(w, r, apperr.Wrap(err, "Failed to open file"))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Length", strconv.FormatUint(meta.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		logger.Warn("download stream interrupted",
			"repo_id", id, "path", meta.Path, "error", err)
	}
}

func (s *Server) handleHeadFile(w http.ResponseWriter, r *http.Request) {
	id, err := repoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	meta, err := s.svc.Head(id, filePath(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	setFileHeaders(w, meta)
	w.Header().Set("Content-Length", strconv.FormatUint(meta.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := repoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Delete(id, filePath(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	id, err := repoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req model.MoveFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	meta, err := s.svc.Move(id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, meta)
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	id, err := repoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req model.CopyFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	meta, err := s.svc.Copy(id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, meta)
}

// setFileHeaders writes the metadata headers shared by GET and HEAD.
func setFileHeaders(w http.ResponseWriter, meta model.FileMeta) {
	w.Header().Set("ETag", quoteETag(meta.ETag))
	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Last-Modified", meta.UpdatedAt.UTC().Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "no-cache")
	if meta.ExpiresAt != nil {
		w.Header().Set("X-File-Expires-At", meta.ExpiresAt.UTC().Format(time.RFC3339))
	}
}

func quoteETag(etag string) string {
	return `"` + etag + `"`
}

// matchesETag compares an If-None-Match header against the stored digest,
// accepting quoted, unquoted and weak forms.
func matchesETag(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		candidate = strings.Trim(candidate, `"`)
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}
