package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stashfs/stashfs/internal/apperr"
	"github.com/stashfs/stashfs/pkg/model"
)

// repoID parses the {id} path parameter.
func repoID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.BadRequestf("Invalid repository id")
	}
	return id, nil
}

// queryInt parses an integer query parameter, falling back to def when
// absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRepoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	repo, err := s.svc.CreateRepo(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, repo)
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 100)
	sortBy := model.RepoSort(r.URL.Query().Get("sort"))

	repos, total := s.svc.ListRepos(page, perPage, sortBy)
	writeData(w, http.StatusOK, map[string]any{
		"repos":    repos,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	id, err := repoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	repo, err := s.svc.GetRepo(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, repo)
}

func (s *Server) handleUpdateRepo(w http.ResponseWriter, r *http.Request) {
	id, err := repoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch model.UpdateRepoRequest
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	repo, err := s.svc.UpdateRepo(id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, repo)
}

func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	id, err := repoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.DeleteRepo(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
