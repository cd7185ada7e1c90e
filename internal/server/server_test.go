package server

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stashfs/stashfs/pkg/catalog"
	"github.com/stashfs/stashfs/pkg/config"
	"github.com/stashfs/stashfs/pkg/metrics"
	"github.com/stashfs/stashfs/pkg/sandbox"
	"github.com/stashfs/stashfs/pkg/service"
	"github.com/stashfs/stashfs/pkg/store"
	"github.com/stashfs/stashfs/pkg/wal"
)

const testAPIKey = "test-secret"

type harness struct {
	ts  *httptest.Server
	svc *service.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	w, err := wal.Open(filepath.Join(dir, "metadata", "wal"))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	cfg := &config.Config{
		APIKey:                testAPIKey,
		DataDir:               dir,
		DefaultMaxRepoSize:    1 << 20,
		MaxUploadSize:         1 << 20,
		CommandTimeoutSecs:    10,
		CommandMaxOutputBytes: 1 << 20,
		MaxConcurrentCommands: 2,
		CORSAllowedOrigins:    "*",
	}

	cat := catalog.New()
	met := metrics.New(cat)
	svc := service.New(service.Params{
		Catalog:            cat,
		WAL:                w,
		Store:              store.New(dir),
		Metrics:            met,
		DefaultMaxRepoSize: cfg.DefaultMaxRepoSize,
		MaxUploadSize:      cfg.MaxUploadSize,
	})
	srv := New(cfg, svc, cat, sandbox.NewRunner(cfg.MaxConcurrentCommands), met, "test")

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &harness{ts: ts, svc: svc}
}

func (h *harness) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.ts.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeData(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	var env struct {
		Data  json.RawMessage `json:"data"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Nil(t, env.Error, "unexpected API error")
	if dst != nil {
		require.NoError(t, json.Unmarshal(env.Data, dst))
	}
}

func (h *harness) createRepo(t *testing.T, body string) string {
	t.Helper()
	resp := h.do(t, "POST", "/api/v1/repos", strings.NewReader(body), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var repo struct {
		ID string `json:"id"`
	}
	decodeData(t, resp, &repo)
	return repo.ID
}

func TestAuthRejected(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest("GET", h.ts.URL+"/api/v1/repos", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t,
		`{"data":null,"error":{"code":401,"message":"Invalid or missing API key"}}`,
		strings.TrimSpace(string(body)))
}

func TestAuthWrongKey(t *testing.T) {
	h := newHarness(t)
	req, _ := http.NewRequest("GET", h.ts.URL+"/api/v1/repos", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthUnauthenticated(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestRepoLifecycle(t *testing.T) {
	h := newHarness(t)
	id := h.createRepo(t, `{"name":"docs"}`)

	resp := h.do(t, "GET", "/api/v1/repos", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Total int `json:"total"`
	}
	decodeData(t, resp, &list)
	require.Equal(t, 1, list.Total)

	resp = h.do(t, "PATCH", "/api/v1/repos/"+id,
		strings.NewReader(`{"name":"renamed","tags":{"env":"ci"}}`), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var repo struct {
		Name string            `json:"name"`
		Tags map[string]string `json:"tags"`
	}
	decodeData(t, resp, &repo)
	require.Equal(t, "renamed", repo.Name)
	require.Equal(t, "ci", repo.Tags["env"])

	resp = h.do(t, "DELETE", "/api/v1/repos/"+id, nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, "GET", "/api/v1/repos/"+id, nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFileUploadDownload(t *testing.T) {
	h := newHarness(t)
	id := h.createRepo(t, `{"name":"r"}`)
	base := "/api/v1/repos/" + id + "/files/"

	resp := h.do(t, "POST", base+"docs/hello.txt", strings.NewReader("hello world"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	resp.Body.Close()

	resp = h.do(t, "GET", base+"docs/hello.txt", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, etag, resp.Header.Get("ETag"))
	require.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	require.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	require.NotEmpty(t, resp.Header.Get("Last-Modified"))
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, "hello world", string(body))

	// Conditional request with the matching digest.
	resp = h.do(t, "GET", base+"docs/hello.txt", nil, map[string]string{"If-None-Match": etag})
	require.Equal(t, http.StatusNotModified, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Empty(t, body)

	resp = h.do(t, "HEAD", base+"docs/hello.txt", nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "11", resp.Header.Get("Content-Length"))

	resp = h.do(t, "DELETE", base+"docs/hello.txt", nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, "GET", base+"docs/hello.txt", nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadPathTraversalRejected(t *testing.T) {
	h := newHarness(t)
	id := h.createRepo(t, `{"name":"r"}`)

	resp := h.do(t, "POST", "/api/v1/repos/"+id+"/files/a/../../etc/passwd",
		strings.NewReader("x"), nil)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEvictionScenario(t *testing.T) {
	h := newHarness(t)
	id := h.createRepo(t, `{"name":"tight","max_size_bytes":10}`)
	base := "/api/v1/repos/" + id + "/files/"

	resp := h.do(t, "POST", base+"a", strings.NewReader("hello"), nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = h.do(t, "POST", base+"b", strings.NewReader("world!"), nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = h.do(t, "GET", base+"a", nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(t, "GET", base+"b", nil, nil)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "world!", string(body))
}

func TestMoveScenario(t *testing.T) {
	h := newHarness(t)
	id := h.createRepo(t, `{"name":"r"}`)
	base := "/api/v1/repos/" + id

	resp := h.do(t, "POST", base+"/files/src", strings.NewReader("payload"), nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = h.do(t, "POST", base+"/files-move",
		strings.NewReader(`{"source":"src","destination":"dst"}`), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var meta struct {
		Path string `json:"path"`
	}
	decodeData(t, resp, &meta)
	require.Equal(t, "dst", meta.Path)

	resp = h.do(t, "GET", base+"/files/src", nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(t, "GET", base+"/files/dst", nil, nil)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, "payload", string(body))
}

func TestTTLReap(t *testing.T) {
	h := newHarness(t)
	id := h.createRepo(t, `{"name":"r"}`)
	base := "/api/v1/repos/" + id + "/files/"

	resp := h.do(t, "POST", base+"x", strings.NewReader("gone soon"),
		map[string]string{"X-File-TTL": "0"})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Equal(t, 1, h.svc.SweepExpired())

	resp = h.do(t, "GET", base+"x", nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExec(t *testing.T) {
	h := newHarness(t)
	id := h.createRepo(t, `{"name":"r"}`)
	base := "/api/v1/repos/" + id

	resp := h.do(t, "POST", base+"/files/seen.txt", strings.NewReader("x"), nil)
	resp.Body.Close()

	resp = h.do(t, "POST", base+"/exec",
		strings.NewReader(`{"command":"ls","args":[]}`), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		ExitCode int    `json:"exit_code"`
		Stdout   string `json:"stdout"`
	}
	decodeData(t, resp, &result)
	require.Equal(t, 0, result.ExitCode)
	require.Contains(t, result.Stdout, "seen.txt")

	resp = h.do(t, "POST", base+"/exec",
		strings.NewReader(`{"command":"rm","args":["-rf","/"]}`), nil)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, "POST", base+"/exec",
		strings.NewReader(`{"command":"ls","args":["; cat /etc/passwd"]}`), nil)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestListFiles(t *testing.T) {
	h := newHarness(t)
	id := h.createRepo(t, `{"name":"r"}`)
	base := "/api/v1/repos/" + id

	for _, p := range []string{"docs/a", "docs/b", "docs/sub/c"} {
		resp := h.do(t, "POST", base+"/files/"+p, strings.NewReader("x"), nil)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := h.do(t, "GET", base+"/files?prefix=docs/&recursive=true", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Total int `json:"total"`
	}
	decodeData(t, resp, &list)
	require.Equal(t, 3, list.Total)

	resp = h.do(t, "GET", base+"/files?prefix=docs/", nil, nil)
	decodeData(t, resp, &list)
	require.Equal(t, 2, list.Total)
}

func TestArchive(t *testing.T) {
	h := newHarness(t)
	id := h.createRepo(t, `{"name":"r"}`)
	base := "/api/v1/repos/" + id

	files := map[string]string{"a.txt": "alpha", "sub/b.txt": "beta"}
	for p, content := range files {
		resp := h.do(t, "POST", base+"/files/"+p, strings.NewReader(content), nil)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := h.do(t, "POST", base+"/archive", strings.NewReader(`{}`), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, fmt.Sprintf(`attachment; filename="%s.tar.gz"`, id),
		resp.Header.Get("Content-Disposition"))

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	seen := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		seen[hdr.Name] = string(content)
	}
	require.Equal(t, files, seen)
}

func TestArchiveUnknownFormat(t *testing.T) {
	h := newHarness(t)
	id := h.createRepo(t, `{"name":"r"}`)

	resp := h.do(t, "POST", "/api/v1/repos/"+id+"/archive",
		strings.NewReader(`{"format":"zip"}`), nil)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	h.createRepo(t, `{"name":"r"}`)

	resp := h.do(t, "GET", "/api/v1/status", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Version      string `json:"version"`
		Repositories int    `json:"repositories"`
	}
	decodeData(t, resp, &status)
	require.Equal(t, "test", status.Version)
	require.Equal(t, 1, status.Repositories)
}
