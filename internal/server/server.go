// Package server is the HTTP boundary: routing, authentication, the JSON
// envelope and the streaming endpoints. All domain decisions live in the
// service layer; handlers translate between HTTP and service calls.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stashfs/stashfs/internal/logger"
	"github.com/stashfs/stashfs/pkg/catalog"
	"github.com/stashfs/stashfs/pkg/config"
	"github.com/stashfs/stashfs/pkg/metrics"
	"github.com/stashfs/stashfs/pkg/sandbox"
	"github.com/stashfs/stashfs/pkg/service"
)

// Server holds the handler dependencies.
type Server struct {
	cfg    *config.Config
	svc    *service.Service
	cat    *catalog.Catalog
	runner *sandbox.Runner
	met    *metrics.Metrics

	version   string
	startTime time.Time
}

// New wires a Server. version is the build version shown by /status.
func New(cfg *config.Config, svc *service.Service, cat *catalog.Catalog, runner *sandbox.Runner, met *metrics.Metrics, version string) *Server {
	return &Server{
		cfg:       cfg,
		svc:       svc,
		cat:       cat,
		runner:    runner,
		met:       met,
		version:   version,
		startTime: time.Now(),
	}
}

// Router builds the full route tree with the middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: splitOrigins(s.cfg.CORSAllowedOrigins),
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-API-Key", "X-File-TTL", "If-None-Match"},
		ExposedHeaders: []string{"ETag", "X-Request-Id"},
	}))
	r.Use(s.recordMetrics)

	// Unauthenticated surface
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.met.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Get("/status", s.handleStatus)

		r.Route("/repos", func(r chi.Router) {
			r.Post("/", s.handleCreateRepo)
			r.Get("/", s.handleListRepos)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRepo)
				r.Patch("/", s.handleUpdateRepo)
				r.Delete("/", s.handleDeleteRepo)

				r.Get("/files", s.handleListFiles)
				r.Post("/files/*", s.handleUpload)
				r.Get("/files/*", s.handleDownload)
				r.Head("/files/*", s.handleHeadFile)
				r.Delete("/files/*", s.handleDeleteFile)

				r.Post("/files-move", s.handleMove)
				r.Post("/files-copy", s.handleCopy)
				r.Post("/exec", s.handleExec)
				r.Post("/archive", s.handleArchive)
			})
		})
	})

	return r
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}

// requestLogger echoes the request id and logs request start at debug and
// completion at info level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set("X-Request-Id", requestID)
		}

		logger.Debug("request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
