package api

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rahulsinghu/AstralCleanser/internal/auth"
	"github.com/rahulsinghu/AstralCleanser/internal/health"
	"github.com/rahulsinghu/AstralCleanser/internal/httputil"
	"github.com/rahulsinghu/AstralCleanser/internal/metrics"
	"github.com/rahulsinghu/AstralCleanser/internal/render/htmlscene"
	"github.com/rahulsinghu/AstralCleanser/internal/scene"
	"github.com/rahulsinghu/AstralCleanser/internal/stream"
)

// Deps are the collaborators the routes need.
type Deps struct {
	Auth    auth.Config
	Store   *scene.Store
	Stream  *stream.Handler
	Compute scene.ComputeFunc // nil disables POST /api/v1/scene/refresh
	Chart   htmlscene.Options
	Web     fs.FS // nil disables the frontend
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, deps Deps) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Store.Ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/scene", sceneHandler(deps.Store))
	mux.HandleFunc("GET /api/v1/scene/events", eventsHandler(deps.Store))
	mux.HandleFunc("GET /api/v1/scene/frames/{index}", frameHandler(deps.Store))
	mux.HandleFunc("GET /api/v1/scene/chart", chartHandler(logger, deps.Store, deps.Chart))
	mux.HandleFunc("GET /api/v1/scene/export", exportHandler(logger, deps.Store))
	if deps.Compute != nil {
		mux.HandleFunc("POST /api/v1/scene/refresh", refreshHandler(logger, deps.Store, deps.Compute))
	}
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/frames", deps.Stream.HandleFrames)
	}
	if deps.Web != nil {
		mux.Handle("GET /", http.FileServerFS(deps.Web))
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(deps.Auth)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second, // streams clear it per connection
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// current returns the stored scene or answers 503.
func current(w http.ResponseWriter, store *scene.Store) (*scene.Scene, bool) {
	sc := store.Get()
	if sc == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "scene not ready")
		return nil, false
	}
	return sc, true
}

// GET /api/v1/scene
func sceneHandler(store *scene.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := current(w, store)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, sc.Summarize())
	}
}

// GET /api/v1/scene/events?object=1
func eventsHandler(store *scene.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := current(w, store)
		if !ok {
			return
		}

		events := sc.Summarize().Events
		if v := r.URL.Query().Get("object"); v != "" {
			obj, err := strconv.Atoi(v)
			if err != nil || obj < 0 || obj >= len(sc.Objects) {
				httputil.WriteError(w, http.StatusBadRequest, "invalid object parameter")
				return
			}
			filtered := make([]scene.EventView, 0, len(events))
			for _, e := range events {
				if e.I == obj || e.J == obj {
					filtered = append(filtered, e)
				}
			}
			events = filtered
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"run_id":       sc.RunID.String(),
			"threshold_km": sc.ThresholdKm,
			"count":        len(events),
			"events":       events,
		})
	}
}

// GET /api/v1/scene/chart
func chartHandler(logger *slog.Logger, store *scene.Store, opts htmlscene.Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := current(w, store)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := htmlscene.Render(&buf, sc, opts); err != nil {
			logger.Error("chart render failed", "run_id", sc.RunID.String(), "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, "chart render failed")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}
}

// GET /api/v1/scene/export
func exportHandler(logger *slog.Logger, store *scene.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := current(w, store)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := sc.WriteJSON(&buf); err != nil {
			logger.Error("scene export failed", "run_id", sc.RunID.String(), "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="scene-`+sc.RunID.String()+`.json"`)
		w.Write(buf.Bytes())
	}
}

// POST /api/v1/scene/refresh
func refreshHandler(logger *slog.Logger, store *scene.Store, compute scene.ComputeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sc, err := store.Refresh(r.Context(), compute)
		if errors.Is(err, scene.ErrRefreshInProgress) {
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			logger.Error("scene refresh failed", "error", err)
			httputil.WriteError(w, http.StatusBadGateway, "scene refresh failed")
			return
		}

		logger.Info("scene refreshed",
			"run_id", sc.RunID.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		httputil.WriteJSON(w, http.StatusOK, sc.Summarize())
	}
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the middleware.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
