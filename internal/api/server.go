package api

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/starglobe/internal/auth"
	"github.com/star/starglobe/internal/health"
	"github.com/star/starglobe/internal/httputil"
	"github.com/star/starglobe/internal/metrics"
	"github.com/star/starglobe/internal/stream"
	"github.com/star/starglobe/internal/tracker"
)

// Config holds the HTTP listener settings.
type Config struct {
	Addr         string
	Auth         auth.Config
	TrustProxy   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Deps are the components the handlers serve from. Geocoder, Stream and
// Static are optional.
type Deps struct {
	Viewer   Viewer
	Store    *tracker.Store
	Geocoder Geocoder
	Stream   *stream.Handler
	Static   fs.FS
	Ready    map[string]health.Check
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           newHandler(cfg, deps, logger),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// newHandler registers the routes and wraps them in the middleware chain.
func newHandler(cfg Config, deps Deps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	h := &handlers{deps: deps, logger: logger.With("component", "api")}

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/globe.svg", h.globeSVG)
	mux.HandleFunc("GET /api/v1/globe/state", h.globeState)
	mux.HandleFunc("GET /api/v1/satellite", h.satellite)
	mux.HandleFunc("GET /api/v1/satellite/location", h.satelliteLocation)
	mux.HandleFunc("POST /api/v1/input/{event}", h.input)
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/frames", deps.Stream.HandleFrames)
	}

	if deps.Static != nil {
		mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFileFS(w, r, deps.Static, "index.html")
		})
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(deps.Static)))
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// quietPath returns true for probe and scrape paths that should not log at INFO.
func quietPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush and Unwrap keep SSE working behind the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if quietPath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
