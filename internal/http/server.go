// Package http provides the HTTP API and dashboard for chatsweep.
package http

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roelfdiedericks/chatsweep/internal/bus"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
	"github.com/roelfdiedericks/chatsweep/internal/metrics"
)

//go:embed html/*.html
var htmlFS embed.FS

// Server represents the HTTP server
type Server struct {
	server    *http.Server
	sweeper   Sweeper
	events    *EventHub
	metrics   *metrics.Manager
	schedule  ScheduleSource
	templates *template.Template
	wg        sync.WaitGroup

	// Dev mode: reload templates from disk on each request
	devMode      bool
	templatesDir string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Listen  string // Address to listen on (e.g., "127.0.0.1:3000")
	DevMode bool   // Reload templates from disk on each request
}

// NewServer creates a new HTTP server instance. b may be nil, in which case
// /api/events streams nothing.
func NewServer(cfg *ServerConfig, sweeper Sweeper, b *bus.Bus) (*Server, error) {
	listen := cfg.Listen
	if listen == "" {
		listen = "127.0.0.1:3000"
	}

	s := &Server{
		sweeper: sweeper,
		events:  NewEventHub(b),
		devMode: cfg.DevMode,
	}

	// In dev mode, find the templates directory from source location
	if s.devMode {
		_, file, _, ok := runtime.Caller(0)
		if !ok {
			return nil, fmt.Errorf("dev mode: failed to determine source directory")
		}
		s.templatesDir = filepath.Join(filepath.Dir(file), "html")
		if _, err := os.Stat(s.templatesDir); err != nil {
			return nil, fmt.Errorf("dev mode: templates directory not found: %s", s.templatesDir)
		}
		L_info("http: dev mode enabled, loading templates from disk", "dir", s.templatesDir)
	}

	if err := s.loadTemplates(); err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	s.server = &http.Server{
		Addr:        listen,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Scans and batch deletes can run for minutes.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logRequest)
	r.Use(stripHeaders)

	r.Get("/", s.handleIndex)

	r.Route("/api", func(r chi.Router) {
		r.Get("/readmsg", s.handleReadMessages)
		r.Post("/deletemsg", s.handleDeleteMessages)
		r.Get("/readchat", s.handleReadChat)
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/schedule", s.handleSchedule)

		r.Route("/chrome", func(r chi.Router) {
			r.Post("/check-login", s.handleCheckLogin)
			r.Post("/disconnect", s.handleDisconnect)
		})
	})

	return r
}

// SetMetrics exposes m at /api/metrics. Without it the route returns 404.
func (s *Server) SetMetrics(m *metrics.Manager) {
	s.metrics = m
}

// SetScheduler exposes the scan schedule at /api/schedule.
func (s *Server) SetScheduler(src ScheduleSource) {
	s.schedule = src
}

// loadTemplates loads HTML templates (from disk in dev mode, embedded otherwise)
func (s *Server) loadTemplates() error {
	if s.devMode && s.templatesDir != "" {
		pattern := filepath.Join(s.templatesDir, "*.html")
		tmpl, err := template.ParseGlob(pattern)
		if err != nil {
			return fmt.Errorf("failed to parse templates from disk: %w", err)
		}
		s.templates = tmpl
		L_trace("http: loaded templates from disk", "dir", s.templatesDir)
		return nil
	}

	htmlDir, err := fs.Sub(htmlFS, "html")
	if err != nil {
		return fmt.Errorf("failed to get html subdirectory: %w", err)
	}

	tmpl, err := template.ParseFS(htmlDir, "*.html")
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	s.templates = tmpl
	L_debug("http: loaded embedded templates")
	return nil
}

// reloadTemplatesIfDev reloads templates from disk if in dev mode
func (s *Server) reloadTemplatesIfDev() error {
	if !s.devMode {
		return nil
	}
	return s.loadTemplates()
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("http: server starting", "addr", s.server.Addr)

		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			L_error("http: server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.events.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		L_error("http: shutdown error", "error", err)
		return err
	}

	s.wg.Wait()
	L_info("http: server stopped")
	return nil
}

// logRequest logs every request at trace level
func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		L_trace("http: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

// stripHeaders removes fingerprinting headers
func stripHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Del("Server")
		w.Header().Del("X-Powered-By")
		next.ServeHTTP(w, r)
	})
}
