// Package server exposes the engine over HTTP: a JSON API, an Atom export
// of the catch feed and the weekly digest as HTML.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/TobiSchelling/catchfeed/internal/digest"
	"github.com/TobiSchelling/catchfeed/internal/engine"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultDigestEntries = 10

// Options configures the server.
type Options struct {
	Host          string
	Port          int
	CORSOrigins   []string
	DigestEntries int
}

// Server is the HTTP server for the catch feed.
type Server struct {
	engine     *engine.Engine
	composer   *digest.Composer
	digestTmpl *template.Template
	opts       Options
	router     chi.Router
}

// New creates a new Server.
func New(eng *engine.Engine, opts Options) (*Server, error) {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.DigestEntries <= 0 {
		opts.DigestEntries = defaultDigestEntries
	}

	tmpl, err := template.ParseFS(templateFS, "templates/digest.html")
	if err != nil {
		return nil, fmt.Errorf("parsing digest template: %w", err)
	}

	s := &Server{
		engine:     eng,
		composer:   digest.NewComposer(eng),
		digestTmpl: tmpl,
		opts:       opts,
		router:     chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/digest", s.handleDigest)
	r.Get("/feed.atom", s.handleAtom)

	r.Route("/api", func(api chi.Router) {
		api.Get("/feed", s.handleFeed)
		api.Delete("/feed/cache", s.handleClearCache)
		api.Get("/leaderboard/weekly", s.handleLeaderboard)
		api.Post("/reports", s.handleSubmitReport)

		api.Route("/anglers/{userID}", func(a chi.Router) {
			a.Get("/", s.handleProfile)
			a.Get("/achievements", s.handleAchievements)
		})
		api.Post("/users/{userID}/backfill", s.handleBackfill)

		api.Route("/catches/{catchID}/like", func(l chi.Router) {
			l.Post("/", s.handleLike)
			l.Delete("/", s.handleUnlike)
		})
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)))
	})
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Server listening", slog.String("addr", "http://"+addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
