// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware and routes,
// and it owns the resources that live as long as the process: the database pool
// and the media directory.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go:   config.Load() → server.New(cfg, logger)
//	New():     sqlite.DB + media.Store
//	             → AuthService, TimelineService, BookmarkService, AccountService
//	             → AuthHandler, TimelineHandler, BookmarkHandler, AccountHandler
//
// This is the "composition root" pattern: all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/chirp/internal/auth"
	"github.com/sakif/chirp/internal/config"
	"github.com/sakif/chirp/internal/handler"
	"github.com/sakif/chirp/internal/media"
	"github.com/sakif/chirp/internal/middleware"
	sqliteRepo "github.com/sakif/chirp/internal/repository/sqlite"
	"github.com/sakif/chirp/internal/service"
)

// shutdownTimeout is how long in-flight requests get after SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it after graceful
// shutdown; tests that never call Start use Close instead.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	images *media.Store
	tokens *auth.TokenService
}

// New opens the database and media store and wires every route.
//
// IMPORT ALIAS:
// We import repository/sqlite as `sqliteRepo` to avoid confusion with
// the sqlite driver package.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	images, err := media.New(cfg.Media.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening media store: %w", err)
	}

	db, err := sqliteRepo.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		images: images,
		tokens: tokens,
	}
	s.setupRoutes()

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns an id that our Logger adds to every request line
// 2. RealIP: extracts the real client IP from proxy headers
// 3. Recoverer: turns a panic into a 500 instead of killing the connection
// 4. Logger: logs each request with timing info
// 5. CORS: only when CORS_ALLOWED_ORIGINS is set
//
// AUTH GROUPS:
// Reads (timeline, single tweets, profiles) run under OptionalAuth so a
// signed-in viewer is recognised without forcing anonymous readers to log in.
// Every write, and every view of "my" data, sits behind RequireAuth.
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))

	if len(s.config.HTTP.AllowedOrigins) > 0 {
		// Credentials must be allowed or the browser drops the session cookie.
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.HTTP.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"Location"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// === Services ===
	passwords := auth.NewPasswordService()
	authService := service.NewAuthService(s.db.Users(), s.tokens, passwords, s.logger)
	timelineService := service.NewTimelineService(s.db, s.images, s.config.Timeline.PageSize, s.logger)
	bookmarkService := service.NewBookmarkService(s.db, s.logger)
	accountService := service.NewAccountService(s.db, s.images, timelineService, s.logger)

	// === Handlers ===
	var github *auth.GitHubProvider
	if s.config.GitHub.Enabled() {
		github = auth.NewGitHubProvider(
			s.config.GitHub.ClientID,
			s.config.GitHub.ClientSecret,
			s.config.GitHub.CallbackURL,
		)
	} else {
		s.logger.Info("GitHub login disabled: GITHUB_CLIENT_ID/GITHUB_CLIENT_SECRET not set")
	}

	secure := s.config.Auth.SecureCookie
	maxUpload := s.config.Media.MaxUpload
	authHandler := handler.NewAuthHandler(authService, github, secure, s.logger)
	timelineHandler := handler.NewTimelineHandler(timelineService, maxUpload, s.logger)
	bookmarkHandler := handler.NewBookmarkHandler(bookmarkService, s.logger)
	accountHandler := handler.NewAccountHandler(accountService, maxUpload, secure, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	// === Infrastructure ===
	r.Get("/healthz", healthHandler.HandleHealth)

	// GET /media/tweets/cv37....png → {MEDIA_DIR}/tweets/cv37....png
	fileServer := http.FileServer(http.Dir(s.images.Dir()))
	r.Handle("/media/*", http.StripPrefix("/media/", fileServer))

	if github != nil {
		r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	// === API ===
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(authService.ValidateToken))

			r.Get("/timeline", timelineHandler.HandleTimeline)
			r.Get("/posts/{id}", timelineHandler.HandleGetPost)
			r.Get("/retweets/{id}", timelineHandler.HandleGetRetweet)
			r.Get("/users/{id}", accountHandler.HandleProfile)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(authService.ValidateToken))

			r.Get("/me", authHandler.HandleMe)

			r.Post("/posts", timelineHandler.HandleCreatePost)
			r.Delete("/posts/{id}", timelineHandler.HandleDeletePost)
			r.Post("/posts/{id}/retweets", timelineHandler.HandleRetweet)
			r.Delete("/retweets/{id}", timelineHandler.HandleDeleteRetweet)

			r.Post("/posts/{id}/bookmark", bookmarkHandler.HandleSavePost)
			r.Delete("/posts/{id}/bookmark", bookmarkHandler.HandleUnsavePost)
			r.Post("/retweets/{id}/bookmark", bookmarkHandler.HandleSaveRetweet)
			r.Delete("/retweets/{id}/bookmark", bookmarkHandler.HandleUnsaveRetweet)
			r.Get("/bookmarks", bookmarkHandler.HandleList)

			r.Get("/account", accountHandler.HandleAccount)
			r.Put("/account", accountHandler.HandleUpdateAccount)
			r.Delete("/account/{id}", accountHandler.HandleDeleteAccount)
		})
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start calls it itself on shutdown.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
//
// Step 3 matters more here than in most apps: a request killed halfway has
// its transaction rolled back, but only a clean close checkpoints the WAL.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.HTTP.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.HTTP.ReadTimeout.Duration(),
		WriteTimeout: s.config.HTTP.WriteTimeout.Duration(),
		IdleTimeout:  s.config.HTTP.IdleTimeout.Duration(),
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.HTTP.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.HTTP.Port)),
			slog.String("database", s.config.DB.Path),
			slog.String("media", s.config.Media.Dir),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
