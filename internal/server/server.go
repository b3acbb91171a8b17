// Package server is the composition root: it builds the store, lock,
// providers, services and handlers from a config.Config, mounts the routes
// and runs the HTTP server with graceful shutdown.
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
	"github.com/redis/go-redis/v9"

	"github.com/sakif/login-gateway/internal/auth"
	"github.com/sakif/login-gateway/internal/config"
	"github.com/sakif/login-gateway/internal/handler"
	"github.com/sakif/login-gateway/internal/lock"
	"github.com/sakif/login-gateway/internal/middleware"
	"github.com/sakif/login-gateway/internal/model"
	"github.com/sakif/login-gateway/internal/repository"
	"github.com/sakif/login-gateway/internal/repository/postgres"
	sqliteRepo "github.com/sakif/login-gateway/internal/repository/sqlite"
	"github.com/sakif/login-gateway/internal/service"
)

// Server owns the router and every long-lived resource it was built with.
// Close releases them; Start calls Close on the way out.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store
	redis  *redis.Client // nil unless REDIS_URL is set
}

// New wires the whole gateway.
//
// DEPENDENCY CHAIN:
//
//	store (sqlite | postgres) ─┐
//	locker (memory | redis) ───┼→ Reconciler → AuthService → AuthHandler, PageHandler
//	TokenService ──────────────┘
//	providers (google, spotify) → Registry → AuthHandler, PageHandler
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return db, nil
	case "sqlite":
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
}

// newLocker returns the in-process lock, or a Redis lock when REDIS_URL is
// set so several gateway processes serialize logins together.
func (s *Server) newLocker() (lock.Locker, *lock.RedisLocker, error) {
	if s.config.RedisURL == "" {
		return lock.NewKeyedMutex(), nil, nil
	}

	opts, err := redis.ParseURL(s.config.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	s.redis = redis.NewClient(opts)
	rl := lock.NewRedisLocker(s.redis, s.config.LockTTL, s.logger)
	return rl, rl, nil
}

// newRegistry registers every provider that has a client id.
func newRegistry(cfg *config.Config) *auth.Registry {
	var providers []auth.Provider
	if cfg.Google.Enabled() {
		providers = append(providers, auth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI))
	}
	if cfg.Spotify.Enabled() {
		providers = append(providers, auth.NewSpotifyProvider(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.RedirectURI))
	}
	return auth.NewRegistry(providers...)
}

// setupRoutes configures middleware and routes.
//
// ROUTE STRUCTURE:
// GET  /                         → login page (flash message, provider links)
// GET  /login                    → /auth/google/login
// GET  /auth/{provider}/login    → provider consent page
// GET  /auth/{provider}/callback → finish login, set session, → /profile
// GET  /auth/callback            → Google callback (old path)
// GET  /spotify/login            → /auth/spotify/login
// GET  /spotify/callback         → Spotify callback (old path)
// GET  /profile                  → profile page (session required)
// GET  /logout                   → clear session, → /
// POST /auth/logout              → clear session (JSON)
// GET  /api/me                   → current user (JSON, session required)
// GET  /healthz                  → dependency checks
//
// MIDDLEWARE ORDER MATTERS: RequestID must run before Logger so every log
// line carries the id; Recoverer sits inside Logger so a panic is logged as 500.
func (s *Server) setupRoutes() error {
	locker, redisLocker, err := s.newLocker()
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(s.config.SessionSecret, s.config.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	registry := newRegistry(s.config)
	if len(registry.Names()) == 0 {
		s.logger.Warn("no OAuth provider configured, set GOOGLE_CLIENT_ID or SPOTIFY_CLIENT_ID")
	}

	reconciler := service.NewReconciler(s.store, locker, s.logger)
	authService := service.NewAuthService(reconciler, s.store, tokens, s.logger)

	authHandler := handler.NewAuthHandler(registry, authService, handler.CookieConfig{
		Secure: s.config.CookieSecure,
		TTL:    tokens.TTL(),
	}, s.logger)

	pageHandler, err := handler.NewPageHandler(registry, authService, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}

	checks := map[string]handler.Pinger{"database": s.store}
	if redisLocker != nil {
		checks["redis"] = redisLocker
	}
	healthHandler := handler.NewHealthHandler(checks, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// === Pages ===
	s.router.With(auth.OptionalAuth(tokens)).Get("/", pageHandler.HandleIndex)
	s.router.With(auth.RequireSession(tokens)).Get("/profile", pageHandler.HandleProfile)

	// === OAuth ===
	s.router.Get("/login", redirectTo("/auth/google/login"))
	s.router.Get("/spotify/login", redirectTo("/auth/spotify/login"))
	s.router.Get("/auth/callback", authHandler.CallbackFor(model.ProviderGoogle))
	s.router.Get("/spotify/callback", authHandler.CallbackFor(model.ProviderSpotify))
	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/{provider}/login", authHandler.HandleLogin)
		r.Get("/{provider}/callback", authHandler.HandleCallback)
		r.Post("/logout", authHandler.HandleAPILogout)
	})
	s.router.Get("/logout", authHandler.HandleLogout)

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/me", authHandler.HandleMe)
	})

	s.router.Get("/healthz", healthHandler.HandleHealth)

	return nil
}

func redirectTo(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, path, http.StatusSeeOther)
	}
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store and the Redis client.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// Start runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests for up to 30 seconds and closes the store.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("port", s.config.Port),
			slog.String("url", s.config.BaseURL),
			slog.String("driver", s.config.DBDriver),
			slog.Bool("redisLock", s.redis != nil),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
