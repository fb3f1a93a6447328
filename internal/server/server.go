// Package server is the composition root: it opens the store, builds the
// services and handlers, mounts the routes and runs the HTTP server.
//
// ROUTES:
//
//	POST   /signup                       public
//	POST   /login                        public, rate limited per client IP
//	POST   /logout                       public (needs a token to revoke)
//	GET    /healthz                      public
//	GET    /user/{id}                    token
//	PUT    /user/{id}                    token
//	DELETE /user/{id}                    token
//	GET    /users                        token
//	POST   /profile/{id}                 token
//	GET    /profile/{id}                 token
//	GET    /profile                      token
//	GET    /profile/search/{interest}    token
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/friendship-plus/internal/auth"
	"github.com/sakif/friendship-plus/internal/config"
	"github.com/sakif/friendship-plus/internal/handler"
	"github.com/sakif/friendship-plus/internal/middleware"
	"github.com/sakif/friendship-plus/internal/repository/sqlstore"
	"github.com/sakif/friendship-plus/internal/service"
)

// ServiceName identifies this process in traces and logs.
const ServiceName = "friendship-plus"

const shutdownTimeout = 30 * time.Second

// Server owns the router and every long-lived resource behind it. The
// database and the Redis client are closed when Run returns.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqlstore.DB
	redis  *redis.Client // nil when rate limits are counted in memory
}

// New opens and migrates the configured database, then builds the server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.DBDriver == sqlstore.DriverSQLite {
		if err := ensureDir(cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}

	db, err := sqlstore.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s, err := NewWithDB(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB builds the server on an already migrated database. Tests pass
// an in-memory store here.
func NewWithDB(cfg config.Config, db *sqlstore.DB, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
	}

	if err := s.setupRoutes(); err != nil {
		s.closeResources()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// setupRoutes wires the dependency chain:
//
//	sqlstore.DB → services → handlers → routes
//
// Middleware order: RequestID, RealIP, Logger, Recoverer, CORS. RealIP must
// run before the login rate limiter, which keys on RemoteAddr.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordServiceWithCost(s.config.BcryptCost)

	accounts := service.NewAccountService(s.db, tokens, passwords, s.logger)
	profiles := service.NewProfileService(s.db, s.logger)
	directory := service.NewDirectoryService(s.db, s.logger)

	accountHandler := handler.NewAccountHandler(accounts, s.config.IsProduction(), s.logger)
	profileHandler := handler.NewProfileHandler(profiles, s.config.MaxUploadBytes, s.logger)
	directoryHandler := handler.NewDirectoryHandler(directory, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	loginLimit := middleware.RateLimit(s.rateCounter(), "login",
		s.config.LoginRateLimit, s.config.LoginRateWindow, s.logger)

	// === Public ===
	s.router.Get("/healthz", healthHandler.HandleHealthz)
	s.router.Post("/signup", accountHandler.HandleSignup)
	s.router.With(loginLimit).Post("/login", accountHandler.HandleLogin)
	s.router.Post("/logout", accountHandler.HandleLogout)

	// === Protected ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens, accounts, s.logger))

		r.Get("/users", accountHandler.HandleListUsers)
		r.Route("/user/{id}", func(r chi.Router) {
			r.Get("/", accountHandler.HandleGetUser)
			r.Put("/", accountHandler.HandleUpdateUser)
			r.Delete("/", accountHandler.HandleDeleteUser)
		})

		r.Get("/profile", directoryHandler.HandleList)
		r.Get("/profile/search/{interest}", directoryHandler.HandleSearch)
		r.Get("/profile/{id}", profileHandler.HandleGet)
		r.Post("/profile/{id}", profileHandler.HandleUpsert)
	})

	return nil
}

func (s *Server) rateCounter() middleware.Counter {
	if s.redis != nil {
		return middleware.NewRedisCounter(s.redis, ServiceName+":ratelimit:")
	}
	s.logger.Warn("REDIS_ADDR not set, login rate limits are per process")
	return middleware.NewMemoryCounter()
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// releases the database and Redis connections.
func (s *Server) Run(ctx context.Context) error {
	defer s.closeResources()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweepSessions(sweepCtx, s.config.SessionSweepInterval)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.AppEnv),
			slog.String("driver", s.db.Driver()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// sweepSessions deletes expired session rows every interval until ctx is
// done. A zero interval disables the sweeper.
func (s *Server) sweepSessions(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpiredSessions(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("session sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// SweepExpiredSessions removes every session whose expiry has passed and
// returns how many rows went.
func (s *Server) SweepExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.db.Repos().Sessions.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", slog.Int64("count", n))
	}
	return n, nil
}

func (s *Server) closeResources() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis client", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}

// ensureDir creates the parent directory of an SQLite database file.
func ensureDir(dsn string) error {
	if dsn == "" || dsn == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
