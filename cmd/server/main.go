package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/authcore/authcore/internal/cache"
	"github.com/authcore/authcore/internal/config"
	"github.com/authcore/authcore/internal/handlers"
	"github.com/authcore/authcore/internal/middleware"
	"github.com/authcore/authcore/internal/repository"
	"github.com/authcore/authcore/internal/repository/dynamo"
	"github.com/authcore/authcore/internal/repository/postgres"
	"github.com/authcore/authcore/internal/service"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	ctx := context.Background()

	userRepo, tokenRepo, closeDB, err := initRepositories(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize datastore")
	}
	defer closeDB()

	backend, err := initCacheBackend(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize cache backend")
	}

	userCache := cache.NewUserCache(backend, userRepo, cfg.Cache.UserTTL, logger)
	tokenStore := service.NewRefreshTokenStore(tokenRepo, cfg.JWT.RefreshExpiry, cfg.Cleanup.RevokedRetention, logger)

	tokenService, err := service.NewTokenService(&cfg.JWT, tokenStore, userCache, userRepo, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize token service")
	}

	authHandlers := handlers.NewAuthHandlers(tokenService, userCache, logger)
	authMiddleware := middleware.NewAuthMiddleware(tokenService, userCache, logger)
	router := setupRouter(authHandlers, authMiddleware, logger)

	// Cleanup runs on its own schedule, independent of request handling.
	cleanerCtx, stopCleaner := context.WithCancel(ctx)
	cleaner := service.NewCleaner(tokenStore, cfg.Cleanup.Interval, logger)
	go cleaner.Run(cleanerCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopCleaner()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initRepositories(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (repository.UserRepository, repository.RefreshTokenRepository, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		logger.Info("Postgres datastore initialized")
		return postgres.NewUserRepository(db, logger),
			postgres.NewRefreshTokenRepository(db, logger),
			func() { db.Close() },
			nil

	case "dynamo":
		client, err := dynamo.NewClient(ctx, &cfg.DynamoDB)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("DynamoDB datastore initialized")
		return dynamo.NewUserRepository(client, cfg.DynamoDB.TableName, logger),
			dynamo.NewRefreshTokenRepository(client, cfg.DynamoDB.TableName, logger),
			func() {},
			nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
}

func initCacheBackend(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (cache.Backend, error) {
	switch cfg.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Endpoint,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		logger.Info("Redis cache backend initialized")
		return cache.NewRedisBackend(client, cfg.Cache.OpTimeout, logger), nil

	case "memory":
		logger.Info("In-process cache backend initialized")
		return cache.NewMemoryBackend(), nil

	default:
		return nil, fmt.Errorf("unsupported CACHE_BACKEND %q", cfg.Cache.Backend)
	}
}

func setupRouter(
	authHandlers *handlers.AuthHandlers,
	authMiddleware *middleware.AuthMiddleware,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	api := router.PathPrefix("/api/v1").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", authHandlers.Login).Methods("POST", "OPTIONS")
	auth.HandleFunc("/refresh", authHandlers.Refresh).Methods("POST", "OPTIONS")
	auth.HandleFunc("/logout", authHandlers.Logout).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("/").Subrouter()
	protected.Use(authMiddleware.RequireAuth)
	protected.HandleFunc("/auth/logout-all", authHandlers.LogoutAll).Methods("POST")
	protected.HandleFunc("/me", authHandlers.Me).Methods("GET")
	protected.HandleFunc("/admin/cache/stats", authHandlers.CacheStats).Methods("GET")
	protected.HandleFunc("/admin/cache/invalidate", authHandlers.InvalidateUserCache).Methods("POST")

	return router
}
