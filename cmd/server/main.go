package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Baaaki/postboard/internal/audit"
	"github.com/Baaaki/postboard/internal/broker"
	"github.com/Baaaki/postboard/internal/config"
	"github.com/Baaaki/postboard/internal/database"
	"github.com/Baaaki/postboard/internal/repository"
	"github.com/Baaaki/postboard/internal/router"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/Baaaki/postboard/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(!cfg.IsProduction()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal("Invalid configuration", zap.Error(err))
	}
	logger.Log.Info("Config loaded", zap.String("environment", cfg.Environment))

	if err := database.Connect(cfg); err != nil {
		logger.Log.Fatal("Failed to connect database", zap.Error(err))
	}
	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Redis is optional: without it events stay in-process and rate limiting is off
	var redisClient *redis.Client
	var eventBroker broker.Broker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		eventBroker = broker.NewRedisBroker(redisClient)
		logger.Log.Info("Redis connected", zap.String("addr", opts.Addr))
	} else {
		eventBroker = broker.NewLocalBroker()
		logger.Log.Warn("REDIS_URL not set, using in-process broker and no rate limiting")
	}
	defer eventBroker.Close()

	journal, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		logger.Log.Fatal("Failed to open audit journal", zap.Error(err), zap.String("path", cfg.AuditLogPath))
	}
	defer journal.Close()

	userRepo := repository.NewUserRepository(database.DB)
	postRepo := repository.NewPostRepository(database.DB)

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
	userService := service.NewUserService(userRepo, journal, cfg.PageSize)
	postService := service.NewPostService(postRepo, eventBroker, journal, cfg.PageSize, cfg.RetentionWindow)
	adminService := service.NewAdminService(userRepo, postRepo, journal, cfg.PageSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := router.New(router.Deps{
		Config:       cfg,
		Lifetime:     ctx,
		DB:           database.DB,
		Redis:        redisClient,
		Broker:       eventBroker,
		AuthService:  authService,
		UserService:  userService,
		PostService:  postService,
		AdminService: adminService,
	})

	if cfg.SweepInterval > 0 {
		go postService.RunSweeper(ctx, cfg.SweepInterval)
	}

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server starting", zap.String("addr", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
}
