package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm/logger"

	"hirehub/internal/api"
	"hirehub/internal/auth"
	"hirehub/internal/config"
	"hirehub/internal/database"
	"hirehub/internal/realtime"
	"hirehub/internal/storage"
)

func main() {
	// 本地开发时从 .env 读取，生产环境直接使用进程环境变量
	_ = godotenv.Load()

	cfg := config.MustLoad()

	appLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(appLogger)

	appLogger.Info("api bootstrapping",
		slog.String("db_host", cfg.Database.Host),
		slog.Int("db_port", cfg.Database.Port),
		slog.String("db_name", cfg.Database.Name),
		slog.String("sslmode", cfg.Database.SSLMode),
	)

	db, err := database.InitDatabase(cfg.Database, logger.Warn)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	appLogger.Info("database migrated")

	privatePEM, err := os.ReadFile(cfg.JWT.PrivateKeyPath)
	if err != nil {
		log.Fatalf("read jwt private key: %v", err)
	}
	publicPEM, err := os.ReadFile(cfg.JWT.PublicKeyPath)
	if err != nil {
		log.Fatalf("read jwt public key: %v", err)
	}
	authService, err := auth.NewAuthService(privatePEM, publicPEM, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			appLogger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	appLogger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	hub := realtime.NewHub(redisClient, appLogger)

	router := api.NewRouter(cfg, appLogger)
	api.RegisterRoutes(router, api.Dependencies{
		Config:  cfg,
		DB:      db,
		Auth:    authService,
		Redis:   redisClient,
		Queue:   asynqClient,
		Storage: storageClient,
		Hub:     hub,
		Logger:  appLogger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		appLogger.Info("api listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	<-ctx.Done()
	appLogger.Info("api shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
