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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm/logger"

	"hirehub/internal/config"
	"hirehub/internal/database"
	"hirehub/internal/mail"
	"hirehub/internal/metrics"
	"hirehub/internal/service"
	"hirehub/internal/tasks"
	"hirehub/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	appLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(appLogger)

	db, err := database.InitDatabase(cfg.Database, logger.Warn)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	renderer, err := mail.NewRenderer()
	if err != nil {
		log.Fatalf("load mail templates: %v", err)
	}
	sender := mail.NewSMTPSender(cfg.Mail)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(appLogger),
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeEmailSend, worker.NewEmailTaskHandler(renderer, sender, appLogger))
	mux.Handle(tasks.TypePurgeWithdrawn, worker.NewPurgeTaskHandler(service.NewApplicationService(db), appLogger))

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   newAsynqLogger(appLogger),
	})
	entryID, err := scheduler.Register(cfg.Worker.PurgeCron, tasks.NewPurgeWithdrawnTask())
	if err != nil {
		log.Fatalf("register purge schedule: %v", err)
	}
	appLogger.Info("purge task scheduled",
		slog.String("entry_id", entryID),
		slog.String("cron", cfg.Worker.PurgeCron),
	)

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()

	if err := scheduler.Start(); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	if err := server.Start(mux); err != nil {
		log.Fatalf("start worker server: %v", err)
	}
	appLogger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	appLogger.Info("worker shutting down")
	scheduler.Shutdown()
	server.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
