package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/replay-console/replay-console/internal/app"
	"github.com/replay-console/replay-console/internal/auth"
	"github.com/replay-console/replay-console/internal/clients"
	"github.com/replay-console/replay-console/internal/platform/cache"
	"github.com/replay-console/replay-console/internal/platform/db"
	"github.com/replay-console/replay-console/internal/sales"
	"github.com/replay-console/replay-console/internal/separation"
	"github.com/replay-console/replay-console/internal/shared"
	"github.com/replay-console/replay-console/internal/stock"
	"github.com/replay-console/replay-console/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queueClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("create queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	validate := validator.New()
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	sessionStore := auth.NewSessionStore(redisClient, cfg.SessionTTL)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, sessionStore, logger)
	authHandler := auth.NewHandler(logger, authService, validate)

	separationRepo := separation.NewRepository(dbpool)
	separationService := separation.NewService(separationRepo, logger)
	separationHandler := separation.NewHandler(logger, separationService, validate)

	stockRepo := stock.NewRepository(dbpool)
	stockService := stock.NewService(stockRepo, separationService, queueClient, idempotencyStore, logger)
	stockHandler := stock.NewHandler(logger, stockService, validate)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(salesRepo, queueClient, separationService, logger)
	salesHandler := sales.NewHandler(logger, salesService, validate)

	clientsRepo := clients.NewRepository(dbpool)
	clientsService := clients.NewService(clientsRepo, logger)
	clientsHandler := clients.NewHandler(logger, clientsService, validate)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthHandler:       authHandler,
		StockHandler:      stockHandler,
		SeparationHandler: separationHandler,
		SalesHandler:      salesHandler,
		ClientsHandler:    clientsHandler,
		JobHandler:        jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
