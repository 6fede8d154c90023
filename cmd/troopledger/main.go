package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/troopledger/troopledger/internal/app"
	"github.com/troopledger/troopledger/internal/auth"
	"github.com/troopledger/troopledger/internal/ledger"
	"github.com/troopledger/troopledger/internal/platform/cache"
	"github.com/troopledger/troopledger/internal/platform/db"
	"github.com/troopledger/troopledger/internal/shared"
	"github.com/troopledger/troopledger/internal/users"
	"github.com/troopledger/troopledger/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	auditLogger := shared.NewAuditLogger(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	if _, err := ledgerService.EnsureUnitAccount(ctx); err != nil {
		logger.Error("provision unit account", slog.Any("error", err))
		os.Exit(1)
	}
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	tokenStore := auth.NewTokenStore(redisClient, cfg.TokenTTL)
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, tokenStore)
	authHandler := auth.NewHandler(logger, authService)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, auditLogger)
	usersHandler := users.NewHandler(logger, usersService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		AuthHandler:   authHandler,
		LedgerHandler: ledgerHandler,
		UsersHandler:  usersHandler,
		JobHandler:    jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
