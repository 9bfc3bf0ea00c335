// Package main is the entry point for the afxledger back-office server. It
// exposes the role-gated /admin endpoints used by the signup and settlement
// collaborators and by operators.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/afrix/afxledger/internal/app"
	"github.com/afrix/afxledger/internal/backoffice"
	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/events"
	"github.com/afrix/afxledger/internal/metrics"
	"github.com/afrix/afxledger/internal/repository"
	"go.uber.org/zap"
)

func main() {
	// ── Config + logger ───────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProd() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic("logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	logger.Info("starting afxledger backoffice server",
		zap.String("env", cfg.Server.Env), zap.String("port", cfg.Server.BackofficePort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────────────
	db, err := repository.Open(cfg.DB)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	// The API server owns migrations; running them here too keeps a fresh
	// local setup usable from either binary.
	if err = repository.Migrate(ctx, db); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	rdb, err := repository.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer repository.CloseRedis(rdb)

	// ── Services ──────────────────────────────────────────────────────────────
	m := metrics.New("backoffice")
	svc := app.NewServices(db, rdb, cfg, m, nil, logger)

	if kafkaPub := events.NewKafkaPublisher(cfg.Kafka, logger.Named("kafka"), m); kafkaPub != nil {
		svc.SetPublisher(kafkaPub)
		defer func() { _ = kafkaPub.Close() }()
	}

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		Sessions:    svc.Sessions,
		Profiles:    svc.Profiles,
		Ledger:      svc.Ledger,
		Claims:      svc.Claims,
		Offers:      svc.Offers,
		Commissions: svc.Commissions,
		Price:       svc.Price,
		Metrics:     m,
		Log:         logger.Named("http"),
		Cfg:         cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("backoffice listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("backoffice server error", zap.Error(err))
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("backoffice shutdown error", zap.Error(err))
	}
	logger.Info("backoffice stopped cleanly")
}
