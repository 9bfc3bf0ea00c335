// Package main is the entry point for the afxledger public API server. It
// wires the ledger services and starts the HTTP server alongside the
// WebSocket hub, the event stream and the background scheduler.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/afrix/afxledger/internal/api"
	"github.com/afrix/afxledger/internal/app"
	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/events"
	"github.com/afrix/afxledger/internal/metrics"
	"github.com/afrix/afxledger/internal/repository"
	"github.com/afrix/afxledger/internal/scheduler"
	"github.com/afrix/afxledger/internal/ws"
	"go.uber.org/zap"
)

func main() {
	// ── 1. Config + logger ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	logger.Info("starting afxledger server",
		zap.String("env", cfg.Server.Env), zap.String("port", cfg.Server.Port))

	// ── 2. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Database + migrations ──────────────────────────────────────────────
	db, err := repository.Open(cfg.DB)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()
	logger.Info("database connected", zap.String("driver", cfg.DB.Driver))

	if err = repository.Migrate(ctx, db); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	logger.Info("migrations applied")

	// ── 4. Redis (optional) ───────────────────────────────────────────────────
	rdb, err := repository.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer repository.CloseRedis(rdb)

	// ── 5. Metrics + services ─────────────────────────────────────────────────
	m := metrics.New("api")
	svc := app.NewServices(db, rdb, cfg, m, nil, logger)

	// ── 6. Event sinks: websocket hub + kafka ─────────────────────────────────
	hub := ws.NewHub(svc.Sessions, cfg.Server.AllowedOrigins, logger.Named("ws"))
	go hub.Run(ctx)
	logger.Info("websocket hub started")

	sinks := events.Fanout{hub}
	kafkaPub := events.NewKafkaPublisher(cfg.Kafka, logger.Named("kafka"), m)
	if kafkaPub != nil {
		sinks = append(sinks, kafkaPub)
		defer func() {
			if err := kafkaPub.Close(); err != nil {
				logger.Warn("kafka close failed", zap.Error(err))
			}
		}()
	}
	svc.SetPublisher(sinks)

	// ── 7. Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(svc.Price, svc.Ledger, hub, m, cfg.Price.RefreshSpec, logger.Named("scheduler"))
	if err = sched.Start(ctx); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}
	defer sched.Stop()

	// ── 8. HTTP router ────────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		Sessions:    svc.Sessions,
		Claims:      svc.Claims,
		Ledger:      svc.Ledger,
		Offers:      svc.Offers,
		Commissions: svc.Commissions,
		Price:       svc.Price,
		Rules:       svc.Rules,
		Hub:         hub,
		Metrics:     m,
		Log:         logger.Named("http"),
		Cfg:         cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 9. Start server ───────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	// ── 10. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}
	logger.Info("server stopped cleanly")
}

// newLogger returns a JSON production logger in production and a console
// development logger everywhere else.
func newLogger(cfg *config.Config) *zap.Logger {
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
	return logger
}
