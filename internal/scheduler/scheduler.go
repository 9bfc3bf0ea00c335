// Package scheduler runs the ledger's periodic jobs on a cron:
//  1. price refresh     – pulls the reference price and pushes it to WS clients.
//  2. supply reconcile  – checks available + locked against minted supply.
package scheduler

import (
	"context"
	"time"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/metrics"
	"github.com/afrix/afxledger/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultReconcileSpec runs the supply check once a minute.
const DefaultReconcileSpec = "@every 1m"

// PriceSource is the part of PriceService the scheduler needs.
type PriceSource interface {
	Refresh(ctx context.Context) (service.PriceQuote, error)
}

// SupplySource is the part of LedgerService the scheduler needs.
type SupplySource interface {
	Supply(ctx context.Context) (domain.Supply, error)
}

// PriceBroadcaster pushes price ticks to live clients.
type PriceBroadcaster interface {
	BroadcastPrice(q service.PriceQuote)
}

// Scheduler owns a cron instance. Call Start once from main and Stop on
// shutdown.
type Scheduler struct {
	cron    *cron.Cron
	price   PriceSource
	supply  SupplySource
	hub     PriceBroadcaster
	metrics *metrics.Metrics
	log     *zap.Logger

	priceSpec     string
	reconcileSpec string
	jobTimeout    time.Duration
}

// NewScheduler creates a Scheduler. hub and m may be nil.
func NewScheduler(price PriceSource, supply SupplySource, hub PriceBroadcaster,
	m *metrics.Metrics, priceSpec string, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		price:         price,
		supply:        supply,
		hub:           hub,
		metrics:       m,
		log:           log,
		priceSpec:     priceSpec,
		reconcileSpec: DefaultReconcileSpec,
		jobTimeout:    15 * time.Second,
	}
}

// Start registers the jobs and starts the cron. It returns immediately; jobs
// stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.price != nil && s.priceSpec != "" {
		if _, err := s.cron.AddFunc(s.priceSpec, func() { s.run(ctx, "price_refresh", s.RefreshPrice) }); err != nil {
			return err
		}
	}
	if s.supply != nil {
		if _, err := s.cron.AddFunc(s.reconcileSpec, func() { s.run(ctx, "supply_reconcile", s.ReconcileSupply) }); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("price_spec", s.priceSpec),
		zap.String("reconcile_spec", s.reconcileSpec))
	return nil
}

// Stop stops the cron and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, job string, fn func(context.Context)) {
	defer s.recoverAndLog(job)
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	fn(ctx)
}

// ──────────────────────────────────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────────────────────────────────

// RefreshPrice fetches the reference price and broadcasts it.
func (s *Scheduler) RefreshPrice(ctx context.Context) {
	q, err := s.price.Refresh(ctx)
	if err != nil {
		s.log.Warn("price refresh failed", zap.Error(err))
		return
	}
	if s.hub != nil {
		s.hub.BroadcastPrice(q)
	}
}

// ReconcileSupply records the drift between circulating and minted supply.
// Any non-zero drift is an accounting bug and is logged at error level.
func (s *Scheduler) ReconcileSupply(ctx context.Context) {
	sup, err := s.supply.Supply(ctx)
	if err != nil {
		s.log.Warn("supply reconcile failed", zap.Error(err))
		return
	}
	drift := sup.Circulating().Sub(sup.Minted)
	s.metrics.SetSupplyDrift(drift)
	if !sup.Balanced() {
		s.log.Error("supply drift detected",
			zap.String("available", sup.Available.String()),
			zap.String("locked", sup.Locked.String()),
			zap.String("minted", sup.Minted.String()),
			zap.String("drift", drift.String()))
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

func (s *Scheduler) recoverAndLog(job string) {
	if r := recover(); r != nil {
		s.log.Error("PANIC recovered in scheduler job", zap.String("job", job), zap.Any("panic", r))
	}
}
