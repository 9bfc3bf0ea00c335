// Package app wires repositories and services into one graph shared by the
// public server, the back-office server and the HTTP tests.
package app

import (
	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/metrics"
	"github.com/afrix/afxledger/internal/repository"
	"github.com/afrix/afxledger/internal/service"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services is the wired service graph.
type Services struct {
	Ledger      *service.LedgerService
	Claims      *service.ClaimService
	Offers      *service.OfferService
	Commissions *service.CommissionService
	Profiles    *service.ProfileService
	Sessions    *service.SessionService
	Price       *service.PriceService
	Rules       domain.OfferRules
	Metrics     *metrics.Metrics
}

// NewServices builds every repository and service on db. rdb, m and pub may
// be nil.
func NewServices(db *sqlx.DB, rdb *redis.Client, cfg *config.Config, m *metrics.Metrics,
	pub service.EventPublisher, log *zap.Logger) *Services {

	profileRepo := repository.NewProfileRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	escrowRepo := repository.NewEscrowRepository(db)
	offerRepo := repository.NewOfferRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	txRepo := repository.NewTransactionRepository(db)

	s := &Services{
		Rules: domain.OfferRules{
			MinPostAmount:  cfg.Offer.MinPostAmount,
			MinTradeAmount: cfg.Offer.MinTradeAmount,
			PriceBand:      cfg.Offer.PriceBand,
		},
		Metrics: m,
	}

	s.Ledger = service.NewLedgerService(db, ledgerRepo, profileRepo, txRepo)

	s.Commissions = service.NewCommissionService(db, profileRepo, referralRepo, ledgerRepo, txRepo, cfg.Referral, log)
	s.Commissions.SetMetrics(m)

	s.Claims = service.NewClaimService(db, profileRepo, ledgerRepo, txRepo, cfg.Claim, log)
	s.Claims.SetAccruer(s.Commissions)
	s.Claims.SetMetrics(m)

	escrow := service.NewEscrowManager(ledgerRepo, escrowRepo)
	s.Offers = service.NewOfferService(db, offerRepo, tradeRepo, profileRepo, txRepo, escrow, s.Rules, log)
	s.Offers.SetAccruer(s.Commissions)
	s.Offers.SetMetrics(m)

	s.Profiles = service.NewProfileService(db, profileRepo, referralRepo, log)
	s.Sessions = service.NewSessionService(cfg)

	s.Price = service.NewPriceService(cfg, rdb, log)
	s.Price.SetMetrics(m)

	if pub != nil {
		s.SetPublisher(pub)
	}
	return s
}

// SetPublisher routes committed events from every service to pub.
func (s *Services) SetPublisher(pub service.EventPublisher) {
	s.Commissions.SetPublisher(pub)
	s.Claims.SetPublisher(pub)
	s.Offers.SetPublisher(pub)
}

// SetClock replaces the time source of every service.
func (s *Services) SetClock(c service.Clock) {
	s.Ledger.SetClock(c)
	s.Commissions.SetClock(c)
	s.Claims.SetClock(c)
	s.Offers.SetClock(c)
	s.Profiles.SetClock(c)
	s.Sessions.SetClock(c)
	s.Price.SetClock(c)
}
