package service

import (
	"context"
	"fmt"

	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/metrics"
	"github.com/afrix/afxledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// commissionPlaces is the precision commissions are rounded down to.
const commissionPlaces = 8

// Accruer credits referral commission for an actor's activity. Callers treat
// a returned error as non-fatal.
type Accruer interface {
	AccrueTrade(ctx context.Context, actorID uuid.UUID, tradeAmount decimal.Decimal, tradeID uuid.UUID) error
	AccrueClaim(ctx context.Context, actorID uuid.UUID, claimAmount decimal.Decimal) error
}

// CommissionService pays the single-level referral commission.
type CommissionService struct {
	db        *sqlx.DB
	profiles  *repository.ProfileRepository
	referrals *repository.ReferralRepository
	ledger    *repository.LedgerRepository
	txns      *repository.TransactionRepository
	cfg       config.ReferralConfig
	log       *zap.Logger
	metrics   *metrics.Metrics
	publisher EventPublisher
	now       Clock
}

var _ Accruer = (*CommissionService)(nil)

// NewCommissionService creates a CommissionService.
func NewCommissionService(
	db *sqlx.DB,
	profiles *repository.ProfileRepository,
	referrals *repository.ReferralRepository,
	ledger *repository.LedgerRepository,
	txns *repository.TransactionRepository,
	cfg config.ReferralConfig,
	log *zap.Logger,
) *CommissionService {
	return &CommissionService{
		db:        db,
		profiles:  profiles,
		referrals: referrals,
		ledger:    ledger,
		txns:      txns,
		cfg:       cfg,
		log:       log,
		now:       systemClock,
	}
}

// SetClock replaces the time source.
func (s *CommissionService) SetClock(c Clock) { s.now = c }

// SetMetrics injects the collectors.
func (s *CommissionService) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// SetPublisher injects the event sink.
func (s *CommissionService) SetPublisher(p EventPublisher) { s.publisher = p }

// AccrueTrade pays the actor's referrer TradeRate of the trade notional,
// expressed in coins: rate * amount * unit_price / unit_price.
func (s *CommissionService) AccrueTrade(ctx context.Context, actorID uuid.UUID, tradeAmount decimal.Decimal, tradeID uuid.UUID) error {
	desc := fmt.Sprintf("Trading commission (trade %s)", tradeID)
	return s.accrue(ctx, actorID, domain.CommissionFromTrade, tradeAmount, s.cfg.TradeRate, desc)
}

// AccrueClaim pays the actor's referrer ClaimRate of the claimed amount.
func (s *CommissionService) AccrueClaim(ctx context.Context, actorID uuid.UUID, claimAmount decimal.Decimal) error {
	return s.accrue(ctx, actorID, domain.CommissionFromClaim, claimAmount, s.cfg.ClaimRate, "Claim commission")
}

// Commission returns base × rate rounded down to eight places.
func Commission(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).RoundDown(commissionPlaces)
}

func (s *CommissionService) accrue(ctx context.Context, actorID uuid.UUID, source domain.CommissionSource,
	base, rate decimal.Decimal, desc string) error {
	actor, err := s.profiles.GetByID(ctx, nil, actorID)
	if err != nil {
		return fmt.Errorf("commission_service.accrue: %w", err)
	}
	if actor.ReferredBy == nil {
		return nil
	}
	amount := Commission(base, rate)
	if !amount.IsPositive() {
		return nil
	}
	referrerID := *actor.ReferredBy
	now := s.now()

	err = withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		edge, err := s.referrals.LockAndGet(ctx, tx, referrerID, actorID)
		if err != nil {
			return err
		}
		edge.Accrue(source, amount)
		if err := s.referrals.SetAccrued(ctx, tx, edge, now); err != nil {
			return err
		}
		if err := s.profiles.LockLedger(ctx, tx, referrerID); err != nil {
			return err
		}
		if _, err := s.ledger.Insert(ctx, tx, referrerID, amount,
			domain.OriginReferralCommission, domain.FundAvailable, now); err != nil {
			return err
		}
		return s.txns.Log(ctx, tx,
			domain.NewTransaction(referrerID, domain.TxReferralCommission, amount, nil, desc, now))
	})
	if err != nil {
		return fmt.Errorf("commission_service.accrue %s: %w", source, err)
	}

	s.metrics.RecordCommission(string(source))
	publish(ctx, s.publisher, s.log, domain.Event{
		Type:       domain.EventCommissionAccrued,
		UserID:     referrerID,
		Amount:     amount,
		OccurredAt: now,
	})
	return nil
}

// Summary returns the user's referral code, their referrals and totals.
func (s *CommissionService) Summary(ctx context.Context, userID uuid.UUID) (*domain.ReferralSummary, error) {
	p, err := s.profiles.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	edges, err := s.referrals.ListByReferrer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.Summarize(p.ReferralCode, edges), nil
}

// accrueQuietly runs an accrual and swallows its error after logging and
// counting it.
func accrueQuietly(ctx context.Context, log *zap.Logger, m *metrics.Metrics, source domain.CommissionSource,
	actorID uuid.UUID, fn func(context.Context) error) {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		m.RecordCommissionError(string(source))
		log.Error("commission accrual failed",
			zap.String("source", string(source)),
			zap.String("actor_id", actorID.String()),
			zap.Error(err))
	}
}
