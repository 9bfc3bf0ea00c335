package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/metrics"
	"github.com/afrix/afxledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ClaimService grants the fixed cooldown claim ("mining").
type ClaimService struct {
	db        *sqlx.DB
	profiles  *repository.ProfileRepository
	ledger    *repository.LedgerRepository
	txns      *repository.TransactionRepository
	cfg       config.ClaimConfig
	log       *zap.Logger
	accruer   Accruer
	metrics   *metrics.Metrics
	publisher EventPublisher
	now       Clock
}

// NewClaimService creates a ClaimService.
func NewClaimService(
	db *sqlx.DB,
	profiles *repository.ProfileRepository,
	ledger *repository.LedgerRepository,
	txns *repository.TransactionRepository,
	cfg config.ClaimConfig,
	log *zap.Logger,
) *ClaimService {
	return &ClaimService{
		db:       db,
		profiles: profiles,
		ledger:   ledger,
		txns:     txns,
		cfg:      cfg,
		log:      log,
		now:      systemClock,
	}
}

// SetClock replaces the time source.
func (s *ClaimService) SetClock(c Clock) { s.now = c }

// SetAccruer injects the commission collaborator.
func (s *ClaimService) SetAccruer(a Accruer) { s.accruer = a }

// SetMetrics injects the collectors.
func (s *ClaimService) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// SetPublisher injects the event sink.
func (s *ClaimService) SetPublisher(p EventPublisher) { s.publisher = p }

// Status reports whether the user can claim now and how long is left.
func (s *ClaimService) Status(ctx context.Context, userID uuid.UUID) (domain.ClaimStatus, error) {
	p, err := s.profiles.GetByID(ctx, nil, userID)
	if err != nil {
		return domain.ClaimStatus{}, err
	}
	return p.ClaimStatusAt(s.now()), nil
}

// Claim credits the claim amount when the user is idle and starts the next
// cooldown. Concurrent claims by one user produce exactly one credit.
func (s *ClaimService) Claim(ctx context.Context, userID uuid.UUID) (*domain.ClaimResult, error) {
	now := s.now()
	next := now.Add(s.cfg.Interval)

	var res *domain.ClaimResult
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		p, err := s.profiles.GetByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !p.ClaimStatusAt(now).CanClaim {
			return notReady(p, now)
		}

		if err := s.profiles.RecordClaim(ctx, tx, userID, p.ClaimVersion, now, next); err != nil {
			if !errors.Is(err, domain.ErrClaimNotReady) {
				return err
			}
			// Someone else claimed between our read and the CAS.
			fresh, ferr := s.profiles.GetByID(ctx, tx, userID)
			if ferr != nil {
				return ferr
			}
			return notReady(fresh, now)
		}

		entry, err := s.ledger.Insert(ctx, tx, userID, s.cfg.Amount, domain.OriginMining, domain.FundAvailable, now)
		if err != nil {
			return err
		}
		if err := s.txns.Log(ctx, tx, domain.NewTransaction(
			userID, domain.TxMining, s.cfg.Amount, nil, "Mining reward", now)); err != nil {
			return err
		}

		res = &domain.ClaimResult{
			EntryID:     entry.ID,
			Amount:      s.cfg.Amount,
			ClaimedAt:   entry.CreatedAt,
			NextClaimAt: next.UTC().Truncate(time.Microsecond),
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrClaimNotReady) {
			s.metrics.RecordClaim("cooling")
			return nil, err
		}
		s.metrics.RecordClaim("error")
		return nil, fmt.Errorf("claim_service.Claim: %w", err)
	}
	s.metrics.RecordClaim("granted")

	if s.accruer != nil {
		accrueQuietly(ctx, s.log, s.metrics, domain.CommissionFromClaim, userID, func(c context.Context) error {
			return s.accruer.AccrueClaim(c, userID, res.Amount)
		})
	}
	publish(ctx, s.publisher, s.log, domain.Event{
		Type:       domain.EventClaimGranted,
		UserID:     userID,
		Amount:     res.Amount,
		OccurredAt: now,
	})

	s.log.Info("claim granted",
		zap.String("user_id", userID.String()),
		zap.String("amount", res.Amount.String()),
		zap.Time("next_claim_at", res.NextClaimAt))
	return res, nil
}

func notReady(p *domain.UserProfile, now time.Time) error {
	e := &domain.ClaimNotReadyError{}
	if p.NextClaimAt != nil {
		e.NextClaimAt = *p.NextClaimAt
		if d := p.NextClaimAt.Sub(now); d > 0 {
			e.Remaining = d
		}
	}
	return e
}
