package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ReferralRepository handles referral edges and their accrued commission.
type ReferralRepository struct {
	db *sqlx.DB
}

// NewReferralRepository creates a new ReferralRepository.
func NewReferralRepository(db *sqlx.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

const referralColumns = `referrer_id, referred_id, referral_code, accrued_trade_commission,
	accrued_claim_commission, version, created_at, updated_at`

// Insert creates an edge. A user can be referred only once.
func (r *ReferralRepository) Insert(ctx context.Context, tx *sqlx.Tx, e *domain.ReferralEdge) error {
	e.CreatedAt = stamp(e.CreatedAt)
	e.UpdatedAt = stamp(e.UpdatedAt)
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO referral_edges (`+referralColumns+`)
		VALUES (:referrer_id, :referred_id, :referral_code, :accrued_trade_commission,
			:accrued_claim_commission, :version, :created_at, :updated_at)`, e)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProfileExists
		}
		return fmt.Errorf("referral_repo.Insert: %w", err)
	}
	return nil
}

// LockAndGet takes the edge's row lock and reads it.
func (r *ReferralRepository) LockAndGet(ctx context.Context, tx *sqlx.Tx, referrerID, referredID uuid.UUID) (*domain.ReferralEdge, error) {
	ok, err := bump(ctx, tx, `
		UPDATE referral_edges SET version = version + 1
		WHERE referrer_id = ? AND referred_id = ?`, referrerID, referredID)
	if err != nil {
		return nil, fmt.Errorf("referral_repo.LockAndGet: %w", err)
	}
	if !ok {
		return nil, domain.ErrReferralEdgeNotFound
	}

	var e domain.ReferralEdge
	err = tx.GetContext(ctx, &e, tx.Rebind(`
		SELECT `+referralColumns+` FROM referral_edges
		WHERE referrer_id = ? AND referred_id = ?`), referrerID, referredID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReferralEdgeNotFound
		}
		return nil, fmt.Errorf("referral_repo.LockAndGet read: %w", err)
	}
	return &e, nil
}

// SetAccrued stores the edge's new commission totals.
func (r *ReferralRepository) SetAccrued(ctx context.Context, tx *sqlx.Tx, e *domain.ReferralEdge, now time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE referral_edges
		SET accrued_trade_commission = ?,
		    accrued_claim_commission = ?,
		    updated_at               = ?
		WHERE referrer_id = ? AND referred_id = ?`),
		e.AccruedTradeCommission, e.AccruedClaimCommission, stamp(now), e.ReferrerID, e.ReferredID)
	if err != nil {
		return fmt.Errorf("referral_repo.SetAccrued: %w", err)
	}
	return nil
}

// ListByReferrer returns every edge where the user is the referrer.
func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*domain.ReferralEdge, error) {
	var edges []*domain.ReferralEdge
	err := r.db.SelectContext(ctx, &edges, r.db.Rebind(`
		SELECT `+referralColumns+` FROM referral_edges
		WHERE referrer_id = ?
		ORDER BY created_at ASC`), referrerID)
	if err != nil {
		return nil, fmt.Errorf("referral_repo.ListByReferrer: %w", err)
	}
	return edges, nil
}
