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
	"github.com/shopspring/decimal"
)

// OfferRepository handles all database operations for offers.
type OfferRepository struct {
	db *sqlx.DB
}

// NewOfferRepository creates a new OfferRepository.
func NewOfferRepository(db *sqlx.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

const offerColumns = `id, owner_id, side, total_amount, remaining_amount, unit_price,
	min_trade_amount, max_trade_amount, reference_price, payment_methods, terms,
	status, escrow_id, version, created_at, updated_at`

// Insert writes a new offer.
func (r *OfferRepository) Insert(ctx context.Context, tx *sqlx.Tx, o *domain.Offer) error {
	o.CreatedAt = stamp(o.CreatedAt)
	o.UpdatedAt = stamp(o.UpdatedAt)
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO offers (`+offerColumns+`)
		VALUES (:id, :owner_id, :side, :total_amount, :remaining_amount, :unit_price,
			:min_trade_amount, :max_trade_amount, :reference_price, :payment_methods, :terms,
			:status, :escrow_id, :version, :created_at, :updated_at)`, o)
	if err != nil {
		return fmt.Errorf("offer_repo.Insert: %w", err)
	}
	return nil
}

// LockAndGet takes the offer row lock, then reads the offer. Fills and
// cancels of one offer are therefore strictly serialized.
func (r *OfferRepository) LockAndGet(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Offer, error) {
	ok, err := bump(ctx, tx, `UPDATE offers SET version = version + 1 WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("offer_repo.LockAndGet: %w", err)
	}
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	return r.GetByID(ctx, tx, id)
}

// GetByID fetches an offer. q may be a transaction or nil for the pool.
func (r *OfferRepository) GetByID(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*domain.Offer, error) {
	if q == nil {
		q = r.db
	}
	var o domain.Offer
	err := sqlx.GetContext(ctx, q, &o, r.db.Rebind(`SELECT `+offerColumns+` FROM offers WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOfferNotFound
		}
		return nil, fmt.Errorf("offer_repo.GetByID: %w", err)
	}
	return &o, nil
}

// ListOpen returns open offers of a side, oldest first. side="" lists both.
func (r *OfferRepository) ListOpen(ctx context.Context, side domain.OfferSide, limit, offset int) ([]*domain.Offer, error) {
	var (
		offers []*domain.Offer
		err    error
	)
	if side != "" {
		err = r.db.SelectContext(ctx, &offers, r.db.Rebind(`
			SELECT `+offerColumns+` FROM offers
			WHERE status = 'open' AND side = ?
			ORDER BY created_at ASC, id ASC
			LIMIT ? OFFSET ?`), side, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &offers, r.db.Rebind(`
			SELECT `+offerColumns+` FROM offers
			WHERE status = 'open'
			ORDER BY created_at ASC, id ASC
			LIMIT ? OFFSET ?`), limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("offer_repo.ListOpen: %w", err)
	}
	return offers, nil
}

// ListByOwner returns every offer a user posted, newest first.
func (r *OfferRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*domain.Offer, error) {
	var offers []*domain.Offer
	err := r.db.SelectContext(ctx, &offers, r.db.Rebind(`
		SELECT `+offerColumns+` FROM offers
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`), ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("offer_repo.ListByOwner: %w", err)
	}
	return offers, nil
}

// UpdateFill stores the new remaining amount and status of an offer. The
// caller holds the offer lock.
func (r *OfferRepository) UpdateFill(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, remaining decimal.Decimal, status domain.OfferStatus, now time.Time) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE offers SET remaining_amount = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = 'open'`), remaining, status, stamp(now), id)
	if err != nil {
		return fmt.Errorf("offer_repo.UpdateFill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrOfferNotOpen
	}
	return nil
}

// MarkCancelled moves an open offer to cancelled.
func (r *OfferRepository) MarkCancelled(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, now time.Time) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE offers SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND status = 'open'`), stamp(now), id)
	if err != nil {
		return fmt.Errorf("offer_repo.MarkCancelled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrOfferNotOpen
	}
	return nil
}
