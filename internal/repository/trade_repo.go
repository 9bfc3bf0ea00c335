package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// TradeRepository handles trades and the payment confirmations that gate
// sell-side fills.
type TradeRepository struct {
	db *sqlx.DB
}

// NewTradeRepository creates a new TradeRepository.
func NewTradeRepository(db *sqlx.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

const tradeColumns = `id, offer_id, buyer_id, seller_id, taker_id, amount, unit_price, notional, payment_reference, created_at`

// Insert writes a trade record.
func (r *TradeRepository) Insert(ctx context.Context, tx *sqlx.Tx, t *domain.Trade) error {
	t.CreatedAt = stamp(t.CreatedAt)
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (:id, :offer_id, :buyer_id, :seller_id, :taker_id, :amount, :unit_price, :notional, :payment_reference, :created_at)`, t)
	if err != nil {
		return fmt.Errorf("trade_repo.Insert: %w", err)
	}
	return nil
}

// ListByOffer returns an offer's fills in execution order.
func (r *TradeRepository) ListByOffer(ctx context.Context, offerID uuid.UUID) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	err := r.db.SelectContext(ctx, &trades, r.db.Rebind(`
		SELECT `+tradeColumns+` FROM trades
		WHERE offer_id = ?
		ORDER BY created_at ASC, id ASC`), offerID)
	if err != nil {
		return nil, fmt.Errorf("trade_repo.ListByOffer: %w", err)
	}
	return trades, nil
}

// ListByUser returns trades where the user bought or sold, newest first.
func (r *TradeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	err := r.db.SelectContext(ctx, &trades, r.db.Rebind(`
		SELECT `+tradeColumns+` FROM trades
		WHERE buyer_id = ? OR seller_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`), userID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("trade_repo.ListByUser: %w", err)
	}
	return trades, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Payment confirmations
// ──────────────────────────────────────────────────────────────────────────────

// InsertConfirmation records a payment confirmation from the settlement
// collaborator. References are unique.
func (r *TradeRepository) InsertConfirmation(ctx context.Context, pc *domain.PaymentConfirmation) error {
	pc.ConfirmedAt = stamp(pc.ConfirmedAt)
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO payment_confirmations (reference, offer_id, payer_id, amount, confirmed_by, confirmed_at, trade_id)
		VALUES (:reference, :offer_id, :payer_id, :amount, :confirmed_by, :confirmed_at, :trade_id)`, pc)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentAlreadyRecorded
		}
		return fmt.Errorf("trade_repo.InsertConfirmation: %w", err)
	}
	return nil
}

// ConsumeConfirmation binds an unused confirmation to a trade. It must match
// the offer, the paying taker and the exact amount; otherwise the trade is
// not confirmed.
func (r *TradeRepository) ConsumeConfirmation(ctx context.Context, tx *sqlx.Tx, reference string,
	offerID, payerID uuid.UUID, amount decimal.Decimal, tradeID uuid.UUID) error {
	if reference == "" {
		return domain.ErrPaymentNotConfirmed
	}

	var pc domain.PaymentConfirmation
	err := tx.GetContext(ctx, &pc, tx.Rebind(`
		SELECT reference, offer_id, payer_id, amount, confirmed_by, confirmed_at, trade_id
		FROM payment_confirmations WHERE reference = ?`), reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPaymentNotConfirmed
		}
		return fmt.Errorf("trade_repo.ConsumeConfirmation: %w", err)
	}
	if pc.TradeID != nil || pc.OfferID != offerID || pc.PayerID != payerID || !pc.Amount.Equal(amount) {
		return domain.ErrPaymentNotConfirmed
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE payment_confirmations SET trade_id = ?
		WHERE reference = ? AND trade_id IS NULL`), tradeID, reference)
	if err != nil {
		return fmt.Errorf("trade_repo.ConsumeConfirmation update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPaymentNotConfirmed
	}
	return nil
}

// ListPendingConfirmations returns confirmations not yet used by a trade.
func (r *TradeRepository) ListPendingConfirmations(ctx context.Context, limit, offset int) ([]*domain.PaymentConfirmation, error) {
	var out []*domain.PaymentConfirmation
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT reference, offer_id, payer_id, amount, confirmed_by, confirmed_at, trade_id
		FROM payment_confirmations
		WHERE trade_id IS NULL
		ORDER BY confirmed_at ASC
		LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("trade_repo.ListPendingConfirmations: %w", err)
	}
	return out, nil
}
