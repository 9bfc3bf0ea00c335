package service

import (
	"context"
	"fmt"
	"time"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// EscrowManager moves funds behind sell offers. Every method runs inside the
// caller's transaction; the caller holds the ledger locks of every user it
// touches, taken after Acquire so lock order stays offer, escrow, profiles.
type EscrowManager struct {
	ledger  *repository.LedgerRepository
	escrows *repository.EscrowRepository
}

// NewEscrowManager creates an EscrowManager.
func NewEscrowManager(ledger *repository.LedgerRepository, escrows *repository.EscrowRepository) *EscrowManager {
	return &EscrowManager{ledger: ledger, escrows: escrows}
}

// OpenSellEscrow locks amount of the owner's available funds and records the
// escrow that backs offerID.
func (m *EscrowManager) OpenSellEscrow(ctx context.Context, tx *sqlx.Tx, ownerID, offerID uuid.UUID,
	amount decimal.Decimal, now time.Time) (*domain.Escrow, error) {
	if _, err := m.ledger.Lock(ctx, tx, ownerID, amount, now); err != nil {
		return nil, err
	}
	e := &domain.Escrow{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		OfferID:     offerID,
		Amount:      amount,
		Outstanding: amount,
		Status:      domain.EscrowOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.escrows.Insert(ctx, tx, e); err != nil {
		return nil, fmt.Errorf("escrow.OpenSellEscrow: %w", err)
	}
	return e, nil
}

// Acquire takes the escrow row lock and returns the escrow.
func (m *EscrowManager) Acquire(ctx context.Context, tx *sqlx.Tx, escrowID uuid.UUID) (*domain.Escrow, error) {
	return m.escrows.LockAndGet(ctx, tx, escrowID)
}

// Release returns amount of the escrow's locked funds to the owner.
func (m *EscrowManager) Release(ctx context.Context, tx *sqlx.Tx, e *domain.Escrow, amount decimal.Decimal, now time.Time) error {
	if err := m.draw(e, amount); err != nil {
		return err
	}
	if _, err := m.ledger.Unlock(ctx, tx, e.OwnerID, amount, now); err != nil {
		return err
	}
	return m.commit(ctx, tx, e, amount, now)
}

// Settle spends amount of the escrow's locked funds and credits the buyer.
// The escrow closes when nothing is outstanding.
func (m *EscrowManager) Settle(ctx context.Context, tx *sqlx.Tx, e *domain.Escrow, amount decimal.Decimal,
	buyerID uuid.UUID, now time.Time) error {
	if err := m.draw(e, amount); err != nil {
		return err
	}
	if _, err := m.ledger.ConsumeLocked(ctx, tx, e.OwnerID, amount, now); err != nil {
		return err
	}
	if _, err := m.ledger.Insert(ctx, tx, buyerID, amount, domain.OriginTrade, domain.FundAvailable, now); err != nil {
		return err
	}
	return m.commit(ctx, tx, e, amount, now)
}

// SettleFromAvailable delivers amount straight from the seller's available
// funds to the buyer. Used by buy-offer fills, which have no escrow.
func (m *EscrowManager) SettleFromAvailable(ctx context.Context, tx *sqlx.Tx, sellerID, buyerID uuid.UUID,
	amount decimal.Decimal, now time.Time) error {
	if _, err := m.ledger.Lock(ctx, tx, sellerID, amount, now); err != nil {
		return err
	}
	if _, err := m.ledger.ConsumeLocked(ctx, tx, sellerID, amount, now); err != nil {
		return err
	}
	_, err := m.ledger.Insert(ctx, tx, buyerID, amount, domain.OriginTrade, domain.FundAvailable, now)
	return err
}

// draw checks that amount can come out of e.
func (m *EscrowManager) draw(e *domain.Escrow, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if e.Status != domain.EscrowOpen {
		return domain.ErrEscrowClosed
	}
	if amount.GreaterThan(e.Outstanding) {
		return domain.ErrInsufficientLockedBalance
	}
	return nil
}

func (m *EscrowManager) commit(ctx context.Context, tx *sqlx.Tx, e *domain.Escrow, amount decimal.Decimal, now time.Time) error {
	e.Outstanding = e.Outstanding.Sub(amount)
	if e.Outstanding.IsZero() {
		e.Status = domain.EscrowClosed
	}
	e.UpdatedAt = now
	return m.escrows.SetOutstanding(ctx, tx, e.ID, e.Outstanding, e.Status, now)
}
