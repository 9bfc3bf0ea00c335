package service

import (
	"context"
	"fmt"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// LedgerService exposes the fund ledger: balances, raw credits and the
// lock/unlock primitives the escrow manager builds on.
type LedgerService struct {
	db       *sqlx.DB
	ledger   *repository.LedgerRepository
	profiles *repository.ProfileRepository
	txns     *repository.TransactionRepository
	now      Clock
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(
	db *sqlx.DB,
	ledger *repository.LedgerRepository,
	profiles *repository.ProfileRepository,
	txns *repository.TransactionRepository,
) *LedgerService {
	return &LedgerService{
		db:       db,
		ledger:   ledger,
		profiles: profiles,
		txns:     txns,
		now:      systemClock,
	}
}

// SetClock replaces the time source.
func (s *LedgerService) SetClock(c Clock) { s.now = c }

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// GetAvailableBalance returns the sum of the user's available entries.
func (s *LedgerService) GetAvailableBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return s.ledger.AvailableBalance(ctx, nil, userID)
}

// Balances returns available and locked totals.
func (s *LedgerService) Balances(ctx context.Context, userID uuid.UUID) (domain.Balances, error) {
	return s.ledger.Balances(ctx, nil, userID)
}

// Entries lists the user's entries in one status.
func (s *LedgerService) Entries(ctx context.Context, userID uuid.UUID, status domain.FundStatus) ([]*domain.FundEntry, error) {
	return s.ledger.ListEntries(ctx, userID, status)
}

// Transactions returns a page of the user's history, newest first.
func (s *LedgerService) Transactions(ctx context.Context, userID uuid.UUID, page, limit int) ([]*domain.Transaction, error) {
	l, off := pageBounds(page, limit)
	return s.txns.ListByActor(ctx, userID, l, off)
}

// AllTransactions returns the platform-wide log, optionally filtered by kind.
func (s *LedgerService) AllTransactions(ctx context.Context, kind domain.TxKind, page, limit int) ([]*domain.Transaction, error) {
	l, off := pageBounds(page, limit)
	return s.txns.List(ctx, kind, l, off)
}

// Supply reports the platform totals used for reconciliation.
func (s *LedgerService) Supply(ctx context.Context) (domain.Supply, error) {
	return s.ledger.Supply(ctx)
}

// ──────────────────────────────────────────────────────────────────────────────
// Writes
// ──────────────────────────────────────────────────────────────────────────────

// Credit inserts a new entry for the user and returns its id.
func (s *LedgerService) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal,
	origin domain.FundOrigin, status domain.FundStatus) (uuid.UUID, error) {
	if !amount.IsPositive() {
		return uuid.Nil, domain.ErrInvalidAmount
	}
	if !origin.Valid() {
		return uuid.Nil, domain.NewValidationError("origin", "oneof", "unknown fund origin %q", origin)
	}

	var id uuid.UUID
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.profiles.LockLedger(ctx, tx, userID); err != nil {
			return err
		}
		e, err := s.ledger.Insert(ctx, tx, userID, amount, origin, status, s.now())
		if err != nil {
			return err
		}
		id = e.ID
		return nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("ledger_service.Credit: %w", err)
	}
	return id, nil
}

// Lock moves amount of the user's available funds to locked.
func (s *LedgerService) Lock(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.profiles.LockLedger(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		ids, err = s.ledger.Lock(ctx, tx, userID, amount, s.now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger_service.Lock: %w", err)
	}
	return ids, nil
}

// Unlock moves amount of the user's locked funds back to available.
func (s *LedgerService) Unlock(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.profiles.LockLedger(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		ids, err = s.ledger.Unlock(ctx, tx, userID, amount, s.now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger_service.Unlock: %w", err)
	}
	return ids, nil
}
