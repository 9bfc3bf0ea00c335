package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// LedgerRepository owns the fund_entries table. Every method that moves
// existing funds expects the owner's profile to be locked already
// (ProfileRepository.LockLedger) within the same transaction.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const fundEntryColumns = `id, owner_id, amount, status, origin, parent_id, created_at, updated_at`

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// AvailableBalance sums the owner's available entries in a single read.
func (r *LedgerRepository) AvailableBalance(ctx context.Context, q sqlx.QueryerContext, ownerID uuid.UUID) (decimal.Decimal, error) {
	b, err := r.Balances(ctx, q, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Available, nil
}

// Balances returns available and locked totals from one consistent read.
// Amounts are summed in Go so SQLite's TEXT amounts stay exact.
func (r *LedgerRepository) Balances(ctx context.Context, q sqlx.QueryerContext, ownerID uuid.UUID) (domain.Balances, error) {
	if q == nil {
		q = r.db
	}
	var rows []struct {
		Status domain.FundStatus `db:"status"`
		Amount decimal.Decimal   `db:"amount"`
	}
	err := sqlx.SelectContext(ctx, q, &rows, r.db.Rebind(`
		SELECT status, amount FROM fund_entries
		WHERE owner_id = ? AND status IN ('available', 'locked')`), ownerID)
	if err != nil {
		return domain.Balances{}, fmt.Errorf("ledger_repo.Balances: %w", err)
	}

	b := domain.Balances{Available: decimal.Zero, Locked: decimal.Zero}
	for _, row := range rows {
		if row.Status == domain.FundAvailable {
			b.Available = b.Available.Add(row.Amount)
		} else {
			b.Locked = b.Locked.Add(row.Amount)
		}
	}
	return b, nil
}

// ListEntries returns the owner's entries in the given status, oldest first.
func (r *LedgerRepository) ListEntries(ctx context.Context, ownerID uuid.UUID, status domain.FundStatus) ([]*domain.FundEntry, error) {
	var entries []*domain.FundEntry
	err := r.db.SelectContext(ctx, &entries, r.db.Rebind(`
		SELECT `+fundEntryColumns+` FROM fund_entries
		WHERE owner_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC`), ownerID, status)
	if err != nil {
		return nil, fmt.Errorf("ledger_repo.ListEntries: %w", err)
	}
	return entries, nil
}

// Supply reports platform-wide circulating and minted totals. Minted counts
// root entries created by mining or commission; trade credits only move coins.
func (r *LedgerRepository) Supply(ctx context.Context) (domain.Supply, error) {
	var rows []struct {
		Status   domain.FundStatus `db:"status"`
		Origin   domain.FundOrigin `db:"origin"`
		Amount   decimal.Decimal   `db:"amount"`
		ParentID *uuid.UUID        `db:"parent_id"`
	}
	err := r.db.SelectContext(ctx, &rows, `SELECT status, origin, amount, parent_id FROM fund_entries`)
	if err != nil {
		return domain.Supply{}, fmt.Errorf("ledger_repo.Supply: %w", err)
	}

	s := domain.Supply{Available: decimal.Zero, Locked: decimal.Zero, Minted: decimal.Zero}
	for _, row := range rows {
		switch row.Status {
		case domain.FundAvailable:
			s.Available = s.Available.Add(row.Amount)
		case domain.FundLocked:
			s.Locked = s.Locked.Add(row.Amount)
		}
		if row.ParentID == nil && row.Origin != domain.OriginTrade {
			s.Minted = s.Minted.Add(row.Amount)
		}
	}
	return s, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Writes (transaction-scoped)
// ──────────────────────────────────────────────────────────────────────────────

// Insert writes a new root entry. Amount must be positive.
func (r *LedgerRepository) Insert(ctx context.Context, tx *sqlx.Tx, ownerID uuid.UUID, amount decimal.Decimal,
	origin domain.FundOrigin, status domain.FundStatus, now time.Time) (*domain.FundEntry, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	now = stamp(now)
	e := &domain.FundEntry{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Amount:    amount,
		Status:    status,
		Origin:    origin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.insert(ctx, tx, e); err != nil {
		return nil, fmt.Errorf("ledger_repo.Insert: %w", err)
	}
	return e, nil
}

// Lock moves amount from available to locked, oldest entries first.
func (r *LedgerRepository) Lock(ctx context.Context, tx *sqlx.Tx, ownerID uuid.UUID, amount decimal.Decimal, now time.Time) ([]uuid.UUID, error) {
	return r.transition(ctx, tx, ownerID, amount, domain.FundAvailable, domain.FundLocked, domain.ErrInsufficientBalance, now)
}

// Unlock moves amount from locked back to available, oldest entries first.
func (r *LedgerRepository) Unlock(ctx context.Context, tx *sqlx.Tx, ownerID uuid.UUID, amount decimal.Decimal, now time.Time) ([]uuid.UUID, error) {
	return r.transition(ctx, tx, ownerID, amount, domain.FundLocked, domain.FundAvailable, domain.ErrInsufficientLockedBalance, now)
}

// ConsumeLocked marks amount of locked funds spent. The counterparty credit
// is the caller's job.
func (r *LedgerRepository) ConsumeLocked(ctx context.Context, tx *sqlx.Tx, ownerID uuid.UUID, amount decimal.Decimal, now time.Time) ([]uuid.UUID, error) {
	return r.transition(ctx, tx, ownerID, amount, domain.FundLocked, domain.FundSpent, domain.ErrInsufficientLockedBalance, now)
}

// transition moves exactly amount of the owner's funds from one status to
// another. Entries are taken oldest-first; the last one is split when it is
// larger than what is still needed. Returns the ids now in status `to`.
func (r *LedgerRepository) transition(ctx context.Context, tx *sqlx.Tx, ownerID uuid.UUID, amount decimal.Decimal,
	from, to domain.FundStatus, shortfall error, now time.Time) ([]uuid.UUID, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	now = stamp(now)

	picked, err := r.pick(ctx, tx, ownerID, from, amount)
	if err != nil {
		return nil, err
	}

	var (
		moved     []uuid.UUID
		remaining = amount
	)
	for _, e := range picked {
		if e.Amount.LessThanOrEqual(remaining) {
			if err := r.setStatus(ctx, tx, e.ID, from, to, now); err != nil {
				return nil, err
			}
			moved = append(moved, e.ID)
			remaining = remaining.Sub(e.Amount)
			continue
		}

		// Split: parent is retired, children inherit origin and age.
		if err := r.setStatus(ctx, tx, e.ID, from, domain.FundSpent, now); err != nil {
			return nil, err
		}
		part := r.child(e, remaining, to, now)
		rest := r.child(e, e.Amount.Sub(remaining), from, now)
		for _, c := range []*domain.FundEntry{part, rest} {
			if err := r.insert(ctx, tx, c); err != nil {
				return nil, fmt.Errorf("ledger_repo.transition split: %w", err)
			}
		}
		moved = append(moved, part.ID)
		remaining = decimal.Zero
	}

	if remaining.IsPositive() {
		return nil, shortfall
	}
	return moved, nil
}

// pick streams the owner's entries in status oldest-first and stops as soon
// as they cover amount. A short total is detected by the caller.
func (r *LedgerRepository) pick(ctx context.Context, tx *sqlx.Tx, ownerID uuid.UUID, status domain.FundStatus, amount decimal.Decimal) ([]*domain.FundEntry, error) {
	rows, err := tx.QueryxContext(ctx, tx.Rebind(`
		SELECT `+fundEntryColumns+` FROM fund_entries
		WHERE owner_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC`), ownerID, status)
	if err != nil {
		return nil, fmt.Errorf("ledger_repo.pick: %w", err)
	}
	defer rows.Close()

	var (
		picked  []*domain.FundEntry
		covered = decimal.Zero
	)
	for covered.LessThan(amount) && rows.Next() {
		var e domain.FundEntry
		if err := rows.StructScan(&e); err != nil {
			return nil, fmt.Errorf("ledger_repo.pick scan: %w", err)
		}
		picked = append(picked, &e)
		covered = covered.Add(e.Amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger_repo.pick rows: %w", err)
	}
	return picked, nil
}

func (r *LedgerRepository) child(parent *domain.FundEntry, amount decimal.Decimal, status domain.FundStatus, now time.Time) *domain.FundEntry {
	pid := parent.ID
	return &domain.FundEntry{
		ID:        uuid.New(),
		OwnerID:   parent.OwnerID,
		Amount:    amount,
		Status:    status,
		Origin:    parent.Origin,
		ParentID:  &pid,
		CreatedAt: parent.CreatedAt,
		UpdatedAt: now,
	}
}

// setStatus is a compare-and-set on the entry's status. A miss means someone
// moved the entry without holding the owner's lock.
func (r *LedgerRepository) setStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to domain.FundStatus, now time.Time) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE fund_entries SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`), to, now, id, from)
	if err != nil {
		return fmt.Errorf("ledger_repo.setStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ledger_repo.setStatus: entry %s no longer %s: %w", id, from, domain.ErrInvalidState)
	}
	return nil
}

func (r *LedgerRepository) insert(ctx context.Context, tx *sqlx.Tx, e *domain.FundEntry) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO fund_entries (`+fundEntryColumns+`)
		VALUES (:id, :owner_id, :amount, :status, :origin, :parent_id, :created_at, :updated_at)`, e)
	return err
}
