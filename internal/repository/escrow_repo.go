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

// EscrowRepository handles the escrows table.
type EscrowRepository struct {
	db *sqlx.DB
}

// NewEscrowRepository creates a new EscrowRepository.
func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

const escrowColumns = `id, owner_id, offer_id, amount, outstanding, status, version, created_at, updated_at`

// Insert writes a new escrow row.
func (r *EscrowRepository) Insert(ctx context.Context, tx *sqlx.Tx, e *domain.Escrow) error {
	e.CreatedAt = stamp(e.CreatedAt)
	e.UpdatedAt = stamp(e.UpdatedAt)
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO escrows (`+escrowColumns+`)
		VALUES (:id, :owner_id, :offer_id, :amount, :outstanding, :status, :version, :created_at, :updated_at)`, e)
	if err != nil {
		return fmt.Errorf("escrow_repo.Insert: %w", err)
	}
	return nil
}

// LockAndGet takes the escrow row lock, then reads it.
func (r *EscrowRepository) LockAndGet(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Escrow, error) {
	ok, err := bump(ctx, tx, `UPDATE escrows SET version = version + 1 WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("escrow_repo.LockAndGet: %w", err)
	}
	if !ok {
		return nil, domain.ErrEscrowNotFound
	}
	return r.GetByID(ctx, tx, id)
}

// GetByID fetches an escrow. q may be a transaction or nil for the pool.
func (r *EscrowRepository) GetByID(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*domain.Escrow, error) {
	if q == nil {
		q = r.db
	}
	var e domain.Escrow
	err := sqlx.GetContext(ctx, q, &e, r.db.Rebind(`SELECT `+escrowColumns+` FROM escrows WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEscrowNotFound
		}
		return nil, fmt.Errorf("escrow_repo.GetByID: %w", err)
	}
	return &e, nil
}

// SetOutstanding stores the new outstanding amount and status.
func (r *EscrowRepository) SetOutstanding(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, outstanding decimal.Decimal, status domain.EscrowStatus, now time.Time) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE escrows SET outstanding = ?, status = ?, updated_at = ?
		WHERE id = ?`), outstanding, status, stamp(now), id)
	if err != nil {
		return fmt.Errorf("escrow_repo.SetOutstanding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrEscrowNotFound
	}
	return nil
}
