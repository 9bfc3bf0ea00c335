package repository

import (
	"context"
	"fmt"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TransactionRepository appends to and reads the user-facing transaction log.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, actor_id, kind, amount, counterparty_offer_id, description, created_at`

// Log inserts one or more audit records inside a transaction.
func (r *TransactionRepository) Log(ctx context.Context, tx *sqlx.Tx, txns ...*domain.Transaction) error {
	for _, t := range txns {
		t.CreatedAt = stamp(t.CreatedAt)
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO ledger_transactions (`+transactionColumns+`)
			VALUES (:id, :actor_id, :kind, :amount, :counterparty_offer_id, :description, :created_at)`, t); err != nil {
			return fmt.Errorf("transaction_repo.Log: %w", err)
		}
	}
	return nil
}

// ListByActor returns a user's history, newest first.
func (r *TransactionRepository) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := r.db.SelectContext(ctx, &txns, r.db.Rebind(`
		SELECT `+transactionColumns+` FROM ledger_transactions
		WHERE actor_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`), actorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("transaction_repo.ListByActor: %w", err)
	}
	return txns, nil
}

// List returns the platform-wide log filtered by kind ("" = all).
func (r *TransactionRepository) List(ctx context.Context, kind domain.TxKind, limit, offset int) ([]*domain.Transaction, error) {
	var (
		txns []*domain.Transaction
		err  error
	)
	if kind != "" {
		err = r.db.SelectContext(ctx, &txns, r.db.Rebind(`
			SELECT `+transactionColumns+` FROM ledger_transactions
			WHERE kind = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ? OFFSET ?`), kind, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &txns, r.db.Rebind(`
			SELECT `+transactionColumns+` FROM ledger_transactions
			ORDER BY created_at DESC, id DESC
			LIMIT ? OFFSET ?`), limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("transaction_repo.List: %w", err)
	}
	return txns, nil
}
