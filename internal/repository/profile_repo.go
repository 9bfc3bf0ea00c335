package repository

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ProfileRepository handles all database operations for user profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `user_id, last_claim_at, next_claim_at, claim_version, ledger_version,
	rating, total_trades, referral_code, referred_by, created_at, updated_at`

// Create inserts a new profile. Returns ErrProfileExists or
// ErrReferralCodeTaken on conflicts.
func (r *ProfileRepository) Create(ctx context.Context, tx *sqlx.Tx, p *domain.UserProfile) error {
	if _, err := r.GetByID(ctx, tx, p.UserID); err == nil {
		return domain.ErrProfileExists
	} else if !errors.Is(err, domain.ErrProfileNotFound) {
		return err
	}

	p.CreatedAt = stamp(p.CreatedAt)
	p.UpdatedAt = stamp(p.UpdatedAt)
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO user_profiles (`+profileColumns+`)
		VALUES (:user_id, :last_claim_at, :next_claim_at, :claim_version, :ledger_version,
			:rating, :total_trades, :referral_code, :referred_by, :created_at, :updated_at)`, p)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReferralCodeTaken
		}
		return fmt.Errorf("profile_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a profile. q may be a transaction or nil for the pool.
func (r *ProfileRepository) GetByID(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID) (*domain.UserProfile, error) {
	if q == nil {
		q = r.db
	}
	var p domain.UserProfile
	err := sqlx.GetContext(ctx, q, &p, r.db.Rebind(
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("profile_repo.GetByID: %w", err)
	}
	return &p, nil
}

// GetByReferralCode resolves a referral code to its owner.
func (r *ProfileRepository) GetByReferralCode(ctx context.Context, q sqlx.QueryerContext, code string) (*domain.UserProfile, error) {
	if q == nil {
		q = r.db
	}
	var p domain.UserProfile
	err := sqlx.GetContext(ctx, q, &p, r.db.Rebind(
		`SELECT `+profileColumns+` FROM user_profiles WHERE referral_code = ?`), code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReferralCodeUnknown
		}
		return nil, fmt.Errorf("profile_repo.GetByReferralCode: %w", err)
	}
	return &p, nil
}

// List returns profiles newest first (back-office).
func (r *ProfileRepository) List(ctx context.Context, limit, offset int) ([]*domain.UserProfile, error) {
	var out []*domain.UserProfile
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT `+profileColumns+` FROM user_profiles
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("profile_repo.List: %w", err)
	}
	return out, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Locking
// ──────────────────────────────────────────────────────────────────────────────

// LockLedger takes the per-user ledger lock for the rest of tx. Every
// transaction that moves a user's existing funds must hold it before reading
// their entries.
func (r *ProfileRepository) LockLedger(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	ok, err := bump(ctx, tx, `UPDATE user_profiles SET ledger_version = ledger_version + 1 WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("profile_repo.LockLedger: %w", err)
	}
	if !ok {
		return domain.ErrProfileNotFound
	}
	return nil
}

// LockLedgers locks several users in ascending id order so two transactions
// touching the same pair can never deadlock.
func (r *ProfileRepository) LockLedgers(ctx context.Context, tx *sqlx.Tx, userIDs ...uuid.UUID) error {
	ids := append([]uuid.UUID(nil), userIDs...)
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		if err := r.LockLedger(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Claims & counters
// ──────────────────────────────────────────────────────────────────────────────

// RecordClaim advances the claim gate only if nobody else has since the
// profile was read at expectVersion. A miss returns ErrClaimNotReady.
func (r *ProfileRepository) RecordClaim(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, expectVersion int64, claimedAt, nextAt time.Time) error {
	claimedAt, nextAt = stamp(claimedAt), stamp(nextAt)
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE user_profiles
		SET last_claim_at = ?,
		    next_claim_at = ?,
		    claim_version = claim_version + 1,
		    updated_at    = ?
		WHERE user_id = ? AND claim_version = ?`),
		claimedAt, nextAt, claimedAt, userID, expectVersion)
	if err != nil {
		return fmt.Errorf("profile_repo.RecordClaim: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrClaimNotReady
	}
	return nil
}

// IncrementTrades bumps total_trades for every given user.
func (r *ProfileRepository) IncrementTrades(ctx context.Context, tx *sqlx.Tx, now time.Time, userIDs ...uuid.UUID) error {
	for _, id := range userIDs {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE user_profiles SET total_trades = total_trades + 1, updated_at = ?
			WHERE user_id = ?`), stamp(now), id); err != nil {
			return fmt.Errorf("profile_repo.IncrementTrades: %w", err)
		}
	}
	return nil
}
