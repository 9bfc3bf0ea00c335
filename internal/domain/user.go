package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// UserRole
// ──────────────────────────────────────────────────────────────────────────────

// UserRole is carried in session tokens and gates the back-office.
type UserRole string

const (
	RoleUser       UserRole = "user"       // standard trader
	RoleAdmin      UserRole = "admin"      // full back-office access
	RoleFinance    UserRole = "finance"    // supply reports, transaction log
	RoleSettlement UserRole = "settlement" // payment confirmations
	RoleSignup     UserRole = "signup"     // profile onboarding
)

// CanAccessBackoffice reports whether r is one of the back-office roles.
func (r UserRole) CanAccessBackoffice() bool {
	switch r {
	case RoleAdmin, RoleFinance, RoleSettlement, RoleSignup:
		return true
	}
	return false
}

// ──────────────────────────────────────────────────────────────────────────────
// UserProfile
// ──────────────────────────────────────────────────────────────────────────────

// UserProfile is the per-user state owned by this service.
// Authentication data lives with the session provider.
type UserProfile struct {
	UserID        uuid.UUID       `json:"user_id"        db:"user_id"`
	LastClaimAt   *time.Time      `json:"last_claim_at"  db:"last_claim_at"`
	NextClaimAt   *time.Time      `json:"next_claim_at"  db:"next_claim_at"`
	ClaimVersion  int64           `json:"-"              db:"claim_version"`
	LedgerVersion int64           `json:"-"              db:"ledger_version"`
	Rating        decimal.Decimal `json:"rating"         db:"rating"`
	TotalTrades   int64           `json:"total_trades"   db:"total_trades"`
	ReferralCode  string          `json:"referral_code"  db:"referral_code"`
	ReferredBy    *uuid.UUID      `json:"referred_by"    db:"referred_by"`
	CreatedAt     time.Time       `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"     db:"updated_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Claim state
// ──────────────────────────────────────────────────────────────────────────────

// ClaimState is derived, never stored.
type ClaimState string

const (
	ClaimIdle    ClaimState = "idle"    // claimable now
	ClaimCooling ClaimState = "cooling" // waiting for next_claim_at
)

// ClaimStatus is the read model returned to callers.
type ClaimStatus struct {
	State         ClaimState `json:"state"`
	CanClaim      bool       `json:"can_claim"`
	TimeRemaining int64      `json:"time_remaining_ms"`
	LastClaimAt   *time.Time `json:"last_claim_at"`
	NextClaimAt   *time.Time `json:"next_claim_at"`
}

// ClaimStatusAt derives the claim state of p at now. A nil next_claim_at
// (never claimed) is claimable.
func (p *UserProfile) ClaimStatusAt(now time.Time) ClaimStatus {
	st := ClaimStatus{
		State:       ClaimIdle,
		CanClaim:    true,
		LastClaimAt: p.LastClaimAt,
		NextClaimAt: p.NextClaimAt,
	}
	if p.NextClaimAt != nil && now.Before(*p.NextClaimAt) {
		st.State = ClaimCooling
		st.CanClaim = false
		st.TimeRemaining = p.NextClaimAt.Sub(now).Milliseconds()
	}
	return st
}

// ClaimResult is returned by a successful claim.
type ClaimResult struct {
	EntryID     uuid.UUID       `json:"entry_id"`
	Amount      decimal.Decimal `json:"amount"`
	ClaimedAt   time.Time       `json:"claimed_at"`
	NextClaimAt time.Time       `json:"next_claim_at"`
}
