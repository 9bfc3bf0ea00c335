package domain

import (
	"errors"
	"fmt"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors, compared with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Generic failure kinds. Entity-specific errors below wrap one of these so
// handlers can classify any error with a single errors.Is check.
var (
	// ErrUnauthenticated is returned when no caller identity is available.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrValidation is the parent of every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is the parent of every "entity not found" error.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState is returned when an entity is not in a state that allows
	// the requested transition (e.g. cancelling a filled offer).
	ErrInvalidState = errors.New("invalid state")
)

// Ledger errors
var (
	// ErrInsufficientBalance is returned when the available balance cannot
	// cover a lock.
	ErrInsufficientBalance = errors.New("insufficient available balance")

	// ErrInsufficientLockedBalance is returned when an unlock, release or
	// settle exceeds what is locked. Seeing it means an accounting bug.
	ErrInsufficientLockedBalance = errors.New("insufficient locked balance")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Claim errors
var (
	// ErrClaimNotReady is returned while the claim cooldown is running.
	// The concrete error is *ClaimNotReadyError.
	ErrClaimNotReady = errors.New("claim is not ready")
)

// Offer errors
var (
	// ErrOfferNotFound is returned when no offer matches the given id.
	ErrOfferNotFound = fmt.Errorf("offer %w", ErrNotFound)

	// ErrOfferNotOpen is returned on cancel or match of a filled/cancelled offer.
	ErrOfferNotOpen = fmt.Errorf("offer is not open: %w", ErrInvalidState)

	// ErrNotOfferOwner is returned when someone other than the owner cancels.
	ErrNotOfferOwner = fmt.Errorf("only the offer owner may do this: %w", ErrForbidden)

	// ErrSelfTrade is returned when the taker owns the offer.
	ErrSelfTrade = fmt.Errorf("cannot trade against your own offer: %w", ErrForbidden)

	// ErrAmountOutOfBounds is returned when a trade amount is outside the
	// offer's per-trade limits or exceeds what remains.
	ErrAmountOutOfBounds = errors.New("trade amount out of bounds")

	// ErrPaymentNotConfirmed is returned when a sell-side trade has no unused
	// payment confirmation matching it.
	ErrPaymentNotConfirmed = errors.New("payment has not been confirmed")

	// ErrPaymentAlreadyRecorded is returned when a confirmation reference is reused.
	ErrPaymentAlreadyRecorded = errors.New("payment confirmation already recorded")
)

// Escrow errors
var (
	// ErrEscrowNotFound is returned when no escrow matches the given id.
	ErrEscrowNotFound = fmt.Errorf("escrow %w", ErrNotFound)

	// ErrEscrowClosed is returned on release/settle of a closed escrow.
	ErrEscrowClosed = fmt.Errorf("escrow is closed: %w", ErrInvalidState)
)

// Profile / referral errors
var (
	// ErrProfileNotFound is returned when the user has no profile row.
	ErrProfileNotFound = fmt.Errorf("profile %w", ErrNotFound)

	// ErrProfileExists is returned when onboarding a user twice.
	ErrProfileExists = errors.New("profile already exists")

	// ErrReferralCodeTaken is returned when a referral code is already in use.
	ErrReferralCodeTaken = errors.New("referral code is already taken")

	// ErrReferralCodeUnknown is returned when the referrer code matches nobody.
	ErrReferralCodeUnknown = fmt.Errorf("referral code %w", ErrNotFound)

	// ErrReferralEdgeNotFound is returned when commission targets a missing edge.
	ErrReferralEdgeNotFound = fmt.Errorf("referral edge %w", ErrNotFound)
)

// Auth errors
var (
	// ErrTokenInvalid is returned when a token cannot be parsed or its
	// signature does not match.
	ErrTokenInvalid = fmt.Errorf("token is invalid: %w", ErrUnauthenticated)
)

// ──────────────────────────────────────────────────────────────────────────────
// Typed errors
// ──────────────────────────────────────────────────────────────────────────────

// ValidationError names the offending field and the rule it broke.
type ValidationError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s (%s): %s", e.Field, e.Rule, e.Message)
}

// Is makes errors.Is(err, ErrValidation) true for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError is shorthand for &ValidationError{...}.
func NewValidationError(field, rule, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// ClaimNotReadyError carries the remaining cooldown.
type ClaimNotReadyError struct {
	Remaining   time.Duration
	NextClaimAt time.Time
}

func (e *ClaimNotReadyError) Error() string {
	return fmt.Sprintf("claim is not ready: %s remaining", e.Remaining.Round(time.Second))
}

// Is makes errors.Is(err, ErrClaimNotReady) true.
func (e *ClaimNotReadyError) Is(target error) bool {
	return target == ErrClaimNotReady
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// IsNotFound returns true when err (or any error in its chain) is a
// "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for errors that represent a state conflict.
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrInvalidState,
		ErrProfileExists,
		ErrReferralCodeTaken,
		ErrPaymentAlreadyRecorded,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrForbidden)
}

// IsValidation returns true for input validation failures.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
