package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/afrix/afxledger/internal/domain"
)

func TestClaimStatusAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := now.Add(90 * time.Minute)
	last := now.Add(-90 * time.Minute)

	never := &domain.UserProfile{}
	if st := never.ClaimStatusAt(now); !st.CanClaim || st.State != domain.ClaimIdle {
		t.Errorf("profile that never claimed should be idle, got %+v", st)
	}

	cooling := &domain.UserProfile{LastClaimAt: &last, NextClaimAt: &next}
	st := cooling.ClaimStatusAt(now)
	if st.CanClaim || st.State != domain.ClaimCooling {
		t.Fatalf("expected cooling, got %+v", st)
	}
	if st.TimeRemaining != (90 * time.Minute).Milliseconds() {
		t.Errorf("time remaining = %dms, want %dms", st.TimeRemaining, (90 * time.Minute).Milliseconds())
	}

	// Exactly at next_claim_at the gate is open.
	if st := cooling.ClaimStatusAt(next); !st.CanClaim {
		t.Errorf("claim should open exactly at next_claim_at")
	}
}

func TestClaimNotReadyError_Is(t *testing.T) {
	err := error(&domain.ClaimNotReadyError{Remaining: time.Hour})
	if !errors.Is(err, domain.ErrClaimNotReady) {
		t.Error("ClaimNotReadyError should match ErrClaimNotReady")
	}
	if errors.Is(err, domain.ErrValidation) {
		t.Error("ClaimNotReadyError must not match ErrValidation")
	}
}

func TestErrorPredicates(t *testing.T) {
	if !domain.IsNotFound(domain.ErrOfferNotFound) {
		t.Error("ErrOfferNotFound should be a not-found error")
	}
	if !domain.IsAuthError(domain.ErrSelfTrade) {
		t.Error("ErrSelfTrade should classify as forbidden")
	}
	if !domain.IsConflict(domain.ErrOfferNotOpen) {
		t.Error("ErrOfferNotOpen should classify as a conflict")
	}
	if !domain.IsAuthError(domain.ErrTokenInvalid) {
		t.Error("ErrTokenInvalid should classify as unauthenticated")
	}
}

func TestUserRole_CanAccessBackoffice(t *testing.T) {
	for role, want := range map[domain.UserRole]bool{
		domain.RoleAdmin:      true,
		domain.RoleFinance:    true,
		domain.RoleSettlement: true,
		domain.RoleSignup:     true,
		domain.RoleUser:       false,
		"":                    false,
		"superuser":           false,
	} {
		if got := role.CanAccessBackoffice(); got != want {
			t.Errorf("%q.CanAccessBackoffice() = %v, want %v", role, got, want)
		}
	}
}
