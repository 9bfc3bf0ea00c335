package service_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/google/uuid"
)

func TestClaim_IdleThenCooling(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "")

	st, err := h.claims.Status(ctx, u.UserID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.CanClaim || st.State != domain.ClaimIdle {
		t.Fatalf("new user status = %+v, want idle", st)
	}

	res, err := h.claims.Claim(ctx, u.UserID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !res.Amount.Equal(dec("0.73")) {
		t.Errorf("amount = %s, want 0.73", res.Amount)
	}
	if want := h.clock.Now().Add(3 * time.Hour); !res.NextClaimAt.Equal(want) {
		t.Errorf("next_claim_at = %s, want %s", res.NextClaimAt, want)
	}

	h.clock.Advance(time.Hour)
	_, err = h.claims.Claim(ctx, u.UserID)
	var nr *domain.ClaimNotReadyError
	if !errors.As(err, &nr) {
		t.Fatalf("second claim err = %v, want ClaimNotReadyError", err)
	}
	if nr.Remaining != 2*time.Hour {
		t.Errorf("remaining = %s, want 2h", nr.Remaining)
	}
	if !errors.Is(err, domain.ErrClaimNotReady) {
		t.Error("ClaimNotReadyError should match ErrClaimNotReady")
	}

	st, _ = h.claims.Status(ctx, u.UserID)
	if st.CanClaim || st.TimeRemaining != (2*time.Hour).Milliseconds() {
		t.Errorf("cooling status = %+v", st)
	}

	// Exactly at next_claim_at the user is idle again.
	h.clock.Advance(2 * time.Hour)
	if _, err := h.claims.Claim(ctx, u.UserID); err != nil {
		t.Fatalf("claim after cooldown: %v", err)
	}
	if b := h.balances(t, u.UserID); !b.Available.Equal(dec("1.46")) {
		t.Errorf("available = %s, want 1.46", b.Available)
	}
	h.assertSupply(t)
}

// N concurrent claims by one user yield exactly one credit.
func TestClaim_ConcurrentExactlyOnce(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "")

	const workers = 16
	var (
		wg       sync.WaitGroup
		granted  int64
		rejected int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.claims.Claim(ctx, u.UserID)
			switch {
			case err == nil:
				atomic.AddInt64(&granted, 1)
			case errors.Is(err, domain.ErrClaimNotReady):
				atomic.AddInt64(&rejected, 1)
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	if granted != 1 || rejected != workers-1 {
		t.Fatalf("granted=%d rejected=%d, want 1/%d", granted, rejected, workers-1)
	}
	if b := h.balances(t, u.UserID); !b.Available.Equal(dec("0.73")) {
		t.Errorf("available = %s, want 0.73", b.Available)
	}
}

func TestClaim_UnknownUser(t *testing.T) {
	h := newHarness(t)
	if _, err := h.claims.Status(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Status err = %v, want not found", err)
	}
}

func TestClaim_PaysReferrerCommission(t *testing.T) {
	h := newHarness(t)
	ref := h.user(t, "")
	u := h.user(t, ref.ReferralCode)

	if _, err := h.claims.Claim(ctx, u.UserID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	// 0.73 × 0.015 = 0.01095
	if b := h.balances(t, ref.UserID); !b.Available.Equal(dec("0.01095")) {
		t.Errorf("referrer available = %s, want 0.01095", b.Available)
	}
	sum, err := h.commission.Summary(ctx, ref.UserID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !sum.TotalClaimCommission.Equal(dec("0.01095")) || sum.ReferralCount != 1 {
		t.Errorf("summary = %+v", sum)
	}
	h.assertSupply(t)

	got := h.events.types()
	if len(got) != 2 || got[0] != domain.EventCommissionAccrued || got[1] != domain.EventClaimGranted {
		t.Errorf("events = %v, want [commission.accrued claim.granted]", got)
	}
}
