package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/google/uuid"
)

func TestLedger_CreditRejectsNonPositive(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "")

	for _, amt := range []string{"0", "-1"} {
		_, err := h.ledger.Credit(ctx, u.UserID, dec(amt), domain.OriginMining, domain.FundAvailable)
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("Credit(%s) err = %v, want ErrInvalidAmount", amt, err)
		}
	}
}

func TestLedger_CreditUnknownUser(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Credit(ctx, uuid.New(), dec("1"), domain.OriginMining, domain.FundAvailable)
	if !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
}

// Lock then Unlock of the same amount restores the available balance.
func TestLedger_LockUnlockRoundTrip(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "")
	h.fund(t, u.UserID, "10")
	h.clock.Advance(time.Millisecond)
	h.fund(t, u.UserID, "7.5")

	if _, err := h.ledger.Lock(ctx, u.UserID, dec("12.25")); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	b := h.balances(t, u.UserID)
	if !b.Available.Equal(dec("5.25")) || !b.Locked.Equal(dec("12.25")) {
		t.Fatalf("after lock: available %s locked %s, want 5.25 / 12.25", b.Available, b.Locked)
	}

	if _, err := h.ledger.Unlock(ctx, u.UserID, dec("12.25")); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	b = h.balances(t, u.UserID)
	if !b.Available.Equal(dec("17.5")) || !b.Locked.IsZero() {
		t.Fatalf("after unlock: available %s locked %s, want 17.5 / 0", b.Available, b.Locked)
	}
	h.assertSupply(t)
}

// The oldest entry is locked first; a partial lock splits the last entry.
func TestLedger_LockOldestFirstWithSplit(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "")
	h.fund(t, u.UserID, "3")
	h.clock.Advance(time.Millisecond)
	h.fund(t, u.UserID, "5")

	ids, err := h.ledger.Lock(ctx, u.UserID, dec("4"))
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("locked %d entries, want 2 (whole oldest + split part)", len(ids))
	}

	locked, err := h.ledger.Entries(ctx, u.UserID, domain.FundLocked)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(locked) != 2 || !locked[0].Amount.Equal(dec("3")) || !locked[1].Amount.Equal(dec("1")) {
		t.Fatalf("locked entries = %+v, want [3, 1]", locked)
	}
	if locked[1].ParentID == nil {
		t.Error("split child should reference its parent")
	}

	avail, _ := h.ledger.Entries(ctx, u.UserID, domain.FundAvailable)
	if len(avail) != 1 || !avail[0].Amount.Equal(dec("4")) {
		t.Fatalf("available entries = %+v, want [4]", avail)
	}
	h.assertSupply(t)
}

func TestLedger_InsufficientBalances(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "")
	h.fund(t, u.UserID, "2")

	if _, err := h.ledger.Lock(ctx, u.UserID, dec("2.00000001")); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("Lock err = %v, want ErrInsufficientBalance", err)
	}
	if _, err := h.ledger.Unlock(ctx, u.UserID, dec("1")); !errors.Is(err, domain.ErrInsufficientLockedBalance) {
		t.Errorf("Unlock err = %v, want ErrInsufficientLockedBalance", err)
	}
	// A failed lock must leave nothing half-moved.
	b := h.balances(t, u.UserID)
	if !b.Available.Equal(dec("2")) || !b.Locked.IsZero() {
		t.Errorf("balances changed after failed lock: %+v", b)
	}
}
