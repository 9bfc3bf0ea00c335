package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestCommission_Rounding(t *testing.T) {
	cases := []struct{ base, rate, want string }{
		{"20", "0.02", "0.4"},
		{"0.73", "0.015", "0.01095"},
		{"0.00000001", "0.02", "0"},
		{"3.33333333", "0.015", "0.04999999"},
	}
	for _, tc := range cases {
		if got := service.Commission(dec(tc.base), dec(tc.rate)); !got.Equal(dec(tc.want)) {
			t.Errorf("Commission(%s, %s) = %s, want %s", tc.base, tc.rate, got, tc.want)
		}
	}
}

// Trade commission is a share of notional paid in coins: the notional cut
// divided by the unit price must equal the cut of the coin amount.
func TestCommission_TradeRateIsShareOfNotional(t *testing.T) {
	rate := dec("0.02")
	for _, tc := range []struct{ amount, price string }{
		{"20", "16"},
		{"7.5", "15.36"},
		{"123.45678", "16.64"},
	} {
		amount, price := dec(tc.amount), dec(tc.price)
		notionalCut := amount.Mul(price).Mul(rate)
		inCoins := notionalCut.DivRound(price, 16).RoundDown(8)
		if got := service.Commission(amount, rate); !got.Equal(inCoins) {
			t.Errorf("amount %s @ %s: commission %s, notional share in coins %s", tc.amount, tc.price, got, inCoins)
		}
	}
}

// The taker's referrer earns 2% of the coin amount; the seller's referrer
// earns nothing.
func TestCommission_TradeCreditsTakersReferrer(t *testing.T) {
	h := newHarness(t)
	sellerRef := h.user(t, "")
	takerRef := h.user(t, "")
	seller := h.user(t, sellerRef.ReferralCode)
	taker := h.user(t, takerRef.ReferralCode)
	h.fund(t, seller.UserID, "50")

	o, err := h.offers.CreateSellOffer(ctx, sellRequest(seller.UserID, "50"), refPrice)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ref := h.confirm(t, o.ID, taker.UserID, "20")
	if _, err := h.offers.MatchTrade(ctx, domain.MatchRequest{
		OfferID: o.ID, TakerID: taker.UserID, Amount: dec("20"), PaymentReference: ref,
	}); err != nil {
		t.Fatalf("match: %v", err)
	}

	if b := h.balances(t, takerRef.UserID); !b.Available.Equal(dec("0.4")) {
		t.Errorf("taker referrer = %s, want 0.4", b.Available)
	}
	if b := h.balances(t, sellerRef.UserID); !b.Available.IsZero() {
		t.Errorf("seller referrer = %s, want 0", b.Available)
	}

	sum, err := h.commission.Summary(ctx, takerRef.UserID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !sum.TotalTradeCommission.Equal(dec("0.4")) || !sum.TotalCommission.Equal(dec("0.4")) {
		t.Errorf("summary = %+v", sum)
	}
	if sum.ReferralCode != takerRef.ReferralCode || len(sum.Referrals) != 1 || sum.Referrals[0].ReferredID != taker.UserID {
		t.Errorf("summary referrals = %+v", sum.Referrals)
	}

	txns, _ := h.ledger.Transactions(ctx, takerRef.UserID, 1, 10)
	if len(txns) != 1 || txns[0].Kind != domain.TxReferralCommission {
		t.Errorf("referrer history = %+v", txns)
	}
	h.assertSupply(t)
}

func TestCommission_NoReferrerIsNoop(t *testing.T) {
	h := newHarness(t)
	u := h.user(t, "")
	if err := h.commission.AccrueTrade(ctx, u.UserID, dec("10"), uuid.New()); err != nil {
		t.Fatalf("AccrueTrade: %v", err)
	}
	sum, _ := h.commission.Summary(ctx, u.UserID)
	if sum.ReferralCount != 0 || !sum.TotalCommission.IsZero() || sum.Referrals == nil {
		t.Errorf("summary = %+v", sum)
	}
}

type failingAccruer struct{ calls int }

func (f *failingAccruer) AccrueTrade(context.Context, uuid.UUID, decimal.Decimal, uuid.UUID) error {
	f.calls++
	return errors.New("commission store down")
}

func (f *failingAccruer) AccrueClaim(context.Context, uuid.UUID, decimal.Decimal) error {
	f.calls++
	return errors.New("commission store down")
}

// A failing accrual never undoes or fails the claim or trade.
func TestCommission_FailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	fail := &failingAccruer{}
	h.claims.SetAccruer(fail)
	h.offers.SetAccruer(fail)

	seller := h.user(t, "")
	taker := h.user(t, "")
	if _, err := h.claims.Claim(ctx, taker.UserID); err != nil {
		t.Fatalf("claim should succeed despite commission failure: %v", err)
	}

	h.fund(t, seller.UserID, "50")
	o, _ := h.offers.CreateSellOffer(ctx, sellRequest(seller.UserID, "50"), refPrice)
	ref := h.confirm(t, o.ID, taker.UserID, "10")
	if _, err := h.offers.MatchTrade(ctx, domain.MatchRequest{
		OfferID: o.ID, TakerID: taker.UserID, Amount: dec("10"), PaymentReference: ref,
	}); err != nil {
		t.Fatalf("trade should succeed despite commission failure: %v", err)
	}

	if fail.calls != 2 {
		t.Errorf("accruer calls = %d, want 2", fail.calls)
	}
	if b := h.balances(t, taker.UserID); !b.Available.Equal(dec("10.73")) {
		t.Errorf("taker available = %s, want 10.73", b.Available)
	}
}
