package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/repository"
	"github.com/afrix/afxledger/internal/service"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

// ── Test clock ────────────────────────────────────────────────────────────────

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ── Event capture ─────────────────────────────────────────────────────────────

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// ── Harness ───────────────────────────────────────────────────────────────────

type harness struct {
	db         *sqlx.DB
	cfg        *config.Config
	clock      *fakeClock
	events     *recordingPublisher
	ledger     *service.LedgerService
	claims     *service.ClaimService
	offers     *service.OfferService
	commission *service.CommissionService
	profiles   *service.ProfileService
}

// newHarness wires every service against a private in-memory SQLite store.
func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := sqlx.Open("sqlite3", "file::memory:?_txlock=immediate&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err := repository.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Defaults()
	log := zaptest.NewLogger(t)
	clock := newFakeClock()
	events := &recordingPublisher{}

	profileRepo := repository.NewProfileRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	escrowRepo := repository.NewEscrowRepository(db)
	offerRepo := repository.NewOfferRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	txRepo := repository.NewTransactionRepository(db)

	h := &harness{db: db, cfg: cfg, clock: clock, events: events}

	h.ledger = service.NewLedgerService(db, ledgerRepo, profileRepo, txRepo)
	h.ledger.SetClock(clock.Now)

	h.commission = service.NewCommissionService(db, profileRepo, referralRepo, ledgerRepo, txRepo, cfg.Referral, log)
	h.commission.SetClock(clock.Now)
	h.commission.SetPublisher(events)

	h.claims = service.NewClaimService(db, profileRepo, ledgerRepo, txRepo, cfg.Claim, log)
	h.claims.SetClock(clock.Now)
	h.claims.SetAccruer(h.commission)
	h.claims.SetPublisher(events)

	rules := domain.OfferRules{
		MinPostAmount:  cfg.Offer.MinPostAmount,
		MinTradeAmount: cfg.Offer.MinTradeAmount,
		PriceBand:      cfg.Offer.PriceBand,
	}
	escrow := service.NewEscrowManager(ledgerRepo, escrowRepo)
	h.offers = service.NewOfferService(db, offerRepo, tradeRepo, profileRepo, txRepo, escrow, rules, log)
	h.offers.SetClock(clock.Now)
	h.offers.SetAccruer(h.commission)
	h.offers.SetPublisher(events)

	h.profiles = service.NewProfileService(db, profileRepo, referralRepo, log)
	h.profiles.SetClock(clock.Now)

	return h
}

var ctx = context.Background()

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// user onboards a fresh profile, optionally referred by referrerCode.
func (h *harness) user(t *testing.T, referrerCode string) *domain.UserProfile {
	t.Helper()
	p, err := h.profiles.Onboard(ctx, service.OnboardRequest{UserID: uuid.New(), ReferrerCode: referrerCode})
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	return p
}

// fund credits amount of available mining funds.
func (h *harness) fund(t *testing.T, userID uuid.UUID, amount string) {
	t.Helper()
	if _, err := h.ledger.Credit(ctx, userID, dec(amount), domain.OriginMining, domain.FundAvailable); err != nil {
		t.Fatalf("credit %s: %v", amount, err)
	}
}

func (h *harness) balances(t *testing.T, userID uuid.UUID) domain.Balances {
	t.Helper()
	b, err := h.ledger.Balances(ctx, userID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	return b
}

// assertSupply checks available + locked == minted across the platform.
func (h *harness) assertSupply(t *testing.T) {
	t.Helper()
	s, err := h.ledger.Supply(ctx)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if !s.Balanced() {
		t.Errorf("supply drift: available %s + locked %s != minted %s", s.Available, s.Locked, s.Minted)
	}
}

// sellRequest is a valid sell offer at reference price 16.
func sellRequest(owner uuid.UUID, total string) domain.CreateOfferRequest {
	return domain.CreateOfferRequest{
		OwnerID:        owner,
		TotalAmount:    dec(total),
		UnitPrice:      dec("16"),
		MinTradeAmount: dec("2"),
		MaxTradeAmount: dec(total),
		PaymentMethods: domain.PaymentMethods{{
			Type:    domain.MethodMpesaPersonal,
			Details: &domain.MpesaPersonal{FullName: "Wanjiru Kamau", Phone: "0712345678"},
		}},
	}
}

// confirm records a payment confirmation for a sell-offer fill.
func (h *harness) confirm(t *testing.T, offerID, payer uuid.UUID, amount string) string {
	t.Helper()
	ref := fmt.Sprintf("MP%s", uuid.NewString()[:10])
	err := h.offers.RecordPaymentConfirmation(ctx, &domain.PaymentConfirmation{
		Reference:   ref,
		OfferID:     offerID,
		PayerID:     payer,
		Amount:      dec(amount),
		ConfirmedBy: uuid.New(),
	})
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	return ref
}
