package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// OfferSide is the owner's side of the book.
type OfferSide string

const (
	SideBuy  OfferSide = "buy"
	SideSell OfferSide = "sell"
)

// Valid reports whether s is buy or sell.
func (s OfferSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OfferStatus is the offer lifecycle: open → filled | cancelled.
type OfferStatus string

const (
	OfferOpen      OfferStatus = "open"
	OfferFilled    OfferStatus = "filled"
	OfferCancelled OfferStatus = "cancelled"
)

// MaxTermsLength bounds the free-text terms of an offer.
const MaxTermsLength = 500

// ──────────────────────────────────────────────────────────────────────────────
// Offer
// ──────────────────────────────────────────────────────────────────────────────

// Offer is a public posting to buy or sell coin units at a fixed unit price.
type Offer struct {
	ID              uuid.UUID       `json:"id"               db:"id"`
	OwnerID         uuid.UUID       `json:"owner_id"         db:"owner_id"`
	Side            OfferSide       `json:"side"             db:"side"`
	TotalAmount     decimal.Decimal `json:"total_amount"     db:"total_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount" db:"remaining_amount"`
	UnitPrice       decimal.Decimal `json:"unit_price"       db:"unit_price"`
	MinTradeAmount  decimal.Decimal `json:"min_trade_amount" db:"min_trade_amount"`
	MaxTradeAmount  decimal.Decimal `json:"max_trade_amount" db:"max_trade_amount"`
	ReferencePrice  decimal.Decimal `json:"reference_price"  db:"reference_price"`
	PaymentMethods  PaymentMethods  `json:"payment_methods"  db:"payment_methods"`
	Terms           string          `json:"terms"            db:"terms"`
	Status          OfferStatus     `json:"status"           db:"status"`
	EscrowID        *uuid.UUID      `json:"escrow_id"        db:"escrow_id"`
	Version         int64           `json:"-"                db:"version"`
	CreatedAt       time.Time       `json:"created_at"       db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"       db:"updated_at"`
}

// IsOpen returns true while the offer accepts trades.
func (o *Offer) IsOpen() bool {
	return o.Status == OfferOpen
}

// FilledAmount returns total − remaining.
func (o *Offer) FilledAmount() decimal.Decimal {
	return o.TotalAmount.Sub(o.RemainingAmount)
}

// CheckTradeAmount enforces the per-trade limits against what remains.
func (o *Offer) CheckTradeAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() ||
		amount.LessThan(o.MinTradeAmount) ||
		amount.GreaterThan(o.MaxTradeAmount) ||
		amount.GreaterThan(o.RemainingAmount) {
		return ErrAmountOutOfBounds
	}
	return nil
}

// Parties returns (seller, buyer) for a trade with taker against o.
func (o *Offer) Parties(taker uuid.UUID) (seller, buyer uuid.UUID) {
	if o.Side == SideSell {
		return o.OwnerID, taker
	}
	return taker, o.OwnerID
}

// ──────────────────────────────────────────────────────────────────────────────
// Offer rules & creation
// ──────────────────────────────────────────────────────────────────────────────

// OfferRules are the posting limits. All are configuration.
type OfferRules struct {
	MinPostAmount  decimal.Decimal // smallest total an offer may post (50)
	MinTradeAmount decimal.Decimal // smallest per-trade limit an offer may set (2)
	PriceBand      decimal.Decimal // allowed deviation from the reference price (0.04)
}

// PriceBounds returns the inclusive unit price band around ref.
func (r OfferRules) PriceBounds(ref decimal.Decimal) (lower, upper decimal.Decimal) {
	one := decimal.NewFromInt(1)
	return ref.Mul(one.Sub(r.PriceBand)), ref.Mul(one.Add(r.PriceBand))
}

// CreateOfferRequest carries everything needed to post an offer.
type CreateOfferRequest struct {
	OwnerID        uuid.UUID       `json:"-"`
	Side           OfferSide       `json:"-"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	MinTradeAmount decimal.Decimal `json:"min_trade_amount"`
	MaxTradeAmount decimal.Decimal `json:"max_trade_amount"`
	PaymentMethods PaymentMethods  `json:"payment_methods"`
	Terms          string          `json:"terms"`
}

// Validate checks req against rules in a fixed order so the first failing
// rule is always the one reported.
func (req CreateOfferRequest) Validate(rules OfferRules, referencePrice decimal.Decimal) error {
	if !req.Side.Valid() {
		return NewValidationError("side", "oneof", "side must be buy or sell")
	}
	if !referencePrice.IsPositive() {
		return NewValidationError("reference_price", "gt", "reference price is unavailable")
	}
	if req.TotalAmount.LessThan(rules.MinPostAmount) {
		return NewValidationError("total_amount", "min",
			"minimum amount to post is %s", rules.MinPostAmount)
	}
	if req.MinTradeAmount.LessThan(rules.MinTradeAmount) {
		return NewValidationError("min_trade_amount", "min",
			"minimum trade amount is %s", rules.MinTradeAmount)
	}
	if req.MaxTradeAmount.LessThan(req.MinTradeAmount) {
		return NewValidationError("max_trade_amount", "gtefield",
			"max trade amount must be at least the min trade amount")
	}
	if req.MaxTradeAmount.GreaterThan(req.TotalAmount) {
		return NewValidationError("max_trade_amount", "ltefield",
			"max trade amount cannot exceed the total amount")
	}
	lower, upper := rules.PriceBounds(referencePrice)
	if req.UnitPrice.LessThan(lower) || req.UnitPrice.GreaterThan(upper) {
		return NewValidationError("unit_price", "band",
			"price must be between %s and %s", lower.StringFixed(2), upper.StringFixed(2))
	}
	if req.Side == SideSell && len(req.PaymentMethods) == 0 {
		return NewValidationError("payment_methods", "required",
			"a sell offer needs at least one payment method")
	}
	if err := req.PaymentMethods.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(req.Terms) > MaxTermsLength {
		return NewValidationError("terms", "max", "terms must be at most %d characters", MaxTermsLength)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Matching
// ──────────────────────────────────────────────────────────────────────────────

// MatchRequest is a taker's request to trade against an offer.
type MatchRequest struct {
	OfferID          uuid.UUID       `json:"-"`
	TakerID          uuid.UUID       `json:"-"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentReference string          `json:"payment_reference"`
}

// Trade is the append-only record of one fill.
type Trade struct {
	ID               uuid.UUID       `json:"id"                db:"id"`
	OfferID          uuid.UUID       `json:"offer_id"          db:"offer_id"`
	BuyerID          uuid.UUID       `json:"buyer_id"          db:"buyer_id"`
	SellerID         uuid.UUID       `json:"seller_id"         db:"seller_id"`
	TakerID          uuid.UUID       `json:"taker_id"          db:"taker_id"`
	Amount           decimal.Decimal `json:"amount"            db:"amount"`
	UnitPrice        decimal.Decimal `json:"unit_price"        db:"unit_price"`
	Notional         decimal.Decimal `json:"notional"          db:"notional"`
	PaymentReference *string         `json:"payment_reference" db:"payment_reference"`
	CreatedAt        time.Time       `json:"created_at"        db:"created_at"`
}

// Settlement is returned by a successful match.
type Settlement struct {
	Trade *Trade `json:"trade"`
	Offer *Offer `json:"offer"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Escrow
// ──────────────────────────────────────────────────────────────────────────────

// EscrowStatus is open until everything is released or settled.
type EscrowStatus string

const (
	EscrowOpen   EscrowStatus = "open"
	EscrowClosed EscrowStatus = "closed"
)

// Escrow tracks the locked funds backing one sell offer.
// Outstanding = Amount − released − settled.
type Escrow struct {
	ID          uuid.UUID       `json:"id"          db:"id"`
	OwnerID     uuid.UUID       `json:"owner_id"    db:"owner_id"`
	OfferID     uuid.UUID       `json:"offer_id"    db:"offer_id"`
	Amount      decimal.Decimal `json:"amount"      db:"amount"`
	Outstanding decimal.Decimal `json:"outstanding" db:"outstanding"`
	Status      EscrowStatus    `json:"status"      db:"status"`
	Version     int64           `json:"-"           db:"version"`
	CreatedAt   time.Time       `json:"created_at"  db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"  db:"updated_at"`
}
