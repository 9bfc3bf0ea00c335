package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fund entries
// ──────────────────────────────────────────────────────────────────────────────

// FundStatus is the lifecycle state of a fund entry.
type FundStatus string

const (
	FundAvailable FundStatus = "available" // spendable
	FundLocked    FundStatus = "locked"    // reserved behind an escrow
	FundSpent     FundStatus = "spent"     // terminal: settled away or split into children
)

// FundOrigin records how a fund entry came into existence.
type FundOrigin string

const (
	OriginMining             FundOrigin = "mining"
	OriginTrade              FundOrigin = "trade"
	OriginReferralCommission FundOrigin = "referral_commission"
)

// Valid reports whether o is one of the known origins.
func (o FundOrigin) Valid() bool {
	switch o {
	case OriginMining, OriginTrade, OriginReferralCommission:
		return true
	}
	return false
}

// FundEntry is one immutable-amount slice of a user's coin holdings.
// Partial locks split an entry: the parent becomes spent and two children
// inherit its origin and created_at.
type FundEntry struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	OwnerID   uuid.UUID       `json:"owner_id"   db:"owner_id"`
	Amount    decimal.Decimal `json:"amount"     db:"amount"`
	Status    FundStatus      `json:"status"     db:"status"`
	Origin    FundOrigin      `json:"origin"     db:"origin"`
	ParentID  *uuid.UUID      `json:"parent_id"  db:"parent_id"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Balances is the live view of a user's holdings.
type Balances struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

// Total returns available + locked.
func (b Balances) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}

// Supply is the platform-wide reconciliation view.
// Trades only move coins, so Available+Locked must always equal Minted.
type Supply struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
	Minted    decimal.Decimal `json:"minted"`
}

// Circulating returns available + locked.
func (s Supply) Circulating() decimal.Decimal {
	return s.Available.Add(s.Locked)
}

// Balanced reports whether circulating supply matches minted supply.
func (s Supply) Balanced() bool {
	return s.Circulating().Equal(s.Minted)
}

// ──────────────────────────────────────────────────────────────────────────────
// Transaction log
// ──────────────────────────────────────────────────────────────────────────────

// TxKind classifies an entry of the append-only transaction log.
type TxKind string

const (
	TxMining             TxKind = "mining"
	TxEscrowLock         TxKind = "escrow_lock"
	TxEscrowRelease      TxKind = "escrow_release"
	TxTradeBuy           TxKind = "trade_buy"
	TxTradeSell          TxKind = "trade_sell"
	TxReferralCommission TxKind = "referral_commission"
)

// Transaction is a user-facing history record. It is never updated.
type Transaction struct {
	ID                  uuid.UUID       `json:"id"                    db:"id"`
	ActorID             uuid.UUID       `json:"actor_id"              db:"actor_id"`
	Kind                TxKind          `json:"kind"                  db:"kind"`
	Amount              decimal.Decimal `json:"amount"                db:"amount"`
	CounterpartyOfferID *uuid.UUID      `json:"counterparty_offer_id" db:"counterparty_offer_id"`
	Description         string          `json:"description"           db:"description"`
	CreatedAt           time.Time       `json:"created_at"            db:"created_at"`
}

// NewTransaction builds a log record stamped with now.
func NewTransaction(actor uuid.UUID, kind TxKind, amount decimal.Decimal, offerID *uuid.UUID, desc string, now time.Time) *Transaction {
	return &Transaction{
		ID:                  uuid.New(),
		ActorID:             actor,
		Kind:                kind,
		Amount:              amount,
		CounterpartyOfferID: offerID,
		Description:         desc,
		CreatedAt:           now,
	}
}
