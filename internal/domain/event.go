package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names a committed state change published after the fact.
type EventType string

const (
	EventClaimGranted       EventType = "claim.granted"
	EventOfferCreated       EventType = "offer.created"
	EventOfferCancelled     EventType = "offer.cancelled"
	EventTradeSettled       EventType = "trade.settled"
	EventCommissionAccrued  EventType = "commission.accrued"
	EventReferencePriceTick EventType = "price.reference"
)

// Event is emitted only after the owning transaction commits.
type Event struct {
	Type       EventType        `json:"type"`
	UserID     uuid.UUID        `json:"user_id,omitempty"`
	OfferID    *uuid.UUID       `json:"offer_id,omitempty"`
	TradeID    *uuid.UUID       `json:"trade_id,omitempty"`
	Side       OfferSide        `json:"side,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	Remaining  *decimal.Decimal `json:"remaining,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Key is the partition key used by the event stream.
func (e Event) Key() string {
	if e.OfferID != nil {
		return e.OfferID.String()
	}
	return e.UserID.String()
}
