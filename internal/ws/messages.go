// Package ws pushes offer-book and account events to websocket clients.
package ws

import (
	"time"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/shopspring/decimal"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeEvent MsgType = "event"
	MsgTypePrice MsgType = "price"
)

// EventMessage wraps a committed ledger event.
type EventMessage struct {
	Type  MsgType      `json:"type"`
	Event domain.Event `json:"event"`
}

// PriceMessage is broadcast after every reference price refresh.
type PriceMessage struct {
	Type      MsgType         `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// private reports whether ev concerns one account only. Those events go to
// the owner's connections and never to the whole book.
func private(ev domain.Event) bool {
	switch ev.Type {
	case domain.EventClaimGranted, domain.EventCommissionAccrued:
		return true
	}
	return false
}
