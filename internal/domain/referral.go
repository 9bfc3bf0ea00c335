package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferralEdge links a referrer to a user they brought in. There is at most
// one edge per referred user.
type ReferralEdge struct {
	ReferrerID             uuid.UUID       `json:"referrer_id"              db:"referrer_id"`
	ReferredID             uuid.UUID       `json:"referred_id"              db:"referred_id"`
	ReferralCode           string          `json:"referral_code"            db:"referral_code"`
	AccruedTradeCommission decimal.Decimal `json:"accrued_trade_commission" db:"accrued_trade_commission"`
	AccruedClaimCommission decimal.Decimal `json:"accrued_claim_commission" db:"accrued_claim_commission"`
	Version                int64           `json:"-"                        db:"version"`
	CreatedAt              time.Time       `json:"created_at"               db:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"               db:"updated_at"`
}

// Accrue adds amount to the running total that matches source.
func (e *ReferralEdge) Accrue(source CommissionSource, amount decimal.Decimal) {
	switch source {
	case CommissionFromTrade:
		e.AccruedTradeCommission = e.AccruedTradeCommission.Add(amount)
	case CommissionFromClaim:
		e.AccruedClaimCommission = e.AccruedClaimCommission.Add(amount)
	}
}

// Total returns trade + claim commission accrued on this edge.
func (e *ReferralEdge) Total() decimal.Decimal {
	return e.AccruedTradeCommission.Add(e.AccruedClaimCommission)
}

// CommissionSource says what activity produced a commission.
type CommissionSource string

const (
	CommissionFromTrade CommissionSource = "trade"
	CommissionFromClaim CommissionSource = "claim"
)

// ReferralSummary is the referrer's view of their network.
type ReferralSummary struct {
	ReferralCode         string          `json:"referral_code"`
	ReferralCount        int             `json:"referral_count"`
	TotalTradeCommission decimal.Decimal `json:"total_trade_commission"`
	TotalClaimCommission decimal.Decimal `json:"total_claim_commission"`
	TotalCommission      decimal.Decimal `json:"total_commission"`
	Referrals            []*ReferralEdge `json:"referrals"`
}

// Summarize folds edges into a summary for the given code.
func Summarize(code string, edges []*ReferralEdge) *ReferralSummary {
	s := &ReferralSummary{
		ReferralCode:         code,
		ReferralCount:        len(edges),
		TotalTradeCommission: decimal.Zero,
		TotalClaimCommission: decimal.Zero,
		Referrals:            edges,
	}
	for _, e := range edges {
		s.TotalTradeCommission = s.TotalTradeCommission.Add(e.AccruedTradeCommission)
		s.TotalClaimCommission = s.TotalClaimCommission.Add(e.AccruedClaimCommission)
	}
	s.TotalCommission = s.TotalTradeCommission.Add(s.TotalClaimCommission)
	if s.Referrals == nil {
		s.Referrals = []*ReferralEdge{}
	}
	return s
}
