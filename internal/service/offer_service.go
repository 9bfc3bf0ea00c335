package service

import (
	"context"
	"fmt"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/metrics"
	"github.com/afrix/afxledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OfferService runs the offer book: posting, cancelling and filling offers.
// Every mutation is one transaction; fills of one offer serialize on the
// offer row lock.
type OfferService struct {
	db        *sqlx.DB
	offers    *repository.OfferRepository
	trades    *repository.TradeRepository
	profiles  *repository.ProfileRepository
	txns      *repository.TransactionRepository
	escrow    *EscrowManager
	rules     domain.OfferRules
	log       *zap.Logger
	accruer   Accruer
	metrics   *metrics.Metrics
	publisher EventPublisher
	now       Clock
}

// NewOfferService creates an OfferService.
func NewOfferService(
	db *sqlx.DB,
	offers *repository.OfferRepository,
	trades *repository.TradeRepository,
	profiles *repository.ProfileRepository,
	txns *repository.TransactionRepository,
	escrow *EscrowManager,
	rules domain.OfferRules,
	log *zap.Logger,
) *OfferService {
	return &OfferService{
		db:       db,
		offers:   offers,
		trades:   trades,
		profiles: profiles,
		txns:     txns,
		escrow:   escrow,
		rules:    rules,
		log:      log,
		now:      systemClock,
	}
}

// SetClock replaces the time source.
func (s *OfferService) SetClock(c Clock) { s.now = c }

// SetAccruer injects the commission collaborator.
func (s *OfferService) SetAccruer(a Accruer) { s.accruer = a }

// SetMetrics injects the collectors.
func (s *OfferService) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// SetPublisher injects the event sink.
func (s *OfferService) SetPublisher(p EventPublisher) { s.publisher = p }

// ──────────────────────────────────────────────────────────────────────────────
// Create
// ──────────────────────────────────────────────────────────────────────────────

// CreateSellOffer validates req against referencePrice, escrows the full
// total from the owner's available funds and opens the offer.
func (s *OfferService) CreateSellOffer(ctx context.Context, req domain.CreateOfferRequest, referencePrice decimal.Decimal) (*domain.Offer, error) {
	req.Side = domain.SideSell
	return s.create(ctx, req, referencePrice)
}

// CreateBuyOffer validates req against referencePrice and opens the offer.
// Nothing is locked; the taker delivers coins at fill time.
func (s *OfferService) CreateBuyOffer(ctx context.Context, req domain.CreateOfferRequest, referencePrice decimal.Decimal) (*domain.Offer, error) {
	req.Side = domain.SideBuy
	return s.create(ctx, req, referencePrice)
}

func (s *OfferService) create(ctx context.Context, req domain.CreateOfferRequest, ref decimal.Decimal) (*domain.Offer, error) {
	if err := req.Validate(s.rules, ref); err != nil {
		return nil, err
	}

	now := s.now()
	o := &domain.Offer{
		ID:              uuid.New(),
		OwnerID:         req.OwnerID,
		Side:            req.Side,
		TotalAmount:     req.TotalAmount,
		RemainingAmount: req.TotalAmount,
		UnitPrice:       req.UnitPrice,
		MinTradeAmount:  req.MinTradeAmount,
		MaxTradeAmount:  req.MaxTradeAmount,
		ReferencePrice:  ref,
		PaymentMethods:  req.PaymentMethods,
		Terms:           req.Terms,
		Status:          domain.OfferOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if o.PaymentMethods == nil {
		o.PaymentMethods = domain.PaymentMethods{}
	}

	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.profiles.LockLedger(ctx, tx, o.OwnerID); err != nil {
			return err
		}
		if o.Side == domain.SideSell {
			esc, err := s.escrow.OpenSellEscrow(ctx, tx, o.OwnerID, o.ID, o.TotalAmount, now)
			if err != nil {
				return err
			}
			o.EscrowID = &esc.ID
		}
		if err := s.offers.Insert(ctx, tx, o); err != nil {
			return err
		}
		if o.Side == domain.SideSell {
			return s.txns.Log(ctx, tx, domain.NewTransaction(o.OwnerID, domain.TxEscrowLock, o.TotalAmount, &o.ID,
				fmt.Sprintf("Escrow for sell offer of %s @ %s", o.TotalAmount, o.UnitPrice), now))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("offer_service.create: %w", err)
	}

	s.metrics.RecordOffer(string(o.Side), "created")
	remaining := o.RemainingAmount
	price := o.UnitPrice
	publish(ctx, s.publisher, s.log, domain.Event{
		Type:       domain.EventOfferCreated,
		UserID:     o.OwnerID,
		OfferID:    &o.ID,
		Side:       o.Side,
		Amount:     o.TotalAmount,
		Remaining:  &remaining,
		Price:      &price,
		OccurredAt: now,
	})
	return o, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Cancel
// ──────────────────────────────────────────────────────────────────────────────

// CancelOffer closes an open offer on behalf of its owner. A sell offer
// returns its unfilled remainder to the owner's available funds.
func (s *OfferService) CancelOffer(ctx context.Context, offerID, requesterID uuid.UUID) (*domain.Offer, error) {
	now := s.now()
	var o *domain.Offer
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		if o, err = s.offers.LockAndGet(ctx, tx, offerID); err != nil {
			return err
		}
		if o.OwnerID != requesterID {
			return domain.ErrNotOfferOwner
		}
		if !o.IsOpen() {
			return domain.ErrOfferNotOpen
		}

		if o.Side == domain.SideSell && o.EscrowID != nil && o.RemainingAmount.IsPositive() {
			esc, err := s.escrow.Acquire(ctx, tx, *o.EscrowID)
			if err != nil {
				return err
			}
			if err := s.profiles.LockLedger(ctx, tx, o.OwnerID); err != nil {
				return err
			}
			if err := s.escrow.Release(ctx, tx, esc, o.RemainingAmount, now); err != nil {
				return err
			}
			if err := s.txns.Log(ctx, tx, domain.NewTransaction(o.OwnerID, domain.TxEscrowRelease,
				o.RemainingAmount, &o.ID, "Escrow released on cancel", now)); err != nil {
				return err
			}
		}

		if err := s.offers.MarkCancelled(ctx, tx, o.ID, now); err != nil {
			return err
		}
		o.Status = domain.OfferCancelled
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("offer_service.CancelOffer: %w", err)
	}

	s.metrics.RecordOffer(string(o.Side), "cancelled")
	s.log.Info("offer cancelled",
		zap.String("offer_id", o.ID.String()),
		zap.String("filled", o.FilledAmount().String()),
		zap.String("released", o.RemainingAmount.String()))
	remaining := o.RemainingAmount
	publish(ctx, s.publisher, s.log, domain.Event{
		Type:       domain.EventOfferCancelled,
		UserID:     o.OwnerID,
		OfferID:    &o.ID,
		Side:       o.Side,
		Amount:     o.RemainingAmount,
		Remaining:  &remaining,
		OccurredAt: now,
	})
	return o, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Match
// ──────────────────────────────────────────────────────────────────────────────

// MatchTrade fills amount of an open offer for the taker. Sell offers need a
// payment confirmation for exactly (offer, taker, amount); the escrowed coins
// then move to the taker. Buy offers take the coins from the taker's
// available funds. The offer is filled when nothing remains.
func (s *OfferService) MatchTrade(ctx context.Context, req domain.MatchRequest) (*domain.Settlement, error) {
	now := s.now()
	var (
		o     *domain.Offer
		trade *domain.Trade
	)
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		if o, err = s.offers.LockAndGet(ctx, tx, req.OfferID); err != nil {
			return err
		}
		if !o.IsOpen() {
			return domain.ErrOfferNotOpen
		}
		if req.TakerID == o.OwnerID {
			return domain.ErrSelfTrade
		}
		if err := o.CheckTradeAmount(req.Amount); err != nil {
			return err
		}

		var esc *domain.Escrow
		if o.Side == domain.SideSell {
			if o.EscrowID == nil {
				return fmt.Errorf("sell offer %s has no escrow: %w", o.ID, domain.ErrInvalidState)
			}
			if esc, err = s.escrow.Acquire(ctx, tx, *o.EscrowID); err != nil {
				return err
			}
		}

		seller, buyer := o.Parties(req.TakerID)
		if err := s.profiles.LockLedgers(ctx, tx, seller, buyer); err != nil {
			return err
		}

		trade = &domain.Trade{
			ID:        uuid.New(),
			OfferID:   o.ID,
			BuyerID:   buyer,
			SellerID:  seller,
			TakerID:   req.TakerID,
			Amount:    req.Amount,
			UnitPrice: o.UnitPrice,
			Notional:  req.Amount.Mul(o.UnitPrice),
			CreatedAt: now,
		}
		if req.PaymentReference != "" {
			ref := req.PaymentReference
			trade.PaymentReference = &ref
		}
		if err := s.trades.Insert(ctx, tx, trade); err != nil {
			return err
		}

		if o.Side == domain.SideSell {
			if err := s.trades.ConsumeConfirmation(ctx, tx, req.PaymentReference,
				o.ID, req.TakerID, req.Amount, trade.ID); err != nil {
				return err
			}
			if err := s.escrow.Settle(ctx, tx, esc, req.Amount, buyer, now); err != nil {
				return err
			}
		} else {
			if err := s.escrow.SettleFromAvailable(ctx, tx, seller, buyer, req.Amount, now); err != nil {
				return err
			}
		}

		o.RemainingAmount = o.RemainingAmount.Sub(req.Amount)
		if o.RemainingAmount.IsZero() {
			o.Status = domain.OfferFilled
		}
		o.UpdatedAt = now
		if err := s.offers.UpdateFill(ctx, tx, o.ID, o.RemainingAmount, o.Status, now); err != nil {
			return err
		}
		if err := s.profiles.IncrementTrades(ctx, tx, now, seller, buyer); err != nil {
			return err
		}
		return s.txns.Log(ctx, tx,
			domain.NewTransaction(seller, domain.TxTradeSell, req.Amount, &o.ID,
				fmt.Sprintf("Sold %s @ %s", req.Amount, o.UnitPrice), now),
			domain.NewTransaction(buyer, domain.TxTradeBuy, req.Amount, &o.ID,
				fmt.Sprintf("Bought %s @ %s", req.Amount, o.UnitPrice), now),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("offer_service.MatchTrade: %w", err)
	}

	s.metrics.RecordTrade(string(o.Side), trade.Amount)
	if s.accruer != nil {
		accrueQuietly(ctx, s.log, s.metrics, domain.CommissionFromTrade, req.TakerID, func(c context.Context) error {
			return s.accruer.AccrueTrade(c, req.TakerID, trade.Amount, trade.ID)
		})
	}
	remaining := o.RemainingAmount
	price := o.UnitPrice
	publish(ctx, s.publisher, s.log, domain.Event{
		Type:       domain.EventTradeSettled,
		UserID:     req.TakerID,
		OfferID:    &o.ID,
		TradeID:    &trade.ID,
		Side:       o.Side,
		Amount:     trade.Amount,
		Remaining:  &remaining,
		Price:      &price,
		OccurredAt: now,
	})

	s.log.Info("trade settled",
		zap.String("offer_id", o.ID.String()),
		zap.String("trade_id", trade.ID.String()),
		zap.String("amount", trade.Amount.String()),
		zap.String("remaining", o.RemainingAmount.String()))
	return &domain.Settlement{Trade: trade, Offer: o}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// GetOffer returns one offer.
func (s *OfferService) GetOffer(ctx context.Context, offerID uuid.UUID) (*domain.Offer, error) {
	return s.offers.GetByID(ctx, nil, offerID)
}

// ListOpen returns a page of open offers, oldest first. side "" lists both.
func (s *OfferService) ListOpen(ctx context.Context, side domain.OfferSide, page, limit int) ([]*domain.Offer, error) {
	if side != "" && !side.Valid() {
		return nil, domain.NewValidationError("side", "oneof", "side must be buy or sell")
	}
	l, off := pageBounds(page, limit)
	return s.offers.ListOpen(ctx, side, l, off)
}

// ListByOwner returns a page of the user's own offers, newest first.
func (s *OfferService) ListByOwner(ctx context.Context, ownerID uuid.UUID, page, limit int) ([]*domain.Offer, error) {
	l, off := pageBounds(page, limit)
	return s.offers.ListByOwner(ctx, ownerID, l, off)
}

// UserTrades returns a page of trades the user bought or sold in, newest
// first.
func (s *OfferService) UserTrades(ctx context.Context, userID uuid.UUID, page, limit int) ([]*domain.Trade, error) {
	l, off := pageBounds(page, limit)
	return s.trades.ListByUser(ctx, userID, l, off)
}

// Trades returns the fills of one offer.
func (s *OfferService) Trades(ctx context.Context, offerID uuid.UUID) ([]*domain.Trade, error) {
	return s.trades.ListByOffer(ctx, offerID)
}

// RecordPaymentConfirmation stores a settlement collaborator's confirmation
// that the taker paid for amount on a sell offer.
func (s *OfferService) RecordPaymentConfirmation(ctx context.Context, pc *domain.PaymentConfirmation) error {
	if pc.Reference == "" {
		return domain.NewValidationError("reference", "required", "reference is required")
	}
	if !pc.Amount.IsPositive() {
		return domain.NewValidationError("amount", "gt", "amount must be positive")
	}
	o, err := s.offers.GetByID(ctx, nil, pc.OfferID)
	if err != nil {
		return err
	}
	if o.Side != domain.SideSell {
		return domain.NewValidationError("offer_id", "sell", "payment confirmations apply to sell offers only")
	}
	pc.TradeID = nil
	if pc.ConfirmedAt.IsZero() {
		pc.ConfirmedAt = s.now()
	}
	return s.trades.InsertConfirmation(ctx, pc)
}

// PendingConfirmations lists confirmations not yet used by a trade.
func (s *OfferService) PendingConfirmations(ctx context.Context, page, limit int) ([]*domain.PaymentConfirmation, error) {
	l, off := pageBounds(page, limit)
	return s.trades.ListPendingConfirmations(ctx, l, off)
}
