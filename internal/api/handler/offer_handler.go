package handler

import (
	"net/http"

	"github.com/afrix/afxledger/internal/api/middleware"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OfferHandler serves the offer book: posting, browsing, cancelling and
// filling offers.
type OfferHandler struct {
	offerSvc *service.OfferService
	priceSvc *service.PriceService
}

// NewOfferHandler creates an OfferHandler.
func NewOfferHandler(offerSvc *service.OfferService, priceSvc *service.PriceService) *OfferHandler {
	return &OfferHandler{offerSvc: offerSvc, priceSvc: priceSvc}
}

// CreateSell godoc
// POST /api/offers/sell [JWT]
// Body: {"total_amount":"50","unit_price":"16","min_trade_amount":"2",
//
//	"max_trade_amount":"50","payment_methods":[...],"terms":"..."}
func (h *OfferHandler) CreateSell(c *gin.Context) {
	h.create(c, domain.SideSell)
}

// CreateBuy godoc
// POST /api/offers/buy [JWT]
func (h *OfferHandler) CreateBuy(c *gin.Context) {
	h.create(c, domain.SideBuy)
}

func (h *OfferHandler) create(c *gin.Context, side domain.OfferSide) {
	var req domain.CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	req.OwnerID = middleware.GetUserID(c)

	ctx := c.Request.Context()
	q, err := h.priceSvc.ReferencePrice(ctx)
	if err != nil {
		RespondError(c, http.StatusServiceUnavailable, "ERR_PRICE_UNAVAILABLE", "reference price is unavailable")
		return
	}

	var offer *domain.Offer
	if side == domain.SideSell {
		offer, err = h.offerSvc.CreateSellOffer(ctx, req, q.Price)
	} else {
		offer, err = h.offerSvc.CreateBuyOffer(ctx, req, q.Price)
	}
	if err != nil {
		RespondServiceError(c, err, "could not create offer")
		return
	}
	RespondSuccess(c, http.StatusCreated, offer)
}

// List godoc
// GET /api/offers?side=sell&page=1&limit=20
func (h *OfferHandler) List(c *gin.Context) {
	page, limit := parsePagination(c)
	side := domain.OfferSide(c.DefaultQuery("side", string(domain.SideSell)))
	offers, err := h.offerSvc.ListOpen(c.Request.Context(), side, page, limit)
	if err != nil {
		RespondServiceError(c, err, "could not list offers")
		return
	}
	RespondList(c, offers, page, limit)
}

// ListMine godoc
// GET /api/offers/my?page=1&limit=20 [JWT]
func (h *OfferHandler) ListMine(c *gin.Context) {
	page, limit := parsePagination(c)
	offers, err := h.offerSvc.ListByOwner(c.Request.Context(), middleware.GetUserID(c), page, limit)
	if err != nil {
		RespondServiceError(c, err, "could not list offers")
		return
	}
	RespondList(c, offers, page, limit)
}

// GetByID godoc
// GET /api/offers/:id
func (h *OfferHandler) GetByID(c *gin.Context) {
	id, ok := offerID(c)
	if !ok {
		return
	}
	offer, err := h.offerSvc.GetOffer(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err, "could not fetch offer")
		return
	}
	RespondSuccess(c, http.StatusOK, offer)
}

// Cancel godoc
// POST /api/offers/:id/cancel [JWT]
func (h *OfferHandler) Cancel(c *gin.Context) {
	id, ok := offerID(c)
	if !ok {
		return
	}
	offer, err := h.offerSvc.CancelOffer(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		RespondServiceError(c, err, "could not cancel offer")
		return
	}
	RespondSuccess(c, http.StatusOK, offer)
}

// Fill godoc
// POST /api/offers/:id/trades [JWT]
// Body: {"amount":"10","payment_reference":"QK71ZX9ABC"}
func (h *OfferHandler) Fill(c *gin.Context) {
	id, ok := offerID(c)
	if !ok {
		return
	}
	var req domain.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	req.OfferID = id
	req.TakerID = middleware.GetUserID(c)

	settlement, err := h.offerSvc.MatchTrade(c.Request.Context(), req)
	if err != nil {
		RespondServiceError(c, err, "could not settle trade")
		return
	}
	RespondSuccess(c, http.StatusCreated, settlement)
}

// Trades godoc
// GET /api/offers/:id/trades [JWT]
func (h *OfferHandler) Trades(c *gin.Context) {
	id, ok := offerID(c)
	if !ok {
		return
	}
	trades, err := h.offerSvc.Trades(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err, "could not fetch trades")
		return
	}
	RespondSuccess(c, http.StatusOK, trades)
}

func offerID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "ERR_INVALID_OFFER_ID", "invalid offer id")
		return uuid.Nil, false
	}
	return id, true
}
