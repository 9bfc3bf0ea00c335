package handler

import (
	"net/http"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// PriceHandler serves the reference price and the resulting offer band.
type PriceHandler struct {
	priceSvc *service.PriceService
	rules    domain.OfferRules
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(priceSvc *service.PriceService, rules domain.OfferRules) *PriceHandler {
	return &PriceHandler{priceSvc: priceSvc, rules: rules}
}

// GetPrice godoc
// GET /api/price
// Response: {"price":"16","source":"cache","fetched_at":"...","min_price":"15.36","max_price":"16.64"}
func (h *PriceHandler) GetPrice(c *gin.Context) {
	q, err := h.priceSvc.ReferencePrice(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusServiceUnavailable, "ERR_PRICE_UNAVAILABLE", "reference price is unavailable")
		return
	}
	lower, upper := h.rules.PriceBounds(q.Price)
	RespondSuccess(c, http.StatusOK, struct {
		service.PriceQuote
		MinPrice decimal.Decimal `json:"min_price"`
		MaxPrice decimal.Decimal `json:"max_price"`
	}{q, lower, upper})
}
