package handler

import (
	"net/http"

	apihandler "github.com/afrix/afxledger/internal/api/handler"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementHandler records off-platform payment confirmations.
type SettlementHandler struct {
	offerSvc *service.OfferService
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(offerSvc *service.OfferService) *SettlementHandler {
	return &SettlementHandler{offerSvc: offerSvc}
}

// Confirm godoc
// POST /admin/settlement/confirmations [settlement, admin]
// Body: {"reference":"QK71ZX9ABC","offer_id":"uuid","payer_id":"uuid","amount":"10"}
func (h *SettlementHandler) Confirm(c *gin.Context) {
	var body struct {
		Reference string          `json:"reference" binding:"required"`
		OfferID   uuid.UUID       `json:"offer_id"  binding:"required"`
		PayerID   uuid.UUID       `json:"payer_id"  binding:"required"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apihandler.RespondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	pc := &domain.PaymentConfirmation{
		Reference:   body.Reference,
		OfferID:     body.OfferID,
		PayerID:     body.PayerID,
		Amount:      body.Amount,
		ConfirmedBy: adminUserID(c),
	}
	if err := h.offerSvc.RecordPaymentConfirmation(c.Request.Context(), pc); err != nil {
		apihandler.RespondServiceError(c, err, "could not record confirmation")
		return
	}
	apihandler.RespondSuccess(c, http.StatusCreated, pc)
}

// Pending godoc
// GET /admin/settlement/confirmations?page=1&limit=50 [settlement, admin]
func (h *SettlementHandler) Pending(c *gin.Context) {
	page, limit := adminPagination(c)
	pcs, err := h.offerSvc.PendingConfirmations(c.Request.Context(), page, limit)
	if err != nil {
		apihandler.RespondServiceError(c, err, "could not list confirmations")
		return
	}
	apihandler.RespondList(c, pcs, page, limit)
}
