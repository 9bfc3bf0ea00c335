package handler

import (
	"net/http"

	apihandler "github.com/afrix/afxledger/internal/api/handler"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/service"
	"github.com/gin-gonic/gin"
)

// FinanceHandler serves /admin/finance endpoints.
type FinanceHandler struct {
	ledgerSvc *service.LedgerService
	priceSvc  *service.PriceService
}

// NewFinanceHandler creates a FinanceHandler.
func NewFinanceHandler(ledgerSvc *service.LedgerService, priceSvc *service.PriceService) *FinanceHandler {
	return &FinanceHandler{ledgerSvc: ledgerSvc, priceSvc: priceSvc}
}

// Supply godoc
// GET /admin/finance/supply [finance, admin]
// Response: {"available":"...","locked":"...","minted":"...","circulating":"...","balanced":true,
//
//	"reference_price":"16","market_cap":"..."}
func (h *FinanceHandler) Supply(c *gin.Context) {
	ctx := c.Request.Context()
	sup, err := h.ledgerSvc.Supply(ctx)
	if err != nil {
		apihandler.RespondServiceError(c, err, "could not compute supply")
		return
	}
	out := gin.H{
		"available":   sup.Available,
		"locked":      sup.Locked,
		"minted":      sup.Minted,
		"circulating": sup.Circulating(),
		"balanced":    sup.Balanced(),
	}
	if q, err := h.priceSvc.ReferencePrice(ctx); err == nil {
		out["reference_price"] = q.Price
		out["market_cap"] = sup.Circulating().Mul(q.Price)
	}
	apihandler.RespondSuccess(c, http.StatusOK, out)
}

// Transactions godoc
// GET /admin/finance/transactions?kind=trade_buy&page=1&limit=50 [finance, admin]
func (h *FinanceHandler) Transactions(c *gin.Context) {
	page, limit := adminPagination(c)
	kind := domain.TxKind(c.Query("kind"))
	txs, err := h.ledgerSvc.AllTransactions(c.Request.Context(), kind, page, limit)
	if err != nil {
		apihandler.RespondServiceError(c, err, "could not list transactions")
		return
	}
	apihandler.RespondList(c, txs, page, limit)
}
