package handler

import (
	"net/http"

	"github.com/afrix/afxledger/internal/api/middleware"
	"github.com/afrix/afxledger/internal/service"
	"github.com/gin-gonic/gin"
)

// WalletHandler serves balance, transaction and trade history endpoints.
type WalletHandler struct {
	ledgerSvc *service.LedgerService
	offerSvc  *service.OfferService
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(ledgerSvc *service.LedgerService, offerSvc *service.OfferService) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc, offerSvc: offerSvc}
}

// GetBalance godoc
// GET /api/wallet/balance [JWT]
// Response: {"available":"12.5","locked":"50","total":"62.5"}
func (h *WalletHandler) GetBalance(c *gin.Context) {
	b, err := h.ledgerSvc.Balances(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		RespondServiceError(c, err, "could not fetch balance")
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{
		"available": b.Available,
		"locked":    b.Locked,
		"total":     b.Total(),
	})
}

// GetTransactions godoc
// GET /api/wallet/transactions?page=1&limit=20 [JWT]
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	page, limit := parsePagination(c)
	txs, err := h.ledgerSvc.Transactions(c.Request.Context(), middleware.GetUserID(c), page, limit)
	if err != nil {
		RespondServiceError(c, err, "could not fetch transactions")
		return
	}
	RespondList(c, txs, page, limit)
}

// GetTrades godoc
// GET /api/wallet/trades?page=1&limit=20 [JWT]
// Trades on either side, newest first.
func (h *WalletHandler) GetTrades(c *gin.Context) {
	page, limit := parsePagination(c)
	trades, err := h.offerSvc.UserTrades(c.Request.Context(), middleware.GetUserID(c), page, limit)
	if err != nil {
		RespondServiceError(c, err, "could not fetch trades")
		return
	}
	RespondList(c, trades, page, limit)
}
