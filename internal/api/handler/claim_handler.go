package handler

import (
	"net/http"

	"github.com/afrix/afxledger/internal/api/middleware"
	"github.com/afrix/afxledger/internal/service"
	"github.com/gin-gonic/gin"
)

// ClaimHandler serves the cooldown claim endpoints.
type ClaimHandler struct {
	claimSvc *service.ClaimService
}

// NewClaimHandler creates a ClaimHandler.
func NewClaimHandler(claimSvc *service.ClaimService) *ClaimHandler {
	return &ClaimHandler{claimSvc: claimSvc}
}

// Claim godoc
// POST /api/claim [JWT]
func (h *ClaimHandler) Claim(c *gin.Context) {
	res, err := h.claimSvc.Claim(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		RespondServiceError(c, err, "could not claim")
		return
	}
	RespondSuccess(c, http.StatusCreated, res)
}

// Status godoc
// GET /api/claim/status [JWT]
func (h *ClaimHandler) Status(c *gin.Context) {
	st, err := h.claimSvc.Status(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		RespondServiceError(c, err, "could not fetch claim status")
		return
	}
	RespondSuccess(c, http.StatusOK, st)
}
