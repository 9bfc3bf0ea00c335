package handler

import (
	"net/http"

	"github.com/afrix/afxledger/internal/api/middleware"
	"github.com/afrix/afxledger/internal/service"
	"github.com/gin-gonic/gin"
)

// ReferralHandler serves the referral summary.
type ReferralHandler struct {
	commissionSvc *service.CommissionService
}

// NewReferralHandler creates a ReferralHandler.
func NewReferralHandler(commissionSvc *service.CommissionService) *ReferralHandler {
	return &ReferralHandler{commissionSvc: commissionSvc}
}

// Summary godoc
// GET /api/referrals/summary [JWT]
func (h *ReferralHandler) Summary(c *gin.Context) {
	sum, err := h.commissionSvc.Summary(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		RespondServiceError(c, err, "could not fetch referral summary")
		return
	}
	RespondSuccess(c, http.StatusOK, sum)
}
