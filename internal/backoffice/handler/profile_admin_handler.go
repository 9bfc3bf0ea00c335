package handler

import (
	"net/http"

	apihandler "github.com/afrix/afxledger/internal/api/handler"
	"github.com/afrix/afxledger/internal/service"
	"github.com/gin-gonic/gin"
)

// ProfileAdminHandler serves /admin/profiles and /admin/users.
type ProfileAdminHandler struct {
	profileSvc *service.ProfileService
	ledgerSvc  *service.LedgerService
	claimSvc   *service.ClaimService
	commSvc    *service.CommissionService
}

// NewProfileAdminHandler creates a ProfileAdminHandler.
func NewProfileAdminHandler(
	profileSvc *service.ProfileService,
	ledgerSvc *service.LedgerService,
	claimSvc *service.ClaimService,
	commSvc *service.CommissionService,
) *ProfileAdminHandler {
	return &ProfileAdminHandler{profileSvc: profileSvc, ledgerSvc: ledgerSvc, claimSvc: claimSvc, commSvc: commSvc}
}

// Onboard godoc
// POST /admin/profiles [signup, admin]
// Body: {"user_id":"uuid","referral_code":"OPTIONAL","referrer_code":"OPTIONAL"}
func (h *ProfileAdminHandler) Onboard(c *gin.Context) {
	var req service.OnboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apihandler.RespondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	p, err := h.profileSvc.Onboard(c.Request.Context(), req)
	if err != nil {
		apihandler.RespondServiceError(c, err, "could not create profile")
		return
	}
	apihandler.RespondSuccess(c, http.StatusCreated, p)
}

// List godoc
// GET /admin/users?page=1&limit=50 [admin, finance]
func (h *ProfileAdminHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	profiles, err := h.profileSvc.List(c.Request.Context(), page, limit)
	if err != nil {
		apihandler.RespondServiceError(c, err, "could not list profiles")
		return
	}
	apihandler.RespondList(c, profiles, page, limit)
}

// Detail godoc
// GET /admin/users/:id [admin, finance]
// Response: profile, balances, claim status and referral summary.
func (h *ProfileAdminHandler) Detail(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	p, err := h.profileSvc.GetProfile(ctx, id)
	if err != nil {
		apihandler.RespondServiceError(c, err, "could not fetch profile")
		return
	}
	bal, err := h.ledgerSvc.Balances(ctx, id)
	if err != nil {
		apihandler.RespondServiceError(c, err, "could not fetch balances")
		return
	}
	claim, err := h.claimSvc.Status(ctx, id)
	if err != nil {
		apihandler.RespondServiceError(c, err, "could not fetch claim status")
		return
	}
	referrals, err := h.commSvc.Summary(ctx, id)
	if err != nil {
		apihandler.RespondServiceError(c, err, "could not fetch referrals")
		return
	}

	apihandler.RespondSuccess(c, http.StatusOK, gin.H{
		"profile":   p,
		"balances":  bal,
		"claim":     claim,
		"referrals": referrals,
	})
}
