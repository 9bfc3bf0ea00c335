package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// RespondSuccess writes {"success": true, "data": data} with the given status.
func RespondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// RespondError writes {"success": false, "error": msg, "code": code}.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// RespondList writes {"success": true, "data": items, "meta": {...}}.
func RespondList(c *gin.Context, items interface{}, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": gin.H{
			"page":  page,
			"limit": limit,
		},
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Error mapping
// ──────────────────────────────────────────────────────────────────────────────

type errorMapping struct {
	target error
	status int
	code   string
}

// errorTable is checked in order; entity errors come before the generic kind
// they wrap.
var errorTable = []errorMapping{
	{domain.ErrInvalidAmount, http.StatusBadRequest, "ERR_INVALID_AMOUNT"},
	{domain.ErrAmountOutOfBounds, http.StatusBadRequest, "ERR_AMOUNT_OUT_OF_BOUNDS"},
	{domain.ErrInsufficientBalance, http.StatusPaymentRequired, "ERR_INSUFFICIENT_BALANCE"},
	// Escrow always covers its remaining amount; a shortfall is a ledger fault.
	{domain.ErrInsufficientLockedBalance, http.StatusInternalServerError, "ERR_INSUFFICIENT_LOCKED_BALANCE"},
	{domain.ErrClaimNotReady, http.StatusTooManyRequests, "ERR_CLAIM_NOT_READY"},
	{domain.ErrPaymentNotConfirmed, http.StatusConflict, "ERR_PAYMENT_NOT_CONFIRMED"},
	{domain.ErrPaymentAlreadyRecorded, http.StatusConflict, "ERR_PAYMENT_ALREADY_RECORDED"},
	{domain.ErrSelfTrade, http.StatusForbidden, "ERR_SELF_TRADE"},
	{domain.ErrNotOfferOwner, http.StatusForbidden, "ERR_NOT_OFFER_OWNER"},
	{domain.ErrForbidden, http.StatusForbidden, "ERR_FORBIDDEN"},
	{domain.ErrOfferNotFound, http.StatusNotFound, "ERR_OFFER_NOT_FOUND"},
	{domain.ErrProfileNotFound, http.StatusNotFound, "ERR_PROFILE_NOT_FOUND"},
	{domain.ErrReferralCodeUnknown, http.StatusNotFound, "ERR_REFERRAL_CODE_UNKNOWN"},
	{domain.ErrNotFound, http.StatusNotFound, "ERR_NOT_FOUND"},
	{domain.ErrOfferNotOpen, http.StatusConflict, "ERR_OFFER_NOT_OPEN"},
	{domain.ErrEscrowClosed, http.StatusConflict, "ERR_ESCROW_CLOSED"},
	{domain.ErrInvalidState, http.StatusConflict, "ERR_INVALID_STATE"},
	{domain.ErrProfileExists, http.StatusConflict, "ERR_PROFILE_EXISTS"},
	{domain.ErrReferralCodeTaken, http.StatusConflict, "ERR_REFERRAL_CODE_TAKEN"},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "ERR_UNAUTHENTICATED"},
}

// RespondServiceError maps a service error onto the response envelope.
// Unknown errors become a 500 with a generic message and are logged.
func RespondServiceError(c *gin.Context, err error, fallback string) {
	if domain.IsValidation(err) {
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			RespondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   ve.Message,
			"code":    "ERR_VALIDATION",
			"field":   ve.Field,
			"rule":    ve.Rule,
		})
		return
	}

	var cnr *domain.ClaimNotReadyError
	if errors.As(err, &cnr) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success":           false,
			"error":             cnr.Error(),
			"code":              "ERR_CLAIM_NOT_READY",
			"time_remaining_ms": cnr.Remaining.Milliseconds(),
			"next_claim_at":     cnr.NextClaimAt,
		})
		return
	}

	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			RespondError(c, m.status, m.code, err.Error())
			return
		}
	}

	zap.L().Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	RespondError(c, http.StatusInternalServerError, "ERR_INTERNAL", fallback)
}

// ──────────────────────────────────────────────────────────────────────────────
// Request helpers
// ──────────────────────────────────────────────────────────────────────────────

// parsePagination reads ?page= and ?limit=; the services clamp the values.
func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
