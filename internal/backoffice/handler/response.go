package handler

import (
	"net/http"
	"strconv"

	apihandler "github.com/afrix/afxledger/internal/api/handler"
	"github.com/afrix/afxledger/internal/api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Admin handlers share the public envelope from internal/api/handler; only
// the request-side helpers differ.

// adminPagination reads ?page and ?limit. Admin views list 50 rows unless
// asked otherwise, up to the services' cap of 100.
func adminPagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 50
	}
	return page, limit
}

// adminUserID is the authenticated operator or collaborator.
func adminUserID(c *gin.Context) uuid.UUID {
	return middleware.GetUserID(c)
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apihandler.RespondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
