package middleware

import (
	"net/http"
	"strings"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Keys under which the auth middleware stores the caller on the gin context.
const (
	CtxUserID = "userID"
	CtxRole   = "role"
)

// TokenVerifier resolves a bearer token to its claims.
type TokenVerifier interface {
	ParseAccessToken(token string) (*service.AppClaims, error)
}

// JWTMiddleware requires a valid bearer token and records the caller's id
// and role for downstream handlers.
func JWTMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			deny(c, http.StatusUnauthorized, "ERR_UNAUTHENTICATED", domain.ErrUnauthenticated)
			return
		}
		claims, err := verifier.ParseAccessToken(raw)
		if err != nil {
			deny(c, http.StatusUnauthorized, "ERR_UNAUTHENTICATED", domain.ErrTokenInvalid)
			return
		}
		id, err := claims.UserID()
		if err != nil {
			deny(c, http.StatusUnauthorized, "ERR_UNAUTHENTICATED", domain.ErrTokenInvalid)
			return
		}
		c.Set(CtxUserID, id)
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

// RoleMiddleware admits callers holding any of roles. It reads what
// JWTMiddleware stored, so it must run after it.
func RoleMiddleware(roles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := domain.UserRole(GetRole(c))
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		deny(c, http.StatusForbidden, "ERR_FORBIDDEN", domain.ErrForbidden)
	}
}

// BackofficeMiddleware admits every role except plain users.
func BackofficeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !domain.UserRole(GetRole(c)).CanAccessBackoffice() {
			deny(c, http.StatusForbidden, "ERR_FORBIDDEN", domain.ErrForbidden)
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated caller, or uuid.Nil on routes
// without JWTMiddleware.
func GetUserID(c *gin.Context) uuid.UUID {
	id, _ := c.Value(CtxUserID).(uuid.UUID)
	return id
}

// GetRole returns the authenticated caller's role, or "".
func GetRole(c *gin.Context) string {
	role, _ := c.Value(CtxRole).(string)
	return role
}

func bearerToken(c *gin.Context) (string, bool) {
	scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
	if !found || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}

func deny(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    code,
	})
}
