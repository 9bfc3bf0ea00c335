package backoffice

import (
	"net/http"
	"strings"

	"github.com/afrix/afxledger/internal/api/middleware"
	"github.com/afrix/afxledger/internal/backoffice/handler"
	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/metrics"
	"github.com/afrix/afxledger/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	Sessions    *service.SessionService
	Profiles    *service.ProfileService
	Ledger      *service.LedgerService
	Claims      *service.ClaimService
	Offers      *service.OfferService
	Commissions *service.CommissionService
	Price       *service.PriceService
	Metrics     *metrics.Metrics
	Log         *zap.Logger
	Cfg         *config.Config
}

// SetupBackofficeRouter creates the back-office gin engine. It serves the
// signup and settlement collaborators as well as human operators; every
// route needs a back-office role and an allowlisted IP.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.AccessLog(log, deps.Metrics))
	r.Use(ipAllowlistMiddleware(deps.Cfg.Server.BackofficeAllowedIPs))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	profileH := handler.NewProfileAdminHandler(deps.Profiles, deps.Ledger, deps.Claims, deps.Commissions)
	settleH := handler.NewSettlementHandler(deps.Offers)
	financeH := handler.NewFinanceHandler(deps.Ledger, deps.Price)

	admin := r.Group("/admin")
	admin.Use(middleware.JWTMiddleware(deps.Sessions), middleware.BackofficeMiddleware())
	{
		admin.POST("/profiles",
			middleware.RoleMiddleware(domain.RoleSignup, domain.RoleAdmin), profileH.Onboard)

		u := admin.Group("/users")
		u.Use(middleware.RoleMiddleware(domain.RoleAdmin, domain.RoleFinance))
		{
			u.GET("", profileH.List)
			u.GET("/:id", profileH.Detail)
		}

		s := admin.Group("/settlement")
		s.Use(middleware.RoleMiddleware(domain.RoleSettlement, domain.RoleAdmin))
		{
			s.POST("/confirmations", settleH.Confirm)
			s.GET("/confirmations", settleH.Pending)
		}

		fin := admin.Group("/finance")
		fin.Use(middleware.RoleMiddleware(domain.RoleFinance, domain.RoleAdmin))
		{
			fin.GET("/supply", financeH.Supply)
			fin.GET("/transactions", financeH.Transactions)
		}
	}

	return r
}

// ── IP allowlist middleware ───────────────────────────────────────────────────

// ipAllowlistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all.
func ipAllowlistMiddleware(allowedIPs string) gin.HandlerFunc {
	if allowedIPs == "" {
		return func(c *gin.Context) { c.Next() }
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		if !allowed[c.ClientIP()] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "access denied: your IP is not allowlisted",
				"code":    "ERR_IP_NOT_ALLOWED",
			})
			return
		}
		c.Next()
	}
}
