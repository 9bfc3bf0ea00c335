package api

import (
	"net/http"

	"github.com/afrix/afxledger/internal/api/handler"
	"github.com/afrix/afxledger/internal/api/middleware"
	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/metrics"
	"github.com/afrix/afxledger/internal/service"
	"github.com/afrix/afxledger/internal/ws"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	Sessions    *service.SessionService
	Claims      *service.ClaimService
	Ledger      *service.LedgerService
	Offers      *service.OfferService
	Commissions *service.CommissionService
	Price       *service.PriceService
	Rules       domain.OfferRules
	Hub         *ws.Hub
	Metrics     *metrics.Metrics
	Log         *zap.Logger
	Cfg         *config.Config
}

// SetupRouter creates the public gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
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
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health / metrics ─────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	// ── Handlers ─────────────────────────────────────────────────────────────
	claimH := handler.NewClaimHandler(deps.Claims)
	walletH := handler.NewWalletHandler(deps.Ledger, deps.Offers)
	offerH := handler.NewOfferHandler(deps.Offers, deps.Price)
	referralH := handler.NewReferralHandler(deps.Commissions)
	priceH := handler.NewPriceHandler(deps.Price, deps.Rules)

	jwtMW := middleware.JWTMiddleware(deps.Sessions)

	// ── Rate limiters ────────────────────────────────────────────────────────
	claimRL := middleware.RateLimitMiddleware(2)
	tradeRL := middleware.RateLimitMiddleware(20)
	readRL := middleware.RateLimitMiddleware(50)

	api := r.Group("/api")
	{
		// ── Public ──────────────────────────────────────────────────────────
		api.GET("/price", readRL, priceH.GetPrice)
		api.GET("/offers", readRL, offerH.List)
		api.GET("/offers/:id", readRL, offerH.GetByID)

		// ── Authenticated ───────────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			claim := authed.Group("/claim")
			{
				claim.POST("", claimRL, claimH.Claim)
				claim.GET("/status", claimH.Status)
			}

			wallet := authed.Group("/wallet")
			{
				wallet.GET("/balance", walletH.GetBalance)
				wallet.GET("/transactions", walletH.GetTransactions)
				wallet.GET("/trades", walletH.GetTrades)
			}

			offers := authed.Group("/offers")
			offers.Use(tradeRL)
			{
				offers.POST("/sell", offerH.CreateSell)
				offers.POST("/buy", offerH.CreateBuy)
				offers.GET("/my", offerH.ListMine)
				offers.POST("/:id/cancel", offerH.Cancel)
				offers.POST("/:id/trades", offerH.Fill)
				offers.GET("/:id/trades", offerH.Trades)
			}

			authed.GET("/referrals/summary", referralH.Summary)
		}
	}

	// ── WebSocket ────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware echoes allowed origins. With no AllowedOrigins configured
// (development) every origin is allowed.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		switch {
		case len(allowed) == 0 || allowed["*"]:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
