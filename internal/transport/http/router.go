package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/0xRedwolf/caryvn-backend/internal/auth"
	"github.com/0xRedwolf/caryvn-backend/internal/catalog"
	"github.com/0xRedwolf/caryvn-backend/internal/config"
	"github.com/0xRedwolf/caryvn-backend/internal/ledger"
	"github.com/0xRedwolf/caryvn-backend/internal/orders"
	"github.com/0xRedwolf/caryvn-backend/internal/payment"
	"github.com/0xRedwolf/caryvn-backend/internal/provider"
	"github.com/0xRedwolf/caryvn-backend/internal/repo"
)

// Deps bundles everything the routes need.
type Deps struct {
	Repo       repo.RepositoryInterface
	Ledger     *ledger.Ledger
	Engine     *orders.Engine
	Reconciler *payment.Reconciler
	Syncer     *catalog.Syncer
	Provider   *provider.Client
	Tokens     *auth.TokenManager
	Log        *zap.SugaredLogger
}

func NewRouter(d Deps, rl config.RateLimitConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(d.Log))
	r.Use(MetricsMiddleware())
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")

	// Signature-authenticated, no bearer token.
	v1.POST("/payments/webhook", webhookHandler(d.Reconciler))

	authed := v1.Group("", AuthMiddleware(d.Tokens))
	{
		authed.GET("/wallet/balance", balanceHandler(d.Ledger))
		authed.GET("/wallet/transactions", historyHandler(d.Ledger))

		authed.GET("/services", listServicesHandler(d))

		authed.POST("/orders", placeOrderHandler(d.Engine))
		authed.GET("/orders", listOrdersHandler(d.Engine))
		authed.GET("/orders/:id", getOrderHandler(d.Engine))

		authed.POST("/payments/topup", topupHandler(d.Reconciler))
		authed.GET("/payments/verify/:reference", verifyTopupHandler(d.Reconciler))
	}

	admin := v1.Group("/admin", AuthMiddleware(d.Tokens), RequireAdmin())
	{
		admin.POST("/services/sync", syncServicesHandler(d))
		admin.POST("/orders/sync", syncOrdersHandler(d.Engine))
		admin.POST("/orders/:id/refund", refundOrderHandler(d.Engine))
		admin.POST("/orders/:id/retry", retryOrderHandler(d.Engine))
		admin.GET("/markup-rules", listMarkupRulesHandler(d))
		admin.POST("/markup-rules", createMarkupRuleHandler(d))
		admin.PUT("/markup-rules/:id", updateMarkupRuleHandler(d))
		admin.GET("/provider/balance", providerBalanceHandler(d))
		admin.GET("/api-logs", listAPILogsHandler(d))
	}

	return r
}
