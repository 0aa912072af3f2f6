package httpserver

import (
	"time"

	"crazygift/internal/http/handlers"
	"crazygift/internal/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	AllowedOrigins []string
	AdminToken     string
	WebhookSecret  string
	// лимит открытий кейсов, nil отключает
	OpenLimiter *middleware.RateLimiter
}

// NewRouter собирает gin с маршрутами /api, /ws и /metrics
func NewRouter(h *handlers.Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(), middleware.CORS(cfg.AllowedOrigins))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/drops", h.LiveDrops)

	api := r.Group("/api")
	api.GET("/health", h.Health)

	auth := middleware.JWTAuth(h.Tokens)

	users := api.Group("/users")
	users.POST("/auth", h.Authenticate)
	me := users.Group("/me", auth)
	me.GET("", h.MyProfile)
	me.PUT("", h.UpdateProfile)
	me.GET("/balance", h.MyBalance)
	me.GET("/stats", h.MyStats)
	me.GET("/history", h.MyHistory)
	me.GET("/referrals", h.MyReferrals)

	cases := api.Group("/cases")
	cases.GET("", h.ListCases)
	cases.GET("/categories", h.CaseCategories)
	cases.GET("/stats", h.CaseStats)
	cases.GET("/:id", h.GetCase)
	cases.POST("/:id/open", auth, cfg.OpenLimiter.Middleware("open"), h.OpenCase)

	inv := api.Group("/inventory", auth)
	inv.GET("", h.ListInventory)
	inv.GET("/stats", h.InventoryStats)
	inv.GET("/withdrawals", h.MyWithdrawals)
	inv.POST("/:id/sell", h.SellItem)
	inv.POST("/:id/withdraw", h.WithdrawItem)

	admin := api.Group("/admin", middleware.AdminToken(cfg.AdminToken))
	admin.DELETE("/inventory/:id", h.AdminDeleteItem)

	pay := api.Group("/payments")
	pay.POST("/ton/deposit", auth, h.CreateTonDeposit)
	pay.POST("/stars/invoice", auth, h.CreateStarsInvoice)
	pay.GET("/transaction/:id", auth, h.GetTransaction)

	hooks := pay.Group("/webhook", middleware.WebhookSecret(cfg.WebhookSecret))
	hooks.POST("/ton", h.TonWebhook)
	hooks.POST("/telegram", h.TelegramWebhook)

	return r
}

// окно лимитера открытий кейсов
const OpenLimitWindow = time.Minute
