package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"settlement/internal/live"
	"settlement/internal/middleware"
	"settlement/internal/service"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Tabs     service.OrderTabService
	Orders   service.OrderService
	Payments service.PaymentService
	Sessions service.PosSessionService
	Rates    service.RateService
	Carts    service.CartService
	Revenue  service.RevenueService
	Audit    service.AuditService
	Catalog  service.CatalogService
}

type RouterConfig struct {
	Services       Services
	Broker         *live.Broker
	Limiter        *middleware.RateLimiter
	JWTSecret      []byte
	AllowedOrigins []string
	KeepAlive      time.Duration
	WebhookToken   string
	Ping           Pinger
	Log            logrus.FieldLogger
}

// NewRouter assembles the gin engine: ambient middleware, docs, health, the
// WebSocket endpoint and every /api route.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(cfg.Log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.SessionHeader, middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.SessionHeader, middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	if len(corsConfig.AllowOrigins) > 0 {
		router.Use(cors.New(corsConfig))
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", NewHealthHandler(cfg.Ping).Health)

	identity := middleware.Identity(cfg.JWTSecret)
	liveHandler := NewLiveHandler(cfg.Broker, cfg.Services.Orders, cfg.KeepAlive, cfg.Log)
	router.GET("/ws", identity, liveHandler.ServeWS)

	api := router.Group("/api", identity)
	NewWebhookHandler(cfg.Services.Payments, cfg.Limiter, cfg.WebhookToken).RegisterRoutes(api)

	terminal := api.Group("", cfg.Limiter.Middleware(middleware.BySession))
	NewOrderTabHandler(cfg.Services.Tabs, cfg.Services.Orders).RegisterRoutes(terminal)
	NewCartHandler(cfg.Services.Carts, cfg.Services.Orders).RegisterRoutes(terminal)
	NewOrderHandler(cfg.Services.Orders, cfg.Services.Payments).RegisterRoutes(terminal)
	NewPosSessionHandler(cfg.Services.Sessions).RegisterRoutes(terminal)
	NewRateHandler(cfg.Services.Rates).RegisterRoutes(terminal)
	NewCatalogHandler(cfg.Services.Catalog).RegisterRoutes(terminal)
	NewReportHandler(cfg.Services.Revenue, cfg.Services.Audit).RegisterRoutes(terminal)
	liveHandler.RegisterRoutes(api)

	return router
}
