package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ronalking182/errandpay/internal/config"
	"github.com/ronalking182/errandpay/internal/gateway"
	"github.com/ronalking182/errandpay/internal/handler"
	"github.com/ronalking182/errandpay/internal/middleware"
	"github.com/ronalking182/errandpay/internal/notify"
	"github.com/ronalking182/errandpay/internal/repository"
)

// Setup configures all routes for the Echo server and returns the checkout
// handler, which owns the live session registry.
func Setup(
	e *echo.Echo,
	cfg *config.Config,
	db *gorm.DB,
	gw gateway.Gateway,
	reporter *notify.Reporter,
	webhookDeduper middleware.WebhookDeduper,
	logger *zap.Logger,
) *handler.CheckoutHandler {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())

	sessionRepo := repository.NewSessionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	checkoutHandler := handler.NewCheckoutHandler(cfg, gw, sessionRepo, paymentRepo, reporter, logger)
	callbackHandler := handler.NewPaymentCallbackHandler(gw, sessionRepo, paymentRepo, checkoutHandler, reporter, logger)

	// Session API used by the mobile/web clients.
	checkoutGroup := e.Group("/checkout")
	checkoutGroup.Use(middleware.APIAuth(cfg.API.Key))
	checkoutGroup.POST("/sessions", checkoutHandler.OpenSession)
	checkoutGroup.GET("/sessions/:id", checkoutHandler.GetSession)
	checkoutGroup.POST("/sessions/:id/navigation", checkoutHandler.Navigation)
	checkoutGroup.POST("/sessions/:id/message", checkoutHandler.Message)
	checkoutGroup.POST("/sessions/:id/load-error", checkoutHandler.LoadError)
	checkoutGroup.POST("/sessions/:id/surface-closed", checkoutHandler.SurfaceClosed)
	checkoutGroup.POST("/sessions/:id/close", checkoutHandler.CloseSession)
	checkoutGroup.POST("/sessions/:id/retry", checkoutHandler.Retry)

	// Gateway-facing routes.
	paymentGroup := e.Group("/payment")
	paymentGroup.POST("/webhook", callbackHandler.Webhook, middleware.GatewayWebhookDedup(webhookDeduper))
	paymentGroup.GET("/callback", callbackHandler.CallbackPage)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return checkoutHandler
}
