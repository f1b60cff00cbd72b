package routes

import (
	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/edupartner/edupartner_backend/controllers"
	"github.com/edupartner/edupartner_backend/middleware"
	"github.com/edupartner/edupartner_backend/repositories"
	"github.com/edupartner/edupartner_backend/services"
	"github.com/edupartner/edupartner_backend/websocket"
)

// SetupRoutes configures all API routes by calling individual route
// registration functions
func SetupRoutes(e *echo.Echo, db *mongo.Database, cache *redis.Client, hub *websocket.Hub) {
	purchaseRepo := repositories.NewPurchaseRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	commissionRepo := repositories.NewCommissionRepository(db)

	gateway := services.NewPayGateService()
	commissionService := services.NewCommissionService(orgRepo, purchaseRepo, commissionRepo, hub)
	payoutService := services.NewPayoutService(commissionRepo, hub)

	authController := controllers.NewAuthController(db)
	purchaseController := controllers.NewPurchaseController(purchaseRepo, orgRepo, commissionService, gateway)
	webhookController := controllers.NewPaymentWebhookController(purchaseRepo, commissionService)
	commissionController := controllers.NewCommissionController(commissionRepo, payoutService, cache)
	organizationController := controllers.NewOrganizationController(orgRepo)

	// Public routes
	e.POST("/api/auth/login", authController.Login)
	e.POST("/api/paygate/webhook", webhookController.HandlePaymentCaptured)

	// Buyer routes
	purchases := e.Group("/api/purchases")
	purchases.Use(middleware.JWTMiddleware())
	purchases.POST("", purchaseController.CreatePurchase)
	purchases.POST("/:id/verify", purchaseController.VerifyPurchasePayment)

	// Admin event feed; auth happens inside the handshake handler because
	// browsers cannot set headers on WebSocket upgrades.
	e.GET("/ws/admin", func(c echo.Context) error {
		return websocket.HandleAdminFeed(c, hub)
	})

	RegisterAdminRoutes(e, commissionController, organizationController)
}
