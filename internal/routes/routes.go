package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/brickline/internal/config"
	"github.com/example/brickline/internal/handlers"
	"github.com/example/brickline/internal/middleware"
	"github.com/example/brickline/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)

	orderService := services.NewOrderService(db, telegramService)
	webhookService := services.NewWebhookService(db, telegramService)
	inventoryService := services.NewInventoryService(db)

	authHandler := handlers.NewAuthHandler(db, cfg)
	productHandler := handlers.NewProductHandler(db)
	orderHandler := handlers.NewOrderHandler(db, orderService)
	paymentHandler := handlers.NewPaymentHandler(db, webhookService, cfg)
	adminOrderHandler := handlers.NewAdminOrderHandler(db, orderService)
	inventoryHandler := handlers.NewInventoryHandler(inventoryService)
	couponHandler := handlers.NewCouponHandler(db)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Public catalog
	products := api.Group("/products")
	products.Get("/", productHandler.List)
	products.Get("/:id", productHandler.Get)

	// Provider webhook: HMAC-signed, no user auth
	api.Post("/payments/webhook", middleware.WebhookAuthMiddleware(cfg.WebhookSigningKey), paymentHandler.Webhook)

	// Customer routes
	authorized := api.Group("", middleware.AuthMiddleware(cfg))
	authorized.Post("/orders", orderHandler.CreateOrder)
	authorized.Get("/orders", orderHandler.ListOrders)
	authorized.Get("/orders/:id", orderHandler.GetOrder)
	authorized.Post("/payments/checkout", paymentHandler.Checkout)

	// Back office
	admin := api.Group("/admin", middleware.AuthMiddleware(cfg), middleware.AdminMiddleware(db))

	admin.Get("/orders", adminOrderHandler.ListOrders)
	admin.Get("/orders/:id", adminOrderHandler.GetOrder)
	admin.Post("/orders/:id/transition", adminOrderHandler.Transition)
	admin.Post("/orders/:id/ship", adminOrderHandler.MarkShipped)
	admin.Post("/orders/:id/refund", adminOrderHandler.Refund)

	admin.Get("/inventory", inventoryHandler.List)
	admin.Post("/inventory/:productId/adjust", inventoryHandler.AdjustStock)
	admin.Put("/inventory/:productId/safety-stock", inventoryHandler.SetSafetyStock)
	admin.Get("/inventory/:productId/movements", inventoryHandler.Movements)

	admin.Post("/products", productHandler.Create)
	admin.Put("/products/:id", productHandler.Update)

	admin.Get("/coupons", couponHandler.List)
	admin.Post("/coupons", couponHandler.Create)
	admin.Get("/coupons/:id", couponHandler.Get)
	admin.Put("/coupons/:id", couponHandler.Update)
	admin.Get("/coupons/:id/usages", couponHandler.Usages)
}
