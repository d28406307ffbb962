package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/ibrasoft/cobranca/internal/config"
	"github.com/ibrasoft/cobranca/internal/domain"
	"github.com/ibrasoft/cobranca/internal/handler"
	"github.com/ibrasoft/cobranca/internal/infrastructure/mail"
	"github.com/ibrasoft/cobranca/internal/infrastructure/safe2pay"
	"github.com/ibrasoft/cobranca/internal/middleware"
	"github.com/ibrasoft/cobranca/internal/repository"
	"github.com/ibrasoft/cobranca/internal/service"
	"github.com/ibrasoft/cobranca/internal/telemetry"
	"github.com/ibrasoft/cobranca/internal/whatsapp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const idempotencyTTL = 24 * time.Hour

// AppDependencies holds the dependencies required to start the application
type AppDependencies struct {
	Config      *config.Config
	MongoDB     *mongo.Database
	RedisClient *redis.Client
	Messenger   whatsapp.Messenger
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) *fiber.App {
	// Initialize repositories
	invoiceRepo := repository.NewMongoInvoiceRepository(deps.MongoDB)
	clientRepo := repository.NewMongoClientRepository(deps.MongoDB)
	subscriptionRepo := repository.NewMongoSubscriptionRepository(deps.MongoDB)
	userRepo := repository.NewMongoUserRepository(deps.MongoDB)
	cacheRepo := repository.NewRedisCacheRepository(deps.RedisClient)

	// Media store is optional: bulk campaigns without attachments still work
	var mediaStore service.MediaStore
	if deps.Config.S3.Endpoint != "" {
		s3Repo, err := repository.NewS3MediaRepository(context.Background(), deps.Config.S3)
		if err != nil {
			log.Printf("Warning: Failed to initialize S3 media repository: %v", err)
		} else {
			mediaStore = s3Repo
		}
	}

	// Initialize services
	gatewayConfig := safe2pay.Config{
		APIKey:                       deps.Config.Safe2Pay.APIKey,
		BaseURL:                      deps.Config.Safe2Pay.BaseURL,
		Sandbox:                      deps.Config.Safe2Pay.Sandbox,
		CallbackURL:                  deps.Config.Safe2Pay.CallbackURL,
		BoletoFinePercent:            deps.Config.Safe2Pay.BoletoFinePercent,
		BoletoInterestMonthlyPercent: deps.Config.Safe2Pay.BoletoInterestMonthlyPercent,
	}
	gateway := safe2pay.NewClient(gatewayConfig)
	chargeService := service.NewChargeService(invoiceRepo, gateway, gatewayConfig, deps.Config.Server.PublicBaseURL)
	reconcileService := service.NewReconcileService(invoiceRepo, cacheRepo)

	var mailer mail.Sender
	if deps.Config.Mail.Host != "" {
		mailer = mail.NewMailer(mail.Config{
			Host:     deps.Config.Mail.Host,
			Port:     deps.Config.Mail.Port,
			Username: deps.Config.Mail.User,
			Password: deps.Config.Mail.Password,
			From:     deps.Config.Mail.From,
			FromName: deps.Config.Mail.FromName,
		})
	}

	notifier := service.NewNotifier(invoiceRepo, mailer, deps.Messenger, service.NotifierConfig{
		WhatsAppEnabled: deps.Config.WhatsApp.Enabled,
		FallbackPixKey:  deps.Config.WhatsApp.FallbackKey,
		FromName:        deps.Config.Mail.FromName,
	})
	bulkSender := service.NewBulkSender(clientRepo, deps.Messenger, mediaStore)

	// Initialize handlers
	webhookHandler := handler.NewWebhookHandler(reconcileService)
	invoiceHandler := handler.NewInvoiceHandler(invoiceRepo, clientRepo, chargeService, notifier, cacheRepo)
	publicHandler := handler.NewPublicHandler(invoiceRepo, clientRepo, cacheRepo)
	clientHandler := handler.NewClientHandler(clientRepo)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionRepo, clientRepo)
	whatsappHandler := handler.NewWhatsAppHandler(deps.Messenger, clientRepo, bulkSender)
	authHandler := handler.NewAuthHandler(userRepo, deps.Config.JWT.Secret, 24*time.Hour)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Sistema de Cobrança API",
		BodyLimit:    int(deps.Config.Server.MaxUploadSizeMB * 1024 * 1024),
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	if deps.Config.OTEL.Enabled {
		app.Use(telemetry.FiberMiddleware())
	}

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "sistema-cobranca",
		})
	})

	// Public endpoints: the gateway posts here and payers open their links
	// here, neither carries a token
	app.Post("/api/webhooks/safe2pay", webhookHandler.Safe2PayWebhook)
	app.Get("/public/invoice/:id", publicHandler.GetInvoice)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)

	// Everything below requires a valid access token
	protected := api.Group("")
	protected.Use(middleware.VerifyAccessToken(deps.Config.JWT.Secret))
	protected.Use(middleware.IdempotencyMiddleware(deps.RedisClient, idempotencyTTL))

	protected.Get("/auth/me", authHandler.Me)

	invoices := protected.Group("/invoices")
	invoices.Post("/", invoiceHandler.Create)
	invoices.Get("/:id", invoiceHandler.Get)
	invoices.Put("/:id", invoiceHandler.Update)
	invoices.Post("/:id/notify", invoiceHandler.Notify)
	invoices.Post("/:id/mark-paid", invoiceHandler.MarkPaid)
	invoices.Post("/:id/cancel", invoiceHandler.Cancel)

	subscriptions := protected.Group("/subscriptions")
	subscriptions.Post("/", subscriptionHandler.Create)
	subscriptions.Get("/:id", subscriptionHandler.Get)
	subscriptions.Put("/:id", subscriptionHandler.Update)
	subscriptions.Delete("/:id", subscriptionHandler.Delete)

	clients := protected.Group("/clients")
	clients.Post("/", clientHandler.Create)
	clients.Get("/", clientHandler.List)
	clients.Get("/:id", clientHandler.Get)
	clients.Put("/:id", clientHandler.Update)
	clients.Delete("/:id", clientHandler.Delete)
	clients.Get("/:id/invoices", invoiceHandler.ListByClient)

	wa := protected.Group("/whatsapp")
	wa.Use(middleware.AuthorizeRole(domain.RoleAdmin))
	wa.Get("/status", whatsappHandler.Status)
	wa.Get("/status/detailed", whatsappHandler.DetailedStatus)
	wa.Get("/qrcode", whatsappHandler.QRCode)
	wa.Post("/reconnect", whatsappHandler.Reconnect)
	wa.Get("/clients", whatsappHandler.Clients)
	wa.Post("/send-bulk", whatsappHandler.SendBulk)

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	log.Printf("Error: %v", err)
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
