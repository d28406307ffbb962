package main

import (
	"context"
	"encoding/base64"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ibrasoft/cobranca/internal/config"
	"github.com/ibrasoft/cobranca/internal/infrastructure/mail"
	"github.com/ibrasoft/cobranca/internal/infrastructure/safe2pay"
	"github.com/ibrasoft/cobranca/internal/repository"
	"github.com/ibrasoft/cobranca/internal/server"
	"github.com/ibrasoft/cobranca/internal/service"
	"github.com/ibrasoft/cobranca/internal/telemetry"
	"github.com/ibrasoft/cobranca/internal/whatsapp"
	"github.com/ibrasoft/cobranca/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Starting Sistema de Cobrança...")

	// Initialize OpenTelemetry (for Grafana Cloud)
	ctx := context.Background()

	// Grafana Cloud requires Basic auth with instanceId:apiToken base64 encoded
	authString := cfg.OTEL.InstanceID + ":" + cfg.OTEL.Token
	authEncoded := base64.StdEncoding.EncodeToString([]byte(authString))

	otelProvider, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.OTEL.ServiceName,
		ServiceVersion: cfg.OTEL.ServiceVersion,
		Environment:    cfg.OTEL.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
		OTLPHeaders: map[string]string{
			"Authorization": "Basic " + authEncoded,
		},
		Enabled: cfg.OTEL.Enabled,
	})
	if err != nil {
		log.Printf("Warning: Failed to initialize OpenTelemetry: %v", err)
	}
	if otelProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			otelProvider.Shutdown(shutdownCtx)
		}()
	}

	// Connect to MongoDB with OpenTelemetry instrumentation
	ctxMongo, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoOpts := options.Client().ApplyURI(cfg.MongoDB.URI)
	// Add OTEL monitor for MongoDB tracing
	if cfg.OTEL.Enabled {
		mongoOpts.SetMonitor(otelmongo.NewMonitor())
	}

	mongoClient, err := mongo.Connect(ctxMongo, mongoOpts)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	// Ping MongoDB to verify connection
	if err := mongoClient.Ping(ctxMongo, nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	log.Println("✓ MongoDB connected")

	mongoDB := mongoClient.Database(cfg.MongoDB.Database)

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	defer redisClient.Close()

	// Ping Redis to verify connection
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("✓ Redis connected")

	messenger := buildMessenger(cfg)

	// Initialize App using Server package
	app := server.NewApp(server.AppDependencies{
		Config:      cfg,
		MongoDB:     mongoDB,
		RedisClient: redisClient,
		Messenger:   messenger,
	})

	// Recurring billing: daily subscription run + overdue sweep
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	startScheduler(schedulerCtx, cfg, mongoDB, redisClient, messenger)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down gracefully...")
		stopScheduler()
		app.Shutdown()
	}()

	// Start server
	log.Printf("🚀 Server starting on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// buildMessenger picks the messaging transport for the configured provider.
// A nil messenger degrades every chat send to a manual-fallback result.
func buildMessenger(cfg *config.Config) whatsapp.Messenger {
	if !cfg.WhatsApp.Enabled {
		log.Println("WhatsApp desativado; envios degradam para fallback manual")
		return nil
	}

	switch cfg.WhatsApp.Provider {
	case config.WhatsAppProviderEvolution:
		log.Printf("✓ WhatsApp via Evolution API (instância %s)", cfg.WhatsApp.Evolution.InstanceName)
		return whatsapp.NewEvolution(
			cfg.WhatsApp.Evolution.URL,
			cfg.WhatsApp.Evolution.APIKey,
			cfg.WhatsApp.Evolution.InstanceName,
		)
	default:
		log.Printf("WhatsApp provider %q sem transporte configurado; envios degradam para fallback manual", cfg.WhatsApp.Provider)
		return nil
	}
}

func startScheduler(ctx context.Context, cfg *config.Config, db *mongo.Database, redisClient *redis.Client, messenger whatsapp.Messenger) {
	invoiceRepo := repository.NewMongoInvoiceRepository(db)
	clientRepo := repository.NewMongoClientRepository(db)
	subscriptionRepo := repository.NewMongoSubscriptionRepository(db)
	cacheRepo := repository.NewRedisCacheRepository(redisClient)

	gatewayConfig := safe2pay.Config{
		APIKey:                       cfg.Safe2Pay.APIKey,
		BaseURL:                      cfg.Safe2Pay.BaseURL,
		Sandbox:                      cfg.Safe2Pay.Sandbox,
		CallbackURL:                  cfg.Safe2Pay.CallbackURL,
		BoletoFinePercent:            cfg.Safe2Pay.BoletoFinePercent,
		BoletoInterestMonthlyPercent: cfg.Safe2Pay.BoletoInterestMonthlyPercent,
	}
	charges := service.NewChargeService(invoiceRepo, safe2pay.NewClient(gatewayConfig), gatewayConfig, cfg.Server.PublicBaseURL)

	var mailer mail.Sender
	if cfg.Mail.Host != "" {
		mailer = mail.NewMailer(mail.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.User,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
		})
	}
	notifier := service.NewNotifier(invoiceRepo, mailer, messenger, service.NotifierConfig{
		WhatsAppEnabled: cfg.WhatsApp.Enabled,
		FallbackPixKey:  cfg.WhatsApp.FallbackKey,
		FromName:        cfg.Mail.FromName,
	})

	scheduler := worker.NewScheduler(subscriptionRepo, invoiceRepo, clientRepo, charges, notifier, cacheRepo)
	scheduler.Start(ctx)
	log.Println("✓ Billing scheduler started")
}
