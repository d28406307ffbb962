package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	MongoDB  MongoDBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Safe2Pay Safe2PayConfig
	Mail     MailConfig
	WhatsApp WhatsAppConfig
	S3       S3Config
	OTEL     OTELConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	PublicBaseURL   string // base URL used to build public invoice links
	MaxUploadSizeMB int64
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
}

// JWTConfig holds token signing configuration
type JWTConfig struct {
	Secret string
}

// Safe2PayConfig holds payment gateway configuration
type Safe2PayConfig struct {
	APIKey                       string
	BaseURL                      string
	Sandbox                      bool
	CallbackURL                  string  // webhook URL registered with the gateway
	BoletoFinePercent            float64 // penalty charged after the due date
	BoletoInterestMonthlyPercent float64
}

// MailConfig holds SMTP configuration
type MailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// WhatsApp provider modes
const (
	WhatsAppProviderWeb       = "whatsapp-web"
	WhatsAppProviderEvolution = "evolution"
)

// WhatsAppConfig holds messaging configuration
type WhatsAppConfig struct {
	Enabled     bool   // when false, chat sends degrade to manual-fallback results
	Provider    string // whatsapp-web | evolution
	SessionID   string // direct-client session identity, reused across reconnects
	FallbackKey string // static PIX key shown in messages for manual payment
	Evolution   EvolutionConfig
}

// EvolutionConfig holds the hosted WhatsApp API configuration
type EvolutionConfig struct {
	URL          string
	APIKey       string
	InstanceName string
}

// S3Config holds the media store configuration (S3-compatible)
type S3Config struct {
	Endpoint string
	Region   string
	Bucket   string
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	InstanceID     string
	Token          string
}

// Load reads configuration from environment variables
// It attempts to load from .env file first, then falls back to system env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			MaxUploadSizeMB: getEnvAsInt64("MAX_UPLOAD_SIZE_MB", 16),
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "cobranca"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Safe2Pay: Safe2PayConfig{
			APIKey:                       getEnv("SAFE2PAY_API_KEY", ""),
			BaseURL:                      getEnv("SAFE2PAY_BASE_URL", "https://payment.safe2pay.com.br/v2"),
			Sandbox:                      getEnvAsBool("SAFE2PAY_SANDBOX", false),
			CallbackURL:                  getEnv("SAFE2PAY_CALLBACK_URL", ""),
			BoletoFinePercent:            getEnvAsFloat("SAFE2PAY_BOLETO_FINE_PERCENT", 1),
			BoletoInterestMonthlyPercent: getEnvAsFloat("SAFE2PAY_BOLETO_INTEREST_MONTHLY_PERCENT", 2),
		},
		Mail: MailConfig{
			Host:     getEnv("EMAIL_HOST", ""),
			Port:     int(getEnvAsInt64("EMAIL_PORT", 587)),
			User:     getEnv("EMAIL_USER", ""),
			Password: getEnv("EMAIL_PASS", ""),
			From:     getEnv("EMAIL_FROM", "naoresponda@localhost"),
			FromName: getEnv("EMAIL_FROM_NAME", "Financeiro"),
		},
		WhatsApp: WhatsAppConfig{
			Enabled:     getEnvAsBool("WHATSAPP_ENABLED", false),
			Provider:    getEnv("WHATSAPP_PROVIDER", WhatsAppProviderWeb),
			SessionID:   getEnv("WHATSAPP_SESSION_ID", "sistema-cobranca-v2"),
			FallbackKey: getEnv("WHATSAPP_FALLBACK_PIX_KEY", ""),
			Evolution: EvolutionConfig{
				URL:          strings.TrimRight(getEnv("EVOLUTION_API_URL", ""), "/"),
				APIKey:       getEnv("EVOLUTION_API_KEY", ""),
				InstanceName: getEnv("EVOLUTION_INSTANCE_NAME", "cobranca"),
			},
		},
		S3: S3Config{
			Endpoint: getEnv("S3_ENDPOINT", ""),
			Region:   getEnv("S3_REGION", "us-east-1"),
			Bucket:   getEnv("S3_BUCKET", "cobranca-media"),
		},
		OTEL: OTELConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "cobranca-api"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("OTEL_ENVIRONMENT", "development"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			InstanceID:     getEnv("OTEL_INSTANCE_ID", ""),
			Token:          getEnv("OTEL_TOKEN", ""),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Safe2Pay.APIKey == "" {
		return fmt.Errorf("SAFE2PAY_API_KEY is required")
	}
	if c.WhatsApp.Provider == WhatsAppProviderEvolution && c.WhatsApp.Evolution.URL == "" {
		return fmt.Errorf("EVOLUTION_API_URL is required when WHATSAPP_PROVIDER=evolution")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 retrieves an environment variable as int64 or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat retrieves an environment variable as float64 or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
