package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// const dsn = "host=localhost user=postgres password=password dbname=vmpdb port=5432 sslmode=disable TimeZone=UTC"

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

// Fixed timings of the purchase pipeline.
const (
	RESERVATION_TIMEOUT = 30 * time.Minute
	REAPER_INTERVAL     = 5 * time.Minute
	HEARTBEAT_INTERVAL  = 30 * time.Second
	REAPER_BATCH_SIZE   = 100
	CODE_ATTEMPTS       = 10
)

type BusDriver string

const (
	BUS_REDIS  BusDriver = "redis"
	BUS_KAFKA  BusDriver = "kafka"
	BUS_MEMORY BusDriver = "memory"
)

const DEFAULT_SSE_CHANNEL = "vmp:sse:events"

type Config struct {
	Env             string
	Port            string
	AppHost         string
	MaintenanceMode bool

	RedisURL    string
	KafkaBroker string
	BusDriver   BusDriver
	SSEChannel  string
	InstanceID  string

	StripeSecretKey     string
	StripeWebhookSecret string

	AssetsBucket string
	SecretsDir   string
	QRCSecret    string
	JWTSecret    string
}

// Load reads the process environment. Call after godotenv has populated it.
func Load() Config {
	cfg := Config{
		Env:                 os.Getenv("API_ENV"),
		Port:                getenv("PORT", "8080"),
		AppHost:             os.Getenv("APP_HOST"),
		RedisURL:            os.Getenv("REDIS_HOST"),
		KafkaBroker:         os.Getenv("KAFKA_BROKER"),
		BusDriver:           BusDriver(getenv("BUS_DRIVER", string(BUS_REDIS))),
		SSEChannel:          getenv("SSE_CHANNEL", DEFAULT_SSE_CHANNEL),
		InstanceID:          getenv("INSTANCE_ID", uuid.NewString()),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		AssetsBucket:        os.Getenv("S3_ASSETS_BUCKET"),
		SecretsDir:          os.Getenv("SECRETS_DIR"),
		QRCSecret:           os.Getenv("API_QRC_SECRET"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
	}
	mm, err := strconv.ParseBool(os.Getenv("MAINTENANCE_MODE"))
	cfg.MaintenanceMode = err == nil && mm
	return cfg
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
