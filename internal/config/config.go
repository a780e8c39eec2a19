package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the engine reads from the environment.
type Config struct {
	Env  string
	Port string

	OrdersTable      string
	StockTable       string
	IdempotencyTable string

	StockEventsQueueURL string
	MetricsNamespace    string

	IdempotencyTTL    time.Duration
	LowStockThreshold int64

	RunLocal bool
}

// Load reads configuration from the environment, with a .env file as
// fallback for local development.
func Load() *Config {
	_ = godotenv.Load()

	ttlMinutes, _ := strconv.Atoi(getEnv("IDEMPOTENCY_TTL_MINUTES", "1440"))
	threshold, _ := strconv.ParseInt(getEnv("LOW_STOCK_THRESHOLD", "5"), 10, 64)

	return &Config{
		Env:                 getEnv("ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		OrdersTable:         getEnv("ORDERS_TABLE", "orders"),
		StockTable:          getEnv("STOCK_TABLE", "stock_levels"),
		IdempotencyTable:    getEnv("IDEMPOTENCY_TABLE", "idempotency"),
		StockEventsQueueURL: getEnv("STOCK_EVENTS_QUEUE_URL", ""),
		MetricsNamespace:    getEnv("METRICS_NAMESPACE", "RestoOrderflow"),
		IdempotencyTTL:      time.Duration(ttlMinutes) * time.Minute,
		LowStockThreshold:   threshold,
		RunLocal:            getEnv("RUN_LOCAL", "") == "true",
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
