package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	// Local store
	SQLitePath string
	// Identity of the operator running this device
	SellerID   string
	SellerName string
	// Redis Configuration (product read cache)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheTTL      int
	// Kafka Configuration (remote stock feed)
	KafkaBrokers    []string
	KafkaTopicStock string
	KafkaGroupID    string
	KafkaClientID   string
	// Remote endpoints
	SaleEndpoint   string
	PushEndpoint   string
	RequestTimeout time.Duration
	// Sync sweep
	SyncConcurrency int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Parse Kafka brokers (comma-separated)
	kafkaBrokersStr := getEnv("KAFKA_BROKERS", "localhost:9093")
	kafkaBrokers := strings.Split(kafkaBrokersStr, ",")
	for i, broker := range kafkaBrokers {
		kafkaBrokers[i] = strings.TrimSpace(broker)
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		SQLitePath:  getEnv("SQLITE_PATH", "./sales.db"),
		SellerID:    getEnv("SELLER_ID", ""),
		SellerName:  getEnv("SELLER_NAME", ""),
		// Redis Configuration
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		CacheTTL:      getEnvAsInt("CACHE_TTL_SECONDS", 300),
		// Kafka Configuration
		KafkaBrokers:    kafkaBrokers,
		KafkaTopicStock: getEnv("KAFKA_TOPIC_STOCK", "warehouse.stock"),
		KafkaGroupID:    getEnv("KAFKA_GROUP_ID", "sales-engine"),
		KafkaClientID:   getEnv("KAFKA_CLIENT_ID", "sales-engine"),
		// Remote endpoints
		SaleEndpoint:   getEnv("SALE_ENDPOINT", "http://localhost:9090/api/ventas"),
		PushEndpoint:   getEnv("PUSH_ENDPOINT", "http://localhost:9091/api/push"),
		RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		// Sync sweep
		SyncConcurrency: getEnvAsInt("SYNC_CONCURRENCY", 4),
	}
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
