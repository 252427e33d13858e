package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT bearer auth for the review/accounting surface
	JWTSecret        string
	JWTExpirationDur time.Duration

	// API key for the downstream accounting surface
	PipelineAPIKey string

	// Bank aggregator
	AggregatorBaseURL string
	AggregatorTimeout time.Duration

	// External classifier
	ClassifierModel   string
	ClassifierTimeout time.Duration

	// Background categorization queue
	QueueBufferSize  int
	QueueWorkerCount int
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		// Server
		Port: getEnv("PORT", "8080"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "tributary"),
		DBPassword: getEnv("DB_PASSWORD", "tributary"),
		DBName:     getEnv("DB_NAME", "tributary"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Auth
		JWTSecret:      getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),
		PipelineAPIKey: getEnv("PIPELINE_API_KEY", ""),

		// Aggregator
		AggregatorBaseURL: getEnv("AGGREGATOR_BASE_URL", "http://localhost:9090"),
		AggregatorTimeout: getEnvDuration("AGGREGATOR_TIMEOUT", 30*time.Second),

		// Classifier
		ClassifierModel:   getEnv("CLASSIFIER_MODEL", "gemini-2.5-flash"),
		ClassifierTimeout: getEnvDuration("CLASSIFIER_TIMEOUT", 60*time.Second),

		// Queue
		QueueBufferSize:  getEnvInt("QUEUE_BUFFER_SIZE", 16),
		QueueWorkerCount: getEnvInt("QUEUE_WORKER_COUNT", 2),
	}

	config.JWTExpirationDur = getEnvDuration("JWT_EXPIRES_IN", 24*time.Hour)

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, value, defaultValue)
		return defaultValue
	}
	return d
}
