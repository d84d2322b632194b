package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all process-level configuration for the DriveSafe backend.
// Engine tuning (TTLs, merge radius, rate-limit window) is runtime state and
// lives in the settings table, not here.
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// Admin auth
	JWTSecret string

	// Optional RabbitMQ publishing for downstream analytics.
	// Publishing is disabled when AMQPURL is empty.
	AMQPURL      string
	AMQPExchange string

	// Transport-level throttle on report submission, per client IP.
	SubmitRPS   int
	SubmitBurst int
}

// Load loads configuration from environment variables
func Load() *Config {
	// Optional .env for local runs; missing file is fine.
	godotenv.Load()

	config := &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret"),
		DBName:     getEnv("DB_NAME", "drivesafe_uk"),

		// Server defaults
		Port: getEnv("PORT", "8080"),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "drivesafe.reports"),

		SubmitRPS:   getIntEnv("SUBMIT_RPS", 5),
		SubmitBurst: getIntEnv("SUBMIT_BURST", 10),
	}

	return config
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
