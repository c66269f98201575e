package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	HTTPPort    string
	LogLevel    string

	// Token economy. Balances are seeded at registration, and every accepted
	// chat message debits DebitAmount provided the balance is at least
	// MinBalance.
	InitialTokenBalance int
	ChatMinBalance      int
	ChatDebitAmount     int
}

func Load() Config {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	return Config{
		DatabaseURL:         getEnv("DATABASE_URL", "ai_chat.db"),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		InitialTokenBalance: getEnvAsInt("INITIAL_TOKEN_BALANCE", 4000),
		ChatMinBalance:      getEnvAsInt("CHAT_MIN_BALANCE", 100),
		ChatDebitAmount:     getEnvAsInt("CHAT_DEBIT_AMOUNT", 10),
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
