package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv             string
	LogLevel           slog.Level
	ServerPort         string
	PostgreSQLHost     string
	PostgreSQLPort     int64
	PostgreSQLUser     string
	PostgreSQLPassword string
	PostgreSQLDatabase string
	JWTSecret          string
	TokenExpiration    int64 // Access token lifetime in seconds
	RedisHost          string
	RedisPort          int64
	RedisPassword      string
	RedisDatabase      int64
	DefaultPerPage     int
	MaxPerPage         int
	ListingCacheTTL    int64 // Cached listing response TTL in seconds
}

func LoadConfig() *Config {
	// Optional .env file for local development; deployments set real env vars.
	_ = godotenv.Load()

	return &Config{
		AppEnv:             getEnv("APP_ENV", "development"),             // Default development
		LogLevel:           getLogLevel(),                                // Default INFO
		ServerPort:         getEnv("SERVER_PORT", "8080"),                // Default 8080
		PostgreSQLHost:     getEnv("POSTGRESQL_HOST", "db"),              // Default db
		PostgreSQLPort:     getEnvAsInt64("POSTGRESQL_PORT", 5432),       // Default 5432
		PostgreSQLUser:     getEnv("POSTGRESQL_USER", "ppcase_user"),     // Default user
		PostgreSQLPassword: getEnv("POSTGRESQL_PASSWORD", "ppcase_pass"), // Default password
		PostgreSQLDatabase: getEnv("POSTGRESQL_DATABASE", "ppcase_db"),   // Default database name
		JWTSecret:          getEnv("JWT_SECRET", "ppcase_secret"),        // Default secret key
		TokenExpiration:    getEnvAsInt64("TOKEN_EXPIRATION", 3600),      // Default 1 hour
		RedisHost:          getEnv("REDIS_HOST", "redis"),                // Default redis
		RedisPort:          getEnvAsInt64("REDIS_PORT", 6379),            // Default 6379
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),                 // Default empty
		RedisDatabase:      getEnvAsInt64("REDIS_DATABASE", 0),           // Default 0
		DefaultPerPage:     getEnvAsInt("DEFAULT_PER_PAGE", 10),          // Default 10 items per page
		MaxPerPage:         getEnvAsInt("MAX_PER_PAGE", 100),             // Hard cap on per_page
		ListingCacheTTL:    getEnvAsInt64("LISTING_CACHE_TTL", 60),       // Default 60 seconds
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
			return value
		}
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

func getLogLevel() slog.Level {
	levelStr := getEnv("LOG_LEVEL", "INFO")

	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
