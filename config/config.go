package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with
// development-friendly defaults.
type Config struct {
	HTTPAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Queue sync settings.
	QueueChannel          string        // pub/sub channel carrying queue change events
	QueueCacheSize        int           // max cached queue views per process
	QueueCacheTTL         time.Duration // staleness bound for cached views
	NotifierRetryDelay    time.Duration // initial reconnect delay after a lost subscription
	NotifierMaxRetryDelay time.Duration // backoff cap for reconnect attempts
	NotifierLiveness      time.Duration // interval between subscription liveness checks

	JWTSecret string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	LogLevel  string
	LogOutput string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvSeconds gets an environment variable as a number of seconds or returns a default value.
func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "queuesync"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		QueueChannel:          getEnv("QUEUE_CHANNEL", "queue:changes"),
		QueueCacheSize:        getEnvInt("QUEUE_CACHE_SIZE", 100),
		QueueCacheTTL:         getEnvSeconds("QUEUE_CACHE_TTL_SECONDS", 300),
		NotifierRetryDelay:    getEnvSeconds("QUEUE_NOTIFIER_RETRY_SECONDS", 5),
		NotifierMaxRetryDelay: getEnvSeconds("QUEUE_NOTIFIER_MAX_RETRY_SECONDS", 60),
		NotifierLiveness:      getEnvSeconds("QUEUE_NOTIFIER_LIVENESS_SECONDS", 30),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "audio"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogOutput: getEnv("LOG_OUTPUT", ""),
	}
}
